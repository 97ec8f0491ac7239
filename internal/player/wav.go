package player

import (
	"encoding/binary"
	"fmt"
)

// wavData is a decoded PCM payload.
type wavData struct {
	sampleRate int
	channels   int
	samples    []int16 // interleaved
}

// decodeWAV parses a RIFF/WAVE container holding 16-bit PCM. Other
// codecs and bit depths are rejected; the endpoint is trusted to
// return plain waveforms.
func decodeWAV(b []byte) (*wavData, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bitDepth   int
		data       []byte
		haveFmt    bool
	)

	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(b) {
			size = len(b) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav fmt chunk too short: %d bytes", size)
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported wav audio format %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			haveFmt = true
		case "data":
			data = b[body : body+size]
		}
		// Chunks are word aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("wav file has no fmt chunk")
	}
	if data == nil {
		return nil, fmt.Errorf("wav file has no data chunk")
	}
	if bitDepth != 16 {
		return nil, fmt.Errorf("unsupported wav bit depth %d, want 16", bitDepth)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported wav channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav sample rate %d", sampleRate)
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i : 2*i+2]))
	}
	return &wavData{sampleRate: sampleRate, channels: channels, samples: samples}, nil
}

// renderPCM converts decoded audio to interleaved little-endian
// int16 at the device's sample rate and channel count, with the speed
// multiplier folded into the resample ratio. Nearest-neighbor
// resampling is plenty for speech.
func renderPCM(d *wavData, outRate, outChannels int, speed float64) []byte {
	if speed <= 0 {
		speed = 1.0
	}
	srcFrames := len(d.samples) / d.channels
	if srcFrames == 0 {
		return nil
	}

	step := float64(d.sampleRate) * speed / float64(outRate)
	outFrames := int(float64(srcFrames) / step)
	if outFrames < 1 {
		outFrames = 1
	}

	out := make([]byte, outFrames*outChannels*2)
	for i := 0; i < outFrames; i++ {
		src := int(float64(i) * step)
		if src >= srcFrames {
			src = srcFrames - 1
		}
		for ch := 0; ch < outChannels; ch++ {
			srcCh := ch
			if srcCh >= d.channels {
				srcCh = d.channels - 1
			}
			sample := d.samples[src*d.channels+srcCh]
			off := (i*outChannels + ch) * 2
			binary.LittleEndian.PutUint16(out[off:off+2], uint16(sample))
		}
	}
	return out
}
