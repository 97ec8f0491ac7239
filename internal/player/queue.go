//go:build !nocgo
// +build !nocgo

package player

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/readaloud/internal/readaloud"
)

const (
	// Device format. Decoded audio is rendered to this before playback.
	deviceSampleRate = 44100
	deviceChannels   = 2

	// How long a silence marker sounds.
	silenceGap = 250 * time.Millisecond

	pollStep = 20 * time.Millisecond
)

// QueuePlayer implements readaloud.Player on top of oto. A single
// worker goroutine walks the queue, decodes each file and feeds it to
// the audio device; listener callbacks are dispatched from that
// goroutine.
type QueuePlayer struct {
	otoCtx *oto.Context
	log    *log.Logger

	mu         sync.Mutex
	queue      []readaloud.QueueItem
	index      int
	state      readaloud.PlayerState
	playing    bool
	paused     bool
	finished   bool
	closed     bool
	generation int
	speed      float64
	listener   readaloud.PlayerListener
	active     *oto.Player

	wake chan struct{}
	stop chan struct{}
}

// New opens the audio device and starts the playback worker.
func New(logger *log.Logger) (*QueuePlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   deviceSampleRate,
		ChannelCount: deviceChannels,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	p := &QueuePlayer{
		otoCtx: otoCtx,
		log:    logger,
		state:  readaloud.PlayerIdle,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	p.storeSpeed(1.0)
	go p.run()
	return p, nil
}

// SetListener implements readaloud.Player.
func (p *QueuePlayer) SetListener(l readaloud.PlayerListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

// Enqueue implements readaloud.Player: appends a file-backed item to
// the queue.
func (p *QueuePlayer) Enqueue(item readaloud.QueueItem) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("player is closed")
	}
	p.queue = append(p.queue, item)
	p.mu.Unlock()
	p.kick()
	return nil
}

// Clear implements readaloud.Player: drops the queue and interrupts
// any item mid-play.
func (p *QueuePlayer) Clear() {
	p.mu.Lock()
	p.generation++
	p.queue = nil
	p.index = 0
	p.playing = false
	p.paused = false
	p.finished = false
	p.mu.Unlock()
	p.kick()
}

// Play implements readaloud.Player: starts draining the queue.
func (p *QueuePlayer) Play() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("player is closed")
	}
	p.playing = true
	p.paused = false
	p.mu.Unlock()
	p.kick()
	return nil
}

// Pause implements readaloud.Player.
func (p *QueuePlayer) Pause() {
	p.mu.Lock()
	p.paused = true
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
	}
}

// Resume implements readaloud.Player.
func (p *QueuePlayer) Resume() {
	p.mu.Lock()
	p.paused = false
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Play()
	}
	p.kick()
}

// SetSpeed implements readaloud.Player. The multiplier applies from
// the next queue item; the item currently sounding keeps its speed.
func (p *QueuePlayer) SetSpeed(multiplier float64) {
	if multiplier <= 0 {
		return
	}
	p.storeSpeed(multiplier)
}

// Finish implements readaloud.Player: marks the queue complete, so
// draining past the last item reports PlayerEnded instead of waiting
// for more.
func (p *QueuePlayer) Finish() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
	p.kick()
}

// CurrentIndex implements readaloud.Player.
func (p *QueuePlayer) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// State implements readaloud.Player.
func (p *QueuePlayer) State() readaloud.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsPlaying implements readaloud.Player.
func (p *QueuePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && !p.paused
}

// Close implements readaloud.Player: stops the worker and releases
// the device. The oto context itself has no close; it is dropped for
// collection.
func (p *QueuePlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
	}
	close(p.stop)
	return nil
}

func (p *QueuePlayer) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *QueuePlayer) run() {
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		p.drain()
	}
}

// drain plays queue items until the queue is exhausted, playback is
// stopped or the player is closed.
func (p *QueuePlayer) drain() {
	for {
		p.mu.Lock()
		if p.closed || !p.playing {
			p.mu.Unlock()
			return
		}
		if p.index >= len(p.queue) {
			if p.finished && len(p.queue) > 0 {
				p.playing = false
				p.mu.Unlock()
				p.setState(readaloud.PlayerEnded)
				return
			}
			p.mu.Unlock()
			// Queue underrun while the fill pass is still running.
			p.setState(readaloud.PlayerBuffering)
			return
		}
		item := p.queue[p.index]
		gen := p.generation
		p.mu.Unlock()

		p.setState(readaloud.PlayerReady)
		err := p.playItem(item, gen)

		p.mu.Lock()
		if p.generation != gen || p.closed {
			p.mu.Unlock()
			return
		}
		if err != nil {
			idx := p.index
			p.playing = false
			listener := p.listener
			p.mu.Unlock()
			p.log.Warn("queue item failed", "index", idx, "key", item.Key, "err", err)
			if listener != nil {
				listener.OnPlaybackError(idx, err)
			}
			return
		}
		p.index++
		idx := p.index
		more := idx < len(p.queue)
		listener := p.listener
		p.mu.Unlock()

		if more && listener != nil {
			listener.OnItemTransition(idx)
		}
	}
}

// playItem decodes and plays one file, blocking until it finishes, the
// queue generation changes or the player closes. Zero-byte silence
// markers sound as a short gap.
func (p *QueuePlayer) playItem(item readaloud.QueueItem, gen int) error {
	info, err := os.Stat(item.Path)
	if err != nil {
		return fmt.Errorf("stat queue item: %w", err)
	}
	if info.Size() == 0 {
		p.sleepInterruptible(silenceGap, gen)
		return nil
	}

	raw, err := os.ReadFile(item.Path)
	if err != nil {
		return fmt.Errorf("read queue item: %w", err)
	}
	decoded, err := decodeWAV(raw)
	if err != nil {
		return fmt.Errorf("decode queue item: %w", err)
	}
	pcm := renderPCM(decoded, deviceSampleRate, deviceChannels, p.loadSpeed())
	if len(pcm) == 0 {
		return nil
	}

	dev := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	p.mu.Lock()
	p.active = dev
	paused := p.paused
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
		dev.Close()
	}()

	if !paused {
		dev.Play()
	}

	for {
		select {
		case <-p.stop:
			return nil
		default:
		}
		p.mu.Lock()
		stale := p.generation != gen
		paused := p.paused
		p.mu.Unlock()
		if stale {
			return nil
		}
		if paused {
			time.Sleep(pollStep)
			continue
		}
		if !dev.IsPlaying() {
			return nil
		}
		time.Sleep(pollStep)
	}
}

func (p *QueuePlayer) sleepInterruptible(d time.Duration, gen int) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-p.stop:
			return
		default:
		}
		p.mu.Lock()
		stale := p.generation != gen
		p.mu.Unlock()
		if stale {
			return
		}
		time.Sleep(pollStep)
	}
}

func (p *QueuePlayer) setState(s readaloud.PlayerState) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	listener := p.listener
	p.mu.Unlock()
	if listener != nil {
		listener.OnStateChanged(s)
	}
}

func (p *QueuePlayer) storeSpeed(v float64) {
	p.mu.Lock()
	p.speed = v
	p.mu.Unlock()
}

func (p *QueuePlayer) loadSpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}
