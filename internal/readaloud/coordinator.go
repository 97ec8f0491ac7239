package readaloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Coordinator walks the chapter's segments from the cursor forward and
// resolves each to a cache entry: silence for unspeakable text, a
// cache hit when present, a synthesis fetch otherwise. Ready entries
// are handed to the sink in segment order, so the player can start on
// the first one while later segments are still downloading.
//
// Fill is single-flight per session: a new call cancels and supersedes
// any pass still running.
type Coordinator struct {
	synth    Synthesizer
	store    Store
	voices   VoiceSource
	counters *Counters
	state    *SessionState
	log      *log.Logger

	passMu sync.Mutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewCoordinator wires a download coordinator.
func NewCoordinator(synth Synthesizer, store Store, voices VoiceSource, counters *Counters, state *SessionState, logger *log.Logger) *Coordinator {
	return &Coordinator{
		synth:    synth,
		store:    store,
		voices:   voices,
		counters: counters,
		state:    state,
		log:      logger,
	}
}

// Fill runs one fill pass from cur to the end of the chapter, feeding
// ready segments to sink in order. It blocks until the pass completes,
// aborts or is cancelled. Cancellation is returned as the context
// error and touches no counters.
func (c *Coordinator) Fill(ctx context.Context, sink QueueSink, ch *Chapter, cur Cursor) error {
	c.Cancel()
	c.passMu.Lock()
	defer c.passMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setCancel(cancel)
	defer c.setCancel(nil)

	c.state.Transition(FillFilling)

	voice, ok := c.voices.CurrentVoice()
	if !ok {
		c.state.Transition(FillAborted)
		return ErrNoVoice
	}
	rate := c.voices.SpeechRate()
	lang := c.voices.TextLanguage()
	c.log.Debug("fill pass starting",
		"segment", cur.Segment, "offset", cur.Offset,
		"segments", len(ch.Segments), "voice", voice.ID, "rate", rate)

	for i := cur.Segment; i < len(ch.Segments); i++ {
		if err := ctx.Err(); err != nil {
			c.state.Transition(FillIdle)
			return err
		}

		text := ch.Segments[i]
		if i == cur.Segment && cur.Offset > 0 {
			// Resume mid-segment: speak only the remainder. The key
			// derives from the trimmed text, so a full replay of the
			// same segment later still gets its own entry.
			if runes := []rune(text); cur.Offset < len(runes) {
				text = string(runes[cur.Offset:])
			} else {
				text = ""
			}
		}
		norm := NormalizeText(text)
		key := DeriveKey(ch.Title, voice.ID, rate, norm)

		var path string
		switch {
		case !Speakable(norm):
			p, err := c.store.WriteSilent(key)
			if err != nil {
				if c.segmentFailed(i, err) {
					return fmt.Errorf("%w: %w", ErrTooManyDownloadFailures, err)
				}
				continue
			}
			path = p
			c.log.Debug("segment not speakable, queued silence", "segment", i)

		case c.store.Has(key):
			path = c.store.Path(key)
			c.log.Debug("cache hit", "segment", i, "key", key)

		default:
			p, err := c.fetch(ctx, key, SynthRequest{
				Text:       norm,
				Voice:      voice,
				SpeechRate: rate,
				Language:   lang,
			})
			switch {
			case err == nil:
				path = p
				c.counters.DownloadSucceeded()
			case Classify(err) == FailureCancelled:
				c.state.Transition(FillIdle)
				return err
			case Classify(err) == FailureFatal:
				c.state.Transition(FillAborted)
				return err
			default:
				if c.segmentFailed(i, err) {
					return fmt.Errorf("%w: %w", ErrTooManyDownloadFailures, err)
				}
				sp, serr := c.store.WriteSilent(key)
				if serr != nil {
					c.log.Error("silence fallback write failed", "segment", i, "err", serr)
					continue
				}
				path = sp
			}
		}

		// A fetch already in flight when the pass was cancelled can
		// still return successfully, and by then a superseding session
		// may own the sink. Recheck before handing the segment over.
		if err := ctx.Err(); err != nil {
			c.state.Transition(FillIdle)
			return err
		}
		if err := sink.EnqueueSegment(i, key, path); err != nil {
			c.state.Transition(FillAborted)
			return fmt.Errorf("enqueue segment %d: %w", i, err)
		}
	}

	c.state.Transition(FillDraining)
	c.log.Debug("fill pass complete", "segments", len(ch.Segments)-cur.Segment)
	return nil
}

// Cancel aborts any in-flight fill pass. Safe to call when none is
// running.
func (c *Coordinator) Cancel() {
	c.cancelMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancelMu.Unlock()
}

// segmentFailed records one failed segment and reports whether the
// session must abort.
func (c *Coordinator) segmentFailed(segment int, err error) bool {
	n := c.counters.DownloadFailed()
	c.log.Warn("segment download failed",
		"segment", segment, "kind", Classify(err), "consecutive", n, "err", err)
	if c.counters.DownloadsFatal() {
		c.state.Transition(FillAborted)
		return true
	}
	return false
}

func (c *Coordinator) fetch(ctx context.Context, key string, req SynthRequest) (string, error) {
	audio, err := c.synth.Synthesize(ctx, req)
	if err != nil {
		return "", err
	}
	defer audio.Close()

	path, err := c.store.Write(key, audio)
	if err != nil {
		return "", fmt.Errorf("persist segment audio: %w", err)
	}
	return path, nil
}

func (c *Coordinator) setCancel(fn context.CancelFunc) {
	c.cancelMu.Lock()
	c.cancel = fn
	c.cancelMu.Unlock()
}
