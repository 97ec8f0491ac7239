package readaloud

import (
	"context"
	"io"
)

// Voice identifies one synthesis voice of the configured endpoint.
type Voice struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
	Category string `yaml:"category"`
}

// DisplayText returns the human-readable label for voice pickers.
func (v Voice) DisplayText() string {
	if v.Category == "" {
		return v.Name
	}
	return v.Name + " - " + v.Category
}

// UniqueKey returns the stable identity of the voice across renames.
func (v Voice) UniqueKey() string {
	return v.ID + "_" + v.Role
}

// Chapter is the text currently being read aloud: an ordered list of
// segments plus the character offsets where each page begins. The
// segment list is replaced wholesale when the chapter changes.
type Chapter struct {
	Title       string
	Segments    []string
	PageOffsets []int
}

// SegmentStart returns the character offset of segment i within the
// chapter text, counting runes.
func (c *Chapter) SegmentStart(i int) int {
	pos := 0
	for j := 0; j < i && j < len(c.Segments); j++ {
		pos += len([]rune(c.Segments[j]))
	}
	return pos
}

// ReadLength returns the cumulative rune count read once playback sits
// at the given cursor.
func (c *Chapter) ReadLength(cur Cursor) int {
	return c.SegmentStart(cur.Segment) + cur.Offset
}

// PageFor returns the index of the page containing the given chapter
// position. Returns 0 when no page offsets are known.
func (c *Chapter) PageFor(pos int) int {
	page := 0
	for i, off := range c.PageOffsets {
		if pos >= off {
			page = i
		}
	}
	return page
}

// Cursor is the resume point: a segment index and a rune offset within
// that segment. Segment == len(Segments) signals chapter completion.
type Cursor struct {
	Segment int
	Offset  int
}

// SynthRequest carries everything the synthesis endpoint needs for one
// segment.
type SynthRequest struct {
	Text       string
	Voice      Voice
	SpeechRate int
	Language   string
}

// Synthesizer fetches synthesized audio for one segment's text. The
// returned stream is raw audio bytes; the caller closes it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (io.ReadCloser, error)
}

// VoiceSource exposes the user's current synthesis settings. The
// pipeline never persists these, it reads them per request.
type VoiceSource interface {
	CurrentVoice() (Voice, bool)
	EndpointURL() string
	SpeechRate() int
	TextLanguage() string
}

// Store is the content-addressed audio cache the coordinator writes
// and the player reads. Write publishes atomically; a zero-byte entry
// is the silence marker.
type Store interface {
	Has(key string) bool
	Path(key string) string
	Open(key string) (io.ReadCloser, error)
	Write(key string, src io.Reader) (string, error)
	WriteSilent(key string) (string, error)
	Invalidate(key string) error
	Trim(maxEntries int, keep map[string]struct{}) error
}

// QueueItem is one entry of the player queue, resolving to a cache
// file on disk. A zero-byte file plays as a short silent gap.
type QueueItem struct {
	Key  string
	Path string
}

// PlayerState is the opaque player's reported lifecycle state.
type PlayerState int

const (
	// PlayerIdle means no queue is loaded.
	PlayerIdle PlayerState = iota
	// PlayerBuffering means the player is preparing the next item.
	PlayerBuffering
	// PlayerReady means playback is running or able to run.
	PlayerReady
	// PlayerEnded means the queue has been played to completion.
	PlayerEnded
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerBuffering:
		return "buffering"
	case PlayerReady:
		return "ready"
	case PlayerEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// PlayerListener receives the player's event callbacks. Calls arrive
// from the player's own goroutine.
type PlayerListener interface {
	OnStateChanged(state PlayerState)
	OnItemTransition(index int)
	OnPlaybackError(index int, err error)
}

// Player is the opaque audio engine: an ordered queue of file-backed
// items with pause/resume, a playback-speed multiplier and state
// reporting.
type Player interface {
	Enqueue(item QueueItem) error
	Clear()
	// Finish marks the queue complete: no more items will arrive, so
	// draining past the last one means the chapter ended rather than a
	// buffer underrun.
	Finish()
	Play() error
	Pause()
	Resume()
	SetSpeed(multiplier float64)
	CurrentIndex() int
	State() PlayerState
	IsPlaying() bool
	SetListener(l PlayerListener)
	Close() error
}

// QueueSink accepts ready segments in order. The playback driver
// implements it on top of the Player queue.
type QueueSink interface {
	EnqueueSegment(segment int, key, path string) error
}

// ProgressTracker is the reading-progress collaborator: it is told
// where playback sits, when a page boundary is crossed and when the
// chapter has been fully spoken.
type ProgressTracker interface {
	OnProgress(cur Cursor, readLength int)
	OnPageTurn(page int)
	OnChapterEnd()
}
