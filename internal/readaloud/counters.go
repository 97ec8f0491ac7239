package readaloud

import "sync/atomic"

// FailureThreshold bounds the consecutive failures of each kind a
// session tolerates. Downloads turn fatal when the counter exceeds it,
// so the sixth consecutive failure aborts; playback turns fatal when
// the counter reaches it.
const FailureThreshold = 5

// Counters tracks the session's consecutive download and playback
// failures. Both reset on any success of the matching kind and on
// session re-creation. Safe for use from the fill pass and the player
// callback goroutine concurrently.
type Counters struct {
	download atomic.Int32
	playback atomic.Int32
}

// DownloadFailed records one failed download and returns the new
// consecutive count.
func (c *Counters) DownloadFailed() int32 {
	return c.download.Add(1)
}

// DownloadSucceeded resets the consecutive download count.
func (c *Counters) DownloadSucceeded() {
	c.download.Store(0)
}

// DownloadsFatal reports whether downloads have crossed the threshold.
func (c *Counters) DownloadsFatal() bool {
	return c.download.Load() > FailureThreshold
}

// PlaybackFailed records one player-reported error and returns the new
// consecutive count.
func (c *Counters) PlaybackFailed() int32 {
	return c.playback.Add(1)
}

// PlaybackSucceeded resets the consecutive playback count.
func (c *Counters) PlaybackSucceeded() {
	c.playback.Store(0)
}

// PlaybacksFatal reports whether playback errors have reached the
// threshold.
func (c *Counters) PlaybacksFatal() bool {
	return c.playback.Load() >= FailureThreshold
}

// Reset clears both counters for a new session.
func (c *Counters) Reset() {
	c.download.Store(0)
	c.playback.Store(0)
}

// Downloads returns the current consecutive download failure count.
func (c *Counters) Downloads() int32 {
	return c.download.Load()
}

// Playbacks returns the current consecutive playback failure count.
func (c *Counters) Playbacks() int32 {
	return c.playback.Load()
}
