package readaloud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Driver bridges the download coordinator and the opaque player. It
// accepts ready segments in order, starts the player on the first one,
// polls the playing position to update the cursor, reading progress
// and page turns, recovers from per-item playback errors, and advances
// to the next chapter when the queue ends.
type Driver struct {
	player   Player
	coord    *Coordinator
	store    Store
	counters *Counters
	state    *SessionState
	progress ProgressTracker
	log      *log.Logger

	pollInterval    time.Duration
	maxCacheEntries int

	mu            sync.Mutex
	chapter       *Chapter
	cursor        Cursor
	queued        []queuedItem
	started       bool
	paused        bool
	pageChanged   bool
	fillCutShort  bool
	lastPage      int
	fatalErr      error
	onFatal       func(error)
	baseCtx       context.Context
	sessionCancel context.CancelFunc
}

type queuedItem struct {
	segment int
	key     string
	path    string
}

// DriverConfig collects the driver's collaborators.
type DriverConfig struct {
	Player          Player
	Coordinator     *Coordinator
	Store           Store
	Counters        *Counters
	State           *SessionState
	Progress        ProgressTracker
	Logger          *log.Logger
	PollInterval    time.Duration
	MaxCacheEntries int
}

// NewDriver wires a playback driver and registers it as the player's
// listener.
func NewDriver(cfg DriverConfig) *Driver {
	d := &Driver{
		player:          cfg.Player,
		coord:           cfg.Coordinator,
		store:           cfg.Store,
		counters:        cfg.Counters,
		state:           cfg.State,
		progress:        cfg.Progress,
		log:             cfg.Logger,
		pollInterval:    cfg.PollInterval,
		maxCacheEntries: cfg.MaxCacheEntries,
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 100 * time.Millisecond
	}
	d.player.SetListener(d)
	return d
}

// Play starts a playback session for ch at cur, superseding any
// session in flight. It returns once the fill pass and the position
// loop are launched; failures surface through the fatal callback.
func (d *Driver) Play(ctx context.Context, ch *Chapter, cur Cursor) error {
	if ch == nil || len(ch.Segments) == 0 {
		return fmt.Errorf("no chapter to play")
	}
	d.Stop()

	cur = clampCursor(ch, cur)
	if cur.Segment >= len(ch.Segments) {
		// Nothing left to read; request the next chapter right away.
		d.mu.Lock()
		d.chapter = ch
		d.cursor = cur
		d.mu.Unlock()
		d.log.Debug("cursor already past the last segment", "title", ch.Title)
		d.progress.OnChapterEnd()
		return nil
	}
	sessionCtx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if d.chapter != ch {
		d.counters.Reset()
	}
	d.chapter = ch
	d.cursor = cur
	d.queued = nil
	d.started = false
	d.paused = false
	d.pageChanged = false
	d.fillCutShort = false
	d.lastPage = ch.PageFor(ch.ReadLength(cur))
	d.fatalErr = nil
	d.baseCtx = ctx
	d.sessionCancel = cancel
	d.mu.Unlock()

	d.player.Clear()
	d.log.Debug("session starting", "title", ch.Title, "segment", cur.Segment, "offset", cur.Offset)

	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error {
		if err := d.coord.Fill(gctx, d, ch, cur); err != nil {
			return err
		}
		d.player.Finish()
		return nil
	})
	g.Go(func() error {
		d.trackPosition(gctx)
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil && Classify(err) != FailureCancelled {
			d.fatal(err)
		}
	}()
	return nil
}

// Stop cancels the session's fill pass and position loop. The player
// queue is left as is; Play clears it when a new session starts.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel := d.sessionCancel
	d.sessionCancel = nil
	d.mu.Unlock()

	d.coord.Cancel()
	if cancel != nil {
		cancel()
	}
}

// Pause cancels the in-flight fill pass and pauses the player. The
// cursor keeps the resume point; a fill pass cut short is remembered
// so Resume can finish the chapter's downloads.
func (d *Driver) Pause() {
	cutShort := d.state.Current() == FillFilling
	d.coord.Cancel()
	d.player.Pause()
	d.mu.Lock()
	d.paused = true
	if cutShort {
		d.fillCutShort = true
	}
	d.mu.Unlock()
	d.log.Debug("paused", "cursor", d.Cursor().Segment, "fillCutShort", cutShort)
}

// Resume continues playback. If the page changed while paused, or the
// pause cut a fill pass short, the session restarts from the cursor
// instead, re-filling the queue. Already-downloaded segments replay
// from cache.
func (d *Driver) Resume() {
	d.mu.Lock()
	replay := d.pageChanged || d.fillCutShort
	d.pageChanged = false
	d.fillCutShort = false
	d.paused = false
	ch := d.chapter
	cur := d.cursor
	ctx := d.baseCtx
	d.mu.Unlock()

	if replay && ch != nil {
		if err := d.Play(ctx, ch, cur); err != nil {
			d.log.Error("resume replay failed", "err", err)
		}
		return
	}
	d.player.Resume()
}

// NotifyPageChanged records that the reader moved to a different page
// while playback was paused, so Resume restarts from the new cursor.
func (d *Driver) NotifyPageChanged() {
	d.mu.Lock()
	if d.paused {
		d.pageChanged = true
	}
	d.mu.Unlock()
}

// SetCursor moves the resume point, typically after the reader jumped
// elsewhere in the chapter.
func (d *Driver) SetCursor(cur Cursor) {
	d.mu.Lock()
	if d.chapter != nil {
		d.cursor = clampCursor(d.chapter, cur)
	}
	d.mu.Unlock()
}

// SetSpeechRate reconfigures the player's speed multiplier without
// restarting the queue. Already-queued audio keeps its synthesized
// rate; newly fetched segments pick the new rate up through the voice
// source.
func (d *Driver) SetSpeechRate(rate int) {
	if rate <= 0 {
		return
	}
	d.player.SetSpeed(float64(rate) / 10.0)
}

// Cursor returns the current resume point.
func (d *Driver) Cursor() Cursor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Err returns the fatal error that aborted the session, if any.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatalErr
}

// OnFatal registers the callback notified once when the session aborts.
func (d *Driver) OnFatal(fn func(error)) {
	d.mu.Lock()
	d.onFatal = fn
	d.mu.Unlock()
}

// Close stops the session and releases the player.
func (d *Driver) Close() error {
	d.Stop()
	return d.player.Close()
}

// EnqueueSegment implements QueueSink: it appends the ready cache
// entry to the player queue and starts playback on the first item.
func (d *Driver) EnqueueSegment(segment int, key, path string) error {
	if err := d.player.Enqueue(QueueItem{Key: key, Path: path}); err != nil {
		return fmt.Errorf("player enqueue: %w", err)
	}

	d.mu.Lock()
	d.queued = append(d.queued, queuedItem{segment: segment, key: key, path: path})
	start := !d.started && !d.paused
	if start {
		d.started = true
	}
	d.mu.Unlock()

	if start {
		if err := d.player.Play(); err != nil {
			return fmt.Errorf("player start: %w", err)
		}
	}
	return nil
}

// OnStateChanged implements PlayerListener.
func (d *Driver) OnStateChanged(state PlayerState) {
	d.log.Debug("player state", "state", state)
	switch state {
	case PlayerReady:
		// Playback is rolling, a good moment for maintenance I/O.
		go d.trimCache()
	case PlayerEnded:
		d.handleEnded()
	}
}

// OnItemTransition implements PlayerListener. A transition means the
// previous item played out, so the playback failure streak is over.
func (d *Driver) OnItemTransition(index int) {
	d.counters.PlaybackSucceeded()
	d.syncCursor(index)
}

// OnPlaybackError implements PlayerListener: below the threshold the
// offending cache entry is invalidated and the session replays from
// the cursor, forcing a re-download; at the threshold the session
// aborts.
func (d *Driver) OnPlaybackError(index int, err error) {
	n := d.counters.PlaybackFailed()
	d.log.Warn("playback error", "item", index, "consecutive", n, "err", err)

	if d.counters.PlaybacksFatal() {
		d.fatal(fmt.Errorf("%w: %w", ErrTooManyPlaybackFailures, err))
		return
	}

	d.mu.Lock()
	var key string
	if index >= 0 && index < len(d.queued) {
		key = d.queued[index].key
	}
	ch := d.chapter
	cur := d.cursor
	ctx := d.baseCtx
	d.mu.Unlock()

	if key != "" {
		if ierr := d.store.Invalidate(key); ierr != nil {
			d.log.Error("cache invalidate failed", "key", key, "err", ierr)
		}
	}
	if ch != nil {
		if perr := d.Play(ctx, ch, cur); perr != nil {
			d.log.Error("replay after playback error failed", "err", perr)
		}
	}
}

func (d *Driver) trackPosition(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.player.IsPlaying() {
				continue
			}
			d.syncCursor(d.player.CurrentIndex())
		}
	}
}

// syncCursor maps the player's current item index back to a segment
// and publishes progress and page turns when the segment changed.
func (d *Driver) syncCursor(index int) {
	d.mu.Lock()
	if d.chapter == nil || index < 0 || index >= len(d.queued) {
		d.mu.Unlock()
		return
	}
	segment := d.queued[index].segment
	if segment == d.cursor.Segment {
		d.mu.Unlock()
		return
	}
	d.cursor = Cursor{Segment: segment}
	ch := d.chapter
	cur := d.cursor
	readLen := ch.ReadLength(cur)
	page := ch.PageFor(readLen)
	turned := page > d.lastPage
	if turned {
		d.lastPage = page
	}
	d.mu.Unlock()

	d.progress.OnProgress(cur, readLen)
	if turned {
		d.progress.OnPageTurn(page)
	}
}

func (d *Driver) handleEnded() {
	d.mu.Lock()
	if d.chapter != nil {
		d.cursor = Cursor{Segment: len(d.chapter.Segments)}
	}
	cancel := d.sessionCancel
	d.sessionCancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.state.Transition(FillIdle)
	d.log.Debug("queue ended, requesting next chapter")
	d.progress.OnChapterEnd()
}

func (d *Driver) trimCache() {
	if d.maxCacheEntries <= 0 {
		return
	}
	d.mu.Lock()
	keep := make(map[string]struct{}, len(d.queued))
	for _, item := range d.queued {
		keep[item.key] = struct{}{}
	}
	d.mu.Unlock()

	if err := d.store.Trim(d.maxCacheEntries, keep); err != nil {
		d.log.Error("cache trim failed", "err", err)
	}
}

func (d *Driver) fatal(err error) {
	d.mu.Lock()
	if d.fatalErr != nil {
		d.mu.Unlock()
		return
	}
	d.fatalErr = err
	onFatal := d.onFatal
	cancel := d.sessionCancel
	d.sessionCancel = nil
	d.mu.Unlock()

	d.coord.Cancel()
	if cancel != nil {
		cancel()
	}
	d.player.Pause()
	d.state.Transition(FillAborted)
	d.log.Error("session aborted", "err", err)
	if onFatal != nil {
		onFatal(err)
	}
}

func clampCursor(ch *Chapter, cur Cursor) Cursor {
	if cur.Segment < 0 {
		cur.Segment = 0
	}
	if cur.Segment > len(ch.Segments) {
		cur.Segment = len(ch.Segments)
	}
	if cur.Offset < 0 {
		cur.Offset = 0
	}
	return cur
}
