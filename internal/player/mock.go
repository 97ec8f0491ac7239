package player

import (
	"sync"

	"github.com/dgnsrekt/readaloud/internal/readaloud"
)

// MockPlayer is an in-memory readaloud.Player for tests. It records
// queue operations and lets tests drive listener events by hand.
type MockPlayer struct {
	mu       sync.Mutex
	queue    []readaloud.QueueItem
	index    int
	state    readaloud.PlayerState
	playing  bool
	paused   bool
	finished bool
	closed   bool
	speed    float64
	listener readaloud.PlayerListener

	PlayCalls   int
	ClearCalls  int
	PauseCalls  int
	ResumeCalls int

	// EnqueueErr, when set, is returned by Enqueue.
	EnqueueErr error
}

// NewMockPlayer returns a mock player in the idle state.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{state: readaloud.PlayerIdle, speed: 1.0}
}

// SetListener implements readaloud.Player.
func (m *MockPlayer) SetListener(l readaloud.PlayerListener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// Enqueue implements readaloud.Player.
func (m *MockPlayer) Enqueue(item readaloud.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	m.queue = append(m.queue, item)
	return nil
}

// Clear implements readaloud.Player.
func (m *MockPlayer) Clear() {
	m.mu.Lock()
	m.ClearCalls++
	m.queue = nil
	m.index = 0
	m.playing = false
	m.paused = false
	m.finished = false
	m.mu.Unlock()
}

// Finish implements readaloud.Player.
func (m *MockPlayer) Finish() {
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
}

// Play implements readaloud.Player.
func (m *MockPlayer) Play() error {
	m.mu.Lock()
	m.PlayCalls++
	m.playing = true
	m.paused = false
	m.mu.Unlock()
	return nil
}

// Pause implements readaloud.Player.
func (m *MockPlayer) Pause() {
	m.mu.Lock()
	m.PauseCalls++
	m.paused = true
	m.mu.Unlock()
}

// Resume implements readaloud.Player.
func (m *MockPlayer) Resume() {
	m.mu.Lock()
	m.ResumeCalls++
	m.paused = false
	m.mu.Unlock()
}

// SetSpeed implements readaloud.Player.
func (m *MockPlayer) SetSpeed(multiplier float64) {
	m.mu.Lock()
	m.speed = multiplier
	m.mu.Unlock()
}

// CurrentIndex implements readaloud.Player.
func (m *MockPlayer) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// State implements readaloud.Player.
func (m *MockPlayer) State() readaloud.PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsPlaying implements readaloud.Player.
func (m *MockPlayer) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing && !m.paused
}

// Close implements readaloud.Player.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Queue returns a copy of the queued items.
func (m *MockPlayer) Queue() []readaloud.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]readaloud.QueueItem, len(m.queue))
	copy(out, m.queue)
	return out
}

// Speed returns the last speed set.
func (m *MockPlayer) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// Finished reports whether Finish was called since the last Clear.
func (m *MockPlayer) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// AdvanceTo moves the current item index and fires the item
// transition callback, as the real player does between items.
func (m *MockPlayer) AdvanceTo(index int) {
	m.mu.Lock()
	m.index = index
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener.OnItemTransition(index)
	}
}

// ReportState sets the state and fires the state callback.
func (m *MockPlayer) ReportState(s readaloud.PlayerState) {
	m.mu.Lock()
	m.state = s
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener.OnStateChanged(s)
	}
}

// ReportError fires the playback error callback.
func (m *MockPlayer) ReportError(index int, err error) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener.OnPlaybackError(index, err)
	}
}
