package readaloud

import "sync"

// FillState is the download coordinator's per-session state.
type FillState int

const (
	// FillIdle indicates no fill pass is running.
	FillIdle FillState = iota
	// FillFilling indicates a fill pass is walking the segment list.
	FillFilling
	// FillDraining indicates the pass completed and the queue is
	// playing out.
	FillDraining
	// FillAborted indicates the session hit a fatal failure.
	FillAborted
)

// String returns the string representation of the state.
func (s FillState) String() string {
	switch s {
	case FillIdle:
		return "idle"
	case FillFilling:
		return "filling"
	case FillDraining:
		return "draining"
	case FillAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SessionState manages the fill-pass state transitions. It is shared
// between the coordinator goroutine and the player callback goroutine,
// so access is serialized.
type SessionState struct {
	mu          sync.Mutex
	current     FillState
	transitions map[FillState][]FillState
	onEnter     map[FillState]func()
}

// NewSessionState creates a session state machine with the valid
// transitions wired in.
func NewSessionState() *SessionState {
	return &SessionState{
		current: FillIdle,
		transitions: map[FillState][]FillState{
			FillIdle:     {FillFilling},
			FillFilling:  {FillDraining, FillAborted, FillIdle, FillFilling},
			FillDraining: {FillFilling, FillAborted, FillIdle},
			FillAborted:  {FillFilling, FillIdle},
		},
		onEnter: make(map[FillState]func()),
	}
}

// Transition attempts to move to the given state and reports whether
// the move was valid.
func (s *SessionState) Transition(to FillState) bool {
	s.mu.Lock()
	valid := false
	for _, next := range s.transitions[s.current] {
		if next == to {
			valid = true
			break
		}
	}
	if !valid {
		s.mu.Unlock()
		return false
	}
	s.current = to
	enterFn := s.onEnter[to]
	s.mu.Unlock()

	if enterFn != nil {
		enterFn()
	}
	return true
}

// Current returns the current state.
func (s *SessionState) Current() FillState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnEnter registers a callback invoked after entering a state. The
// callback runs outside the state lock.
func (s *SessionState) OnEnter(state FillState, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnter[state] = fn
}
