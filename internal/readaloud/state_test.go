package readaloud

import "testing"

func TestSessionStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []FillState
		ok   bool
	}{
		{"fill to drain", []FillState{FillFilling, FillDraining}, true},
		{"fill to abort", []FillState{FillFilling, FillAborted}, true},
		{"fill cancelled", []FillState{FillFilling, FillIdle}, true},
		{"restart while filling", []FillState{FillFilling, FillFilling}, true},
		{"drain to refill", []FillState{FillFilling, FillDraining, FillFilling}, true},
		{"retry after abort", []FillState{FillFilling, FillAborted, FillFilling}, true},
		{"idle cannot drain", []FillState{FillDraining}, false},
		{"idle cannot abort", []FillState{FillAborted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewSessionState()
			ok := true
			for _, next := range tt.path {
				ok = sm.Transition(next)
				if !ok {
					break
				}
			}
			if ok != tt.ok {
				t.Errorf("transition path %v: got ok=%v, want %v", tt.path, ok, tt.ok)
			}
		})
	}
}

func TestSessionStateOnEnter(t *testing.T) {
	sm := NewSessionState()
	entered := 0
	sm.OnEnter(FillDraining, func() { entered++ })

	sm.Transition(FillFilling)
	sm.Transition(FillDraining)
	if entered != 1 {
		t.Errorf("OnEnter fired %d times, want 1", entered)
	}
	if sm.Current() != FillDraining {
		t.Errorf("Current() = %v, want %v", sm.Current(), FillDraining)
	}
}

func TestFillStateString(t *testing.T) {
	states := map[FillState]string{
		FillIdle:     "idle",
		FillFilling:  "filling",
		FillDraining: "draining",
		FillAborted:  "aborted",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("FillState(%d).String() = %q, want %q", s, got, want)
		}
	}
}
