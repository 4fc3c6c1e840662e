package models

import (
	"testing"
)

func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine(PositionTQQQ)
	if sm.Current() != PositionTQQQ {
		t.Errorf("expected current state %s, got %s", PositionTQQQ, sm.Current())
	}

	// Invalid start positions fall back to CASH.
	sm = NewStateMachine(Position("MARGIN"))
	if sm.Current() != PositionCash {
		t.Errorf("expected fallback to %s, got %s", PositionCash, sm.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from      Position
		to        Position
		condition string
		wantErr   bool
	}{
		{"buy out of cash", PositionCash, PositionTQQQ, ConditionBuyTriggered, false},
		{"sell out of tqqq", PositionTQQQ, PositionCash, ConditionSellTriggered, false},
		{"buy while holding", PositionTQQQ, PositionTQQQ, ConditionBuyTriggered, true},
		{"sell while in cash", PositionCash, PositionCash, ConditionSellTriggered, true},
		{"buy with sell condition", PositionCash, PositionTQQQ, ConditionSellTriggered, true},
		{"sell with buy condition", PositionTQQQ, PositionCash, ConditionBuyTriggered, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(tt.from)
			err := sm.Transition(tt.to, tt.condition)
			if tt.wantErr && err == nil {
				t.Errorf("expected error for %s -> %s (%s)", tt.from, tt.to, tt.condition)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTransitionUpdatesState(t *testing.T) {
	sm := NewStateMachine(PositionCash)

	if err := sm.Transition(PositionTQQQ, ConditionBuyTriggered); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if sm.Current() != PositionTQQQ {
		t.Errorf("expected current %s, got %s", PositionTQQQ, sm.Current())
	}
	if sm.Previous() != PositionCash {
		t.Errorf("expected previous %s, got %s", PositionCash, sm.Previous())
	}
	if sm.TransitionCount(PositionTQQQ) != 1 {
		t.Errorf("expected 1 entry into TQQQ, got %d", sm.TransitionCount(PositionTQQQ))
	}

	if err := sm.Transition(PositionCash, ConditionSellTriggered); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if sm.Current() != PositionCash {
		t.Errorf("expected current %s, got %s", PositionCash, sm.Current())
	}
	if sm.TransitionCount(PositionCash) != 1 {
		t.Errorf("expected 1 entry into CASH, got %d", sm.TransitionCount(PositionCash))
	}
}

func TestInvalidTransitionLeavesStateUntouched(t *testing.T) {
	sm := NewStateMachine(PositionCash)

	if err := sm.Transition(PositionCash, ConditionSellTriggered); err == nil {
		t.Fatal("expected error for sell while in cash")
	}
	if sm.Current() != PositionCash {
		t.Errorf("state changed on invalid transition: %s", sm.Current())
	}
	if sm.TransitionCount(PositionCash) != 0 {
		t.Errorf("count changed on invalid transition: %d", sm.TransitionCount(PositionCash))
	}
}

func TestStateDescription(t *testing.T) {
	if desc := NewStateMachine(PositionCash).StateDescription(); desc == "" {
		t.Error("expected non-empty description for CASH")
	}
	if desc := NewStateMachine(PositionTQQQ).StateDescription(); desc == "" {
		t.Error("expected non-empty description for TQQQ")
	}
}
