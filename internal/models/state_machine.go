package models

import (
	"fmt"
	"time"
)

// Transition conditions. The rule only fires on a threshold crossing, so
// every transition is gated on exactly one condition.
const (
	ConditionBuyTriggered  = "buy_triggered"
	ConditionSellTriggered = "sell_triggered"
)

// StateTransition defines a valid position transition.
type StateTransition struct {
	From        Position
	To          Position
	Condition   string
	Description string
}

// ValidTransitions is the complete transition table. Two states, two guarded
// edges: BUY only out of CASH, SELL only out of TQQQ.
var ValidTransitions = []StateTransition{
	{PositionCash, PositionTQQQ, ConditionBuyTriggered, "Close at or above the buy threshold"},
	{PositionTQQQ, PositionCash, ConditionSellTriggered, "Close at or below the sell threshold"},
}

// StateMachine manages position transitions between runs.
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[Position]int
	currentState    Position
	previousState   Position
}

// NewStateMachine creates a state machine starting from the given position.
// An invalid start position falls back to CASH.
func NewStateMachine(start Position) *StateMachine {
	if !start.Valid() {
		start = PositionCash
	}
	return &StateMachine{
		currentState:    start,
		previousState:   start,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[Position]int),
	}
}

// Current returns the current position.
func (sm *StateMachine) Current() Position {
	return sm.currentState
}

// Previous returns the position before the last transition.
func (sm *StateMachine) Previous() Position {
	return sm.previousState
}

// TransitionTime returns when the last transition happened.
func (sm *StateMachine) TransitionTime() time.Time {
	return sm.transitionTime
}

// IsValidTransition checks whether moving to the given position under the
// given condition is allowed from the current state.
func (sm *StateMachine) IsValidTransition(to Position, condition string) error {
	for _, tr := range ValidTransitions {
		if tr.From == sm.currentState && tr.To == to && tr.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition %q",
		sm.currentState, to, condition)
}

// Transition moves to a new position after validating the edge.
func (sm *StateMachine) Transition(to Position, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// TransitionCount returns how many times the machine has entered a position.
func (sm *StateMachine) TransitionCount(p Position) int {
	return sm.transitionCount[p]
}

// StateDescription returns a human-readable description of the current state.
func (sm *StateMachine) StateDescription() string {
	switch sm.currentState {
	case PositionCash:
		return "In cash, waiting for the close to reach the buy threshold"
	case PositionTQQQ:
		return "Holding TQQQ, waiting for the close to reach the sell threshold"
	default:
		return "Unknown state"
	}
}
