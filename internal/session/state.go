package session

import "slices"

// State 会话状态
type State int

const (
	StateIdle State = iota
	StateBuffering
	StateSynthesizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBuffering:
		return "Buffering"
	case StateSynthesizing:
		return "Synthesizing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var validTransitions = map[State][]State{
	StateIdle:         {StateBuffering, StateClosed},
	StateBuffering:    {StateSynthesizing, StateIdle, StateClosed},
	StateSynthesizing: {StateBuffering, StateIdle, StateClosed},
}

// StateMachine 状态机，调用方负责加锁
type StateMachine struct {
	currentState State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{currentState: StateIdle}
}

// CanTransition 检查是否可以转换
func (sm *StateMachine) CanTransition(to State) bool {
	return slices.Contains(validTransitions[sm.currentState], to)
}

// Transition 状态转换
func (sm *StateMachine) Transition(to State) bool {
	if sm.CanTransition(to) {
		sm.currentState = to
		return true
	}
	return false
}

// Reset returns to Idle from any state but Closed.
func (sm *StateMachine) Reset() bool {
	if sm.currentState == StateClosed {
		return false
	}
	sm.currentState = StateIdle
	return true
}

func (sm *StateMachine) GetCurrentState() State {
	return sm.currentState
}
