package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the turn phase of a game.
type Phase int

const (
	Idle Phase = iota
	Presenting
	AwaitingInput
	RoundSuccess
	GameOver
)

var phaseNames = map[Phase]string{
	Idle:          "idle",
	Presenting:    "presenting",
	AwaitingInput: "awaiting_input",
	RoundSuccess:  "round_success",
	GameOver:      "game_over",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return Idle, fmt.Errorf("unknown phase %q", s)
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	Current() Phase
	AddTransition(from Phase, to Phase, condition func() bool)
}

// Machine only permits transitions that were registered with AddTransition.
type Machine struct {
	current     Phase
	transitions map[Phase]map[Phase]func() bool // from -> to -> condition
	mutex       sync.RWMutex
}

func NewMachine(initial Phase) *Machine {
	return &Machine{
		current:     initial,
		transitions: make(map[Phase]map[Phase]func() bool),
	}
}

// NewGameMachine returns a machine in Idle with the Simon transition table.
// Presenting is reachable from every phase because start doubles as restart.
func NewGameMachine() *Machine {
	sm := NewMachine(Idle)
	for _, from := range []Phase{Idle, Presenting, AwaitingInput, RoundSuccess, GameOver} {
		sm.AddTransition(from, Presenting, nil)
	}
	sm.AddTransition(Presenting, AwaitingInput, nil)
	sm.AddTransition(AwaitingInput, RoundSuccess, nil)
	sm.AddTransition(AwaitingInput, GameOver, nil)
	return sm
}

// ChangeState moves to the target phase, or returns ErrTransitionNotAllowed.
func (sm *Machine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	conditions, exists := sm.transitions[sm.current]
	if !exists {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, sm.current, to)
	}
	condition, exists := conditions[to]
	if !exists || (condition != nil && !condition()) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, sm.current, to)
	}

	sm.current = to
	return nil
}

func (sm *Machine) Current() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.current
}

// AddTransition registers from -> to. A nil condition always allows it.
func (sm *Machine) AddTransition(from Phase, to Phase, condition func() bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
}
