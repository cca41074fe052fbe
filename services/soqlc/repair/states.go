// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repair

import (
	"fmt"
	"sync"
)

// State of the repair loop for one compilation attempt.
type State string

const (
	// StateStart is the entry state before the first validation.
	StateStart State = "START"
	// StateValid is terminal success: zero blocking diagnostics.
	StateValid State = "VALID"
	// StateRepairable means every current error maps to a deterministic
	// action; another pass will run.
	StateRepairable State = "REPAIRABLE"
	// StateNeedsRegeneration means at least one error has no deterministic
	// fix, or the pass budget ran out; the coder must be re-invoked.
	StateNeedsRegeneration State = "NEEDS_REGENERATION"
	// StateExhausted is terminal failure: both budgets are spent and
	// errors remain.
	StateExhausted State = "EXHAUSTED"
)

// AllStates returns every state, for transition-table initialization.
func AllStates() []State {
	return []State{StateStart, StateValid, StateRepairable, StateNeedsRegeneration, StateExhausted}
}

// IsTerminal reports whether the state ends the compilation.
func (s State) IsTerminal() bool {
	return s == StateValid || s == StateExhausted
}

// StateMachine enforces the repair loop's transition graph:
//
//	START → VALID                        : First validation clean
//	START → REPAIRABLE                   : Errors present, all mapped
//	START → NEEDS_REGENERATION           : Unmappable error on first pass
//	REPAIRABLE → VALID                   : Pass resolved all errors
//	REPAIRABLE → REPAIRABLE              : Pass reduced errors, budget left
//	REPAIRABLE → NEEDS_REGENERATION      : Stalled twice or unmappable error
//	REPAIRABLE → EXHAUSTED               : Pass budget spent
//	NEEDS_REGENERATION → VALID           : Regenerated draft clean
//	NEEDS_REGENERATION → REPAIRABLE      : Regenerated draft has mapped errors
//	NEEDS_REGENERATION → NEEDS_REGENERATION : Regenerated draft unmappable
//	NEEDS_REGENERATION → EXHAUSTED       : Regeneration budget spent
//
// Thread Safety: Safe for concurrent use.
type StateMachine struct {
	mu          sync.RWMutex
	transitions map[State]map[State]bool
}

// NewStateMachine builds the transition table above.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[State]map[State]bool)}
	for _, s := range AllStates() {
		sm.transitions[s] = make(map[State]bool)
	}

	sm.addTransition(StateStart, StateValid)
	sm.addTransition(StateStart, StateRepairable)
	sm.addTransition(StateStart, StateNeedsRegeneration)

	sm.addTransition(StateRepairable, StateValid)
	sm.addTransition(StateRepairable, StateRepairable)
	sm.addTransition(StateRepairable, StateNeedsRegeneration)
	sm.addTransition(StateRepairable, StateExhausted)

	sm.addTransition(StateNeedsRegeneration, StateValid)
	sm.addTransition(StateNeedsRegeneration, StateRepairable)
	sm.addTransition(StateNeedsRegeneration, StateNeedsRegeneration)
	sm.addTransition(StateNeedsRegeneration, StateExhausted)

	return sm
}

func (sm *StateMachine) addTransition(from, to State) {
	sm.transitions[from][to] = true
}

// CanTransition checks whether from → to is in the table.
func (sm *StateMachine) CanTransition(from, to State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition validates and returns the new state.
func (sm *StateMachine) Transition(from, to State) (State, error) {
	if !sm.CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
