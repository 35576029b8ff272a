// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"fmt"
	"strings"
)

// ProposalState is the lifecycle position of a proposal.
// The numeric values are persisted and must not be reordered.
type ProposalState int

const (
	StateDraft ProposalState = iota
	StateTrial
	StatePublished
	StateOnHold
	StateArchived
)

var stateNames = map[ProposalState]string{
	StateDraft:     "draft",
	StateTrial:     "trial",
	StatePublished: "published",
	StateOnHold:    "on_hold",
	StateArchived:  "archived",
}

// AllStates lists every state in forward order.
var AllStates = []ProposalState{StateDraft, StateTrial, StatePublished, StateOnHold, StateArchived}

var nextStates = map[ProposalState][]ProposalState{
	StateDraft:     {StateTrial, StatePublished, StateOnHold, StateArchived},
	StateTrial:     {StatePublished, StateOnHold, StateArchived},
	StatePublished: {StateOnHold, StateArchived},
	StateOnHold:    {StatePublished, StateArchived},
	StateArchived:  {},
}

func (s ProposalState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid reports whether s is one of the known states.
func (s ProposalState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// NextStates returns the states s may legally move to. DRAFT is never among them.
func (s ProposalState) NextStates() []ProposalState {
	next := nextStates[s]
	out := make([]ProposalState, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether next is in the legal-next-state set of s.
func (s ProposalState) CanTransitionTo(next ProposalState) bool {
	for _, candidate := range nextStates[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ReportingState returns the state used to scope vote counts.
// ON_HOLD and ARCHIVED proposals keep showing the results gathered while PUBLISHED.
func ReportingState(s ProposalState) ProposalState {
	switch s {
	case StateOnHold, StateArchived:
		return StatePublished
	default:
		return s
	}
}

// ParseProposalState accepts the state name ("published", "on-hold", "ON_HOLD").
func ParseProposalState(name string) (ProposalState, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for state, stateName := range stateNames {
		if stateName == normalized {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown proposal state %q", name)
}

func (s ProposalState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid proposal state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ProposalState) UnmarshalText(text []byte) error {
	parsed, err := ParseProposalState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
