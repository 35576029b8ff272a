// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/consensus-engine/cliparse"
)

type Type string

const (
	TypeVoteCast         Type = "vote.cast"
	TypeConsensusChanged Type = "consensus.changed"
	TypeStateChanged     Type = "proposal.state_changed"
	TypeMemberRemoved    Type = "group.member_removed"
)

// Event is the envelope written to the broker as JSON.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	At          time.Time `json:"at"`
	ProposalID  int64     `json:"proposal_id,omitempty"`
	GroupID     int64     `json:"group_id,omitempty"`
	UserID      int64     `json:"user_id,omitempty"`
	ChoiceID    int64     `json:"choice_id,omitempty"`
	ConsensusID *int64    `json:"consensus_id,omitempty"`
	State       string    `json:"state,omitempty"`
	Proposals   []int64   `json:"proposals,omitempty"`
}

func New(t Type, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, At: at.UTC()}
}

// Key partitions events so one proposal's events stay ordered.
func (e Event) Key() string {
	if e.ProposalID != 0 {
		return "proposal:" + strconv.FormatInt(e.ProposalID, 10)
	}
	return "group:" + strconv.FormatInt(e.GroupID, 10)
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// FromConfig builds the publisher selected by cfg.EventsBroker.
func FromConfig(cfg cliparse.Config) (Publisher, error) {
	switch cfg.EventsBroker {
	case "", "none":
		return Noop{}, nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
	default:
		return nil, fmt.Errorf("unknown events broker %q", cfg.EventsBroker)
	}
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t in publish order.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
