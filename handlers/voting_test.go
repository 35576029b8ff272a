// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/models"
	"github.com/danielhkuo/consensus-engine/testutil"
)

func TestVote(t *testing.T) {
	env := newTestEnv(t)
	h := NewVotingHandler(env.deps, env.cfg)
	owner, alice, _, p, choices := env.publishedGroupProposal()
	yes, no := idStr(choices[0].ID), idStr(choices[1].ID)

	// Alice's vote makes Yes the consensus.
	w := env.call(h.Vote, "POST", "/choices/"+yes+"/vote", nil, alice.ID, "id", yes)
	testutil.AssertStatus(t, w, http.StatusCreated)
	var resp models.VoteResponse
	testutil.AssertJSON(t, w, &resp)
	if !resp.ConsensusChanged || resp.Consensus == nil || *resp.Consensus != choices[0].ID {
		t.Errorf("Expected Yes to become consensus, got %+v", resp)
	}
	if resp.TicketID == 0 || resp.SnapshotID == 0 {
		t.Errorf("Expected ticket and snapshot ids, got %+v", resp)
	}

	// The owner's vote for No ties it: no consensus.
	w = env.call(h.Vote, "POST", "/choices/"+no+"/vote", nil, owner.ID, "id", no)
	testutil.AssertStatus(t, w, http.StatusCreated)
	resp = models.VoteResponse{}
	testutil.AssertJSON(t, w, &resp)
	if !resp.ConsensusChanged || resp.Consensus != nil {
		t.Errorf("Expected tie to clear consensus, got %+v", resp)
	}

	// Re-voting the same choice changes nothing.
	w = env.call(h.Vote, "POST", "/choices/"+no+"/vote", nil, owner.ID, "id", no)
	testutil.AssertStatus(t, w, http.StatusCreated)
	resp = models.VoteResponse{}
	testutil.AssertJSON(t, w, &resp)
	if resp.ConsensusChanged {
		t.Error("Expected no consensus change on an identical re-vote")
	}

	if n := len(env.events.OfType(events.TypeVoteCast)); n != 3 {
		t.Errorf("Expected 3 vote.cast events, got %d", n)
	}
	changed := env.events.OfType(events.TypeConsensusChanged)
	if len(changed) != 2 || changed[1].ConsensusID != nil {
		t.Errorf("Unexpected consensus.changed events: %+v", changed)
	}
	if got := promtest.ToFloat64(env.metrics.VotesCast); got != 3 {
		t.Errorf("Expected 3 votes counted, got %v", got)
	}
	if got := promtest.ToFloat64(env.metrics.ConsensusChanges); got != 2 {
		t.Errorf("Expected 2 consensus changes counted, got %v", got)
	}
	if env.spreads.invalidated[p.ID] != 3 {
		t.Errorf("Expected 3 spread invalidations, got %d", env.spreads.invalidated[p.ID])
	}
}

func TestVoteRejected(t *testing.T) {
	env := newTestEnv(t)
	h := NewVotingHandler(env.deps, env.cfg)
	_, _, _, _, choices := env.publishedGroupProposal()
	outsider := testutil.CreateTestUser(t, env.engine, "outsider")
	yes := idStr(choices[0].ID)

	testCases := []struct {
		name       string
		choice     string
		userID     int64
		wantStatus int
	}{
		{"outsider", yes, outsider.ID, http.StatusForbidden},
		{"missing choice", "9999", outsider.ID, http.StatusNotFound},
		{"bad id", "abc", outsider.ID, http.StatusBadRequest},
		{"anonymous", yes, 0, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.call(h.Vote, "POST", "/choices/"+tc.choice+"/vote", nil, tc.userID, "id", tc.choice)
			testutil.AssertStatus(t, w, tc.wantStatus)
		})
	}

	if n := len(env.events.Events()); n != 0 {
		t.Errorf("Expected no events for rejected votes, got %d", n)
	}
}

func TestMyVotes(t *testing.T) {
	env := newTestEnv(t)
	h := NewVotingHandler(env.deps, env.cfg)
	_, alice, _, _, choices := env.publishedGroupProposal()
	no := idStr(choices[1].ID)

	w := env.call(h.MyVotes, "GET", "/votes/mine", nil, alice.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	var items []models.MyVoteItem
	testutil.AssertJSON(t, w, &items)
	if len(items) != 0 {
		t.Errorf("Expected no votes yet, got %d", len(items))
	}

	env.call(h.Vote, "POST", "/choices/"+no+"/vote", nil, alice.ID, "id", no)

	w = env.call(h.MyVotes, "GET", "/votes/mine", nil, alice.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &items)
	if len(items) != 1 {
		t.Fatalf("Expected 1 vote, got %d", len(items))
	}
	if items[0].ChoiceText != "No" || items[0].GroupName != "Team" || items[0].Voted == "" {
		t.Errorf("Unexpected vote item: %+v", items[0])
	}
}
