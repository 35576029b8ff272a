// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
)

type VotingHandler struct {
	deps Deps
	cfg  cliparse.Config
}

func NewVotingHandler(deps Deps, cfg cliparse.Config) *VotingHandler {
	return &VotingHandler{deps: deps.WithDefaults(), cfg: cfg}
}

// Vote handles POST /choices/{id}/vote. A new vote supersedes the caller's
// previous one on the same proposal.
func (h *VotingHandler) Vote(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	choiceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.deps.Engine.Vote(r.Context(), choiceID, userID)
	if err != nil {
		writeError(w, r, err, "record vote")
		return
	}

	ticket := res.Ticket
	slog.Info("vote recorded",
		"proposal_id", ticket.ProposalID,
		"choice_id", choiceID,
		"user_id", userID,
		"state", ticket.State,
		"consensus_changed", res.ConsensusChanged,
	)

	h.deps.Metrics.ObserveVote(res.ConsensusChanged)
	h.deps.invalidate(r, ticket.ProposalID)

	cast := events.New(events.TypeVoteCast, ticket.ChosenAt)
	cast.ProposalID = ticket.ProposalID
	cast.ChoiceID = choiceID
	cast.UserID = userID
	cast.State = ticket.State.String()
	evs := []events.Event{cast}
	if res.ConsensusChanged {
		changed := events.New(events.TypeConsensusChanged, ticket.ChosenAt)
		changed.ProposalID = ticket.ProposalID
		changed.ConsensusID = consensusID(res.Consensus)
		evs = append(evs, changed)
	}
	h.deps.publish(r, evs...)

	middleware.JSONResponse(w, http.StatusCreated, models.VoteResponse{
		TicketID:         ticket.ID,
		Consensus:        consensusID(res.Consensus),
		ConsensusChanged: res.ConsensusChanged,
		SnapshotID:       res.Snapshot.ID,
	})
}

// MyVotes handles GET /votes/mine: the caller's current votes across all
// proposals, ordered by group then proposal name.
func (h *VotingHandler) MyVotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	votes, err := h.deps.Engine.MyVotes(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "list votes")
		return
	}

	items := make([]models.MyVoteItem, 0, len(votes))
	for _, v := range votes {
		items = append(items, models.MyVoteItem{MyVote: v, Voted: humanize.Time(v.ChosenAt)})
	}
	middleware.JSONResponse(w, http.StatusOK, items)
}
