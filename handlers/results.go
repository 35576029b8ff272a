// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
)

type ResultsHandler struct {
	deps Deps
	cfg  cliparse.Config
}

func NewResultsHandler(deps Deps, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{deps: deps.WithDefaults(), cfg: cfg}
}

// visibleProposal loads the proposal at {id} and checks the caller may see
// it. It writes the error response itself.
func (h *ResultsHandler) visibleProposal(w http.ResponseWriter, r *http.Request) (models.Proposal, bool) {
	userID, ok := caller(w, r)
	if !ok {
		return models.Proposal{}, false
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return models.Proposal{}, false
	}

	p, err := h.deps.Engine.GetProposal(r.Context(), proposalID)
	if err != nil {
		writeError(w, r, err, "load proposal")
		return models.Proposal{}, false
	}
	visible, err := canView(r.Context(), h.deps.Engine, p, userID)
	if err != nil {
		writeError(w, r, err, "load proposal")
		return models.Proposal{}, false
	}
	if !visible {
		middleware.ErrorResponse(w, http.StatusForbidden, "Not a member of this proposal's group")
		return models.Proposal{}, false
	}
	return p, true
}

// Spread handles GET /proposals/{id}/spread[?date=YYYY-MM-DD]. Without a
// date the live counts are used; with one, the last snapshot of that day.
func (h *ResultsHandler) Spread(w http.ResponseWriter, r *http.Request) {
	p, ok := h.visibleProposal(w, r)
	if !ok {
		return
	}
	date, err := parseDate(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	ctx := r.Context()

	cacheable := date == nil || dayEnded(*date, time.Now())
	if cacheable {
		spread, hit, err := h.deps.Spreads.Get(ctx, p.ID, date)
		if err != nil {
			slog.Warn("spread cache read failed", "proposal_id", p.ID, "error", err)
		}
		h.deps.Metrics.ObserveCache(hit)
		if hit {
			middleware.JSONResponse(w, http.StatusOK, spread)
			return
		}
	}

	spread, err := h.deps.Engine.VotingSpread(ctx, p.ID, date)
	if err != nil {
		writeError(w, r, err, "compute spread")
		return
	}

	if cacheable {
		if err := h.deps.Spreads.Set(ctx, p.ID, date, spread); err != nil {
			slog.Warn("spread cache write failed", "proposal_id", p.ID, "error", err)
		}
	}
	middleware.JSONResponse(w, http.StatusOK, spread)
}

// dayEnded reports whether the UTC day of date is over, after which its
// snapshots can no longer change.
func dayEnded(date, now time.Time) bool {
	y, m, d := date.UTC().Date()
	return !now.UTC().Before(time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC))
}

// Consensus handles GET /proposals/{id}/consensus[?date=YYYY-MM-DD|first].
// Without a date the current distribution is built but not stored.
func (h *ResultsHandler) Consensus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.visibleProposal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	e := h.deps.Engine

	var snap models.ConsensusHistory
	var err error
	switch raw := r.URL.Query().Get("date"); raw {
	case "":
		snap, err = e.BuildSnapshot(ctx, p.ID)
	case "first":
		snap, err = e.EarliestSnapshot(ctx, p.ID)
	default:
		date, perr := parseDate(r)
		if perr != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD or first")
			return
		}
		snap, err = e.ConsensusAtDate(ctx, p.ID, *date)
	}
	if err != nil {
		writeError(w, r, err, "load consensus")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, historyItem(snap))
}

// History handles GET /proposals/{id}/history: every snapshot, oldest first.
func (h *ResultsHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := h.visibleProposal(w, r)
	if !ok {
		return
	}

	history, err := h.deps.Engine.History(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err, "load history")
		return
	}

	items := make([]models.HistoryItem, 0, len(history))
	for _, snap := range history {
		items = append(items, historyItem(snap))
	}
	middleware.JSONResponse(w, http.StatusOK, items)
}

func historyItem(snap models.ConsensusHistory) models.HistoryItem {
	return models.HistoryItem{
		ID:           snap.ID,
		SnapshotDate: snap.SnapshotDate,
		Recorded:     humanize.Time(snap.SnapshotDate),
		ConsensusID:  snap.ConsensusID,
		Entries:      snap.Entries,
	}
}
