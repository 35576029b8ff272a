// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/engine"
	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
)

type ProposalHandler struct {
	deps Deps
	cfg  cliparse.Config
}

func NewProposalHandler(deps Deps, cfg cliparse.Config) *ProposalHandler {
	return &ProposalHandler{deps: deps.WithDefaults(), cfg: cfg}
}

// CreateProposal handles POST /proposals. An optional template seeds the
// choices; the proposal starts in DRAFT.
func (h *ProposalHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.CreateProposalRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var choices []models.TemplateChoice
	if req.Template != "" {
		var err error
		if choices, err = h.deps.Templates.Choices(req.Template); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	p, err := h.deps.Engine.CreateProposal(r.Context(), engine.NewProposal{
		OwnerID:     userID,
		GroupID:     req.GroupID,
		Name:        req.Name,
		Description: req.Description,
		Template:    choices,
	})
	if err != nil {
		writeError(w, r, err, "create proposal")
		return
	}

	slog.Info("proposal created", "proposal_id", p.ID, "owner_id", userID, "template", req.Template)
	middleware.JSONResponse(w, http.StatusCreated, p)
}

// ListMine handles GET /proposals/mine?state=draft,trial. Without a filter
// all states are listed.
func (h *ProposalHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	states, err := parseStates(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	proposals, err := h.deps.Engine.ProposalsOwned(r.Context(), userID, states...)
	if err != nil {
		writeError(w, r, err, "list proposals")
		return
	}
	if proposals == nil {
		proposals = []models.ProposalSummary{}
	}
	middleware.JSONResponse(w, http.StatusOK, proposals)
}

// GetProposal handles GET /proposals/{id}: the proposal, its active choices
// and the caller's view of it.
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	e := h.deps.Engine

	p, err := e.GetProposal(ctx, proposalID)
	if err != nil {
		writeError(w, r, err, "load proposal")
		return
	}
	visible, err := canView(ctx, e, p, userID)
	if err != nil {
		writeError(w, r, err, "load proposal")
		return
	}
	if !visible {
		middleware.ErrorResponse(w, http.StatusForbidden, "Not a member of this proposal's group")
		return
	}

	detail := models.ProposalDetail{
		Proposal:   p,
		CanEdit:    p.UserCanEdit(userID),
		NextStates: []models.ProposalState{},
	}
	if p.OwnerID == userID {
		detail.NextStates = p.State.NextStates()
	}

	if detail.Choices, err = e.ActiveChoices(ctx, proposalID); err != nil {
		writeError(w, r, err, "list choices")
		return
	}
	ticket, err := e.GetCurrentChoice(ctx, userID, proposalID)
	if err != nil {
		writeError(w, r, err, "load vote")
		return
	}
	if ticket != nil {
		detail.CurrentChoice = &ticket.ChoiceID
	}
	consensus, err := e.CurrentConsensus(ctx, proposalID)
	if err != nil {
		writeError(w, r, err, "load consensus")
		return
	}
	detail.Consensus = consensusID(consensus)
	if detail.TotalVotes, err = e.TotalVotes(ctx, proposalID); err != nil {
		writeError(w, r, err, "count votes")
		return
	}
	if detail.CanVote, err = e.CanVote(ctx, p, userID); err != nil {
		writeError(w, r, err, "check eligibility")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, detail)
}

// EditProposal handles PUT /proposals/{id} (owner, DRAFT or TRIAL only).
func (h *ProposalHandler) EditProposal(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.EditProposalRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	p, err := h.deps.Engine.EditProposal(r.Context(), proposalID, userID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err, "edit proposal")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, p)
}

// AddChoice handles POST /proposals/{id}/choices.
func (h *ProposalHandler) AddChoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.ChoiceRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	choice, err := h.deps.Engine.AddChoice(r.Context(), proposalID, userID, req.Text, req.Priority)
	if err != nil {
		writeError(w, r, err, "add choice")
		return
	}

	slog.Info("choice added", "proposal_id", proposalID, "choice_id", choice.ID)
	h.deps.invalidate(r, proposalID)
	middleware.JSONResponse(w, http.StatusCreated, choice)
}

// EditChoice handles PUT /choices/{id}.
func (h *ProposalHandler) EditChoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	choiceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.ChoiceRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	choice, err := h.deps.Engine.EditChoice(r.Context(), choiceID, userID, req.Text, req.Priority)
	if err != nil {
		writeError(w, r, err, "edit choice")
		return
	}
	h.deps.invalidate(r, choice.ProposalID)
	middleware.JSONResponse(w, http.StatusOK, choice)
}

// DeactivateChoice handles DELETE /choices/{id}. The choice is soft-deleted;
// its tickets are kept.
func (h *ProposalHandler) DeactivateChoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	choiceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	choice, err := h.deps.Engine.GetChoice(r.Context(), choiceID)
	if err != nil {
		writeError(w, r, err, "deactivate choice")
		return
	}
	if err := h.deps.Engine.DeactivateChoice(r.Context(), choiceID, userID); err != nil {
		writeError(w, r, err, "deactivate choice")
		return
	}

	h.deps.invalidate(r, choice.ProposalID)
	w.WriteHeader(http.StatusNoContent)
}

// ApplyTemplate handles POST /proposals/{id}/template, replacing the active
// choices with the named template.
func (h *ProposalHandler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.ApplyTemplateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	choices, err := h.deps.Templates.Choices(req.Template)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.deps.Engine.PopulateFromTemplate(ctx, proposalID, userID, choices); err != nil {
		writeError(w, r, err, "apply template")
		return
	}
	active, err := h.deps.Engine.ActiveChoices(ctx, proposalID)
	if err != nil {
		writeError(w, r, err, "list choices")
		return
	}

	h.deps.invalidate(r, proposalID)
	middleware.JSONResponse(w, http.StatusOK, active)
}

// ChangeState handles POST /proposals/{id}/state. Only the owner drives the
// lifecycle; illegal moves answer 409.
func (h *ProposalHandler) ChangeState(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.ChangeStateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ctx := r.Context()
	e := h.deps.Engine
	p, err := e.GetProposal(ctx, proposalID)
	if err != nil {
		writeError(w, r, err, "change state")
		return
	}
	if p.OwnerID != userID {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the owner may change state")
		return
	}

	var resp models.StateChangeResponse
	if req.State == models.StatePublished {
		res, err := e.Publish(ctx, proposalID, req.DefaultChoices)
		if err != nil {
			writeError(w, r, err, "publish proposal")
			return
		}
		resp.Archived = res.Archived
		resp.ClonedChoices = res.ClonedChoices
		resp.Consensus = consensusID(res.Consensus)
	} else if err := e.ChangeState(ctx, proposalID, req.State, req.DefaultChoices); err != nil {
		writeError(w, r, err, "change state")
		return
	}

	if resp.Proposal, err = e.GetProposal(ctx, proposalID); err != nil {
		writeError(w, r, err, "load proposal")
		return
	}

	slog.Info("proposal state changed",
		"proposal_id", proposalID,
		"from", p.State,
		"to", resp.Proposal.State,
		"archived", len(resp.Archived),
	)

	h.deps.Metrics.ObserveTransition(resp.Proposal.State)
	h.deps.invalidate(r, append([]int64{proposalID}, resp.Archived...)...)

	now := time.Now()
	evs := []events.Event{stateEvent(resp.Proposal, now)}
	for _, id := range resp.Archived {
		h.deps.Metrics.ObserveTransition(models.StateArchived)
		archived := models.Proposal{ID: id, GroupID: p.GroupID, State: models.StateArchived}
		evs = append(evs, stateEvent(archived, now))
	}
	h.deps.publish(r, evs...)

	middleware.JSONResponse(w, http.StatusOK, resp)
}

func stateEvent(p models.Proposal, at time.Time) events.Event {
	ev := events.New(events.TypeStateChanged, at)
	ev.ProposalID = p.ID
	if p.GroupID != nil {
		ev.GroupID = *p.GroupID
	}
	ev.State = p.State.String()
	return ev
}
