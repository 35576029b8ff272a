// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
)

type GroupHandler struct {
	deps Deps
	cfg  cliparse.Config
}

func NewGroupHandler(deps Deps, cfg cliparse.Config) *GroupHandler {
	return &GroupHandler{deps: deps.WithDefaults(), cfg: cfg}
}

// CreateGroup handles POST /groups. The caller becomes owner and first member.
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req models.CreateGroupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	group, err := h.deps.Engine.CreateGroup(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err, "create group")
		return
	}

	slog.Info("group created", "group_id", group.ID, "owner_id", userID)
	middleware.JSONResponse(w, http.StatusCreated, group)
}

// GetGroup handles GET /groups/{id}. Only members may see the roster.
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	group, err := h.deps.Engine.GetGroup(ctx, groupID)
	if err != nil {
		writeError(w, r, err, "load group")
		return
	}
	member, err := h.deps.Engine.IsUserMember(ctx, groupID, userID)
	if err != nil {
		writeError(w, r, err, "load group")
		return
	}
	if !member {
		middleware.ErrorResponse(w, http.StatusForbidden, "Not a member of this group")
		return
	}

	members, err := h.deps.Engine.Members(ctx, groupID)
	if err != nil {
		writeError(w, r, err, "list members")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.GroupDetail{
		Group:     group,
		ShortName: group.ShortName(),
		Members:   members,
	})
}

// EditGroup handles PUT /groups/{id} (owner only).
func (h *GroupHandler) EditGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.EditGroupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	group, err := h.deps.Engine.EditGroup(r.Context(), groupID, userID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err, "edit group")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, group)
}

// GroupProposals handles GET /groups/{id}/proposals?state=published,on_hold.
// Without a filter only PUBLISHED proposals are listed.
func (h *GroupHandler) GroupProposals(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	states, err := parseStates(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	member, err := h.deps.Engine.IsUserMember(ctx, groupID, userID)
	if err != nil {
		writeError(w, r, err, "list proposals")
		return
	}
	if !member {
		middleware.ErrorResponse(w, http.StatusForbidden, "Not a member of this group")
		return
	}

	proposals, err := h.deps.Engine.ProposalsInGroup(ctx, groupID, states...)
	if err != nil {
		writeError(w, r, err, "list proposals")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, proposals)
}

// Invite handles POST /groups/{id}/invites.
func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.InviteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.InviteeID <= 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "invitee_id is required")
		return
	}

	invite, err := h.deps.Engine.InviteUser(r.Context(), groupID, userID, req.InviteeID, req.AllowTrials)
	if err != nil {
		writeError(w, r, err, "invite user")
		return
	}

	slog.Info("user invited", "group_id", groupID, "invitee_id", req.InviteeID, "inviter_id", userID)
	middleware.JSONResponse(w, http.StatusCreated, invite)
}

// RemoveMember handles DELETE /groups/{id}/members/{userID}. The removed
// user's votes stop counting and every affected proposal is recomputed.
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	affected, err := h.deps.Engine.RemoveMember(r.Context(), groupID, actorID, memberID)
	if err != nil {
		writeError(w, r, err, "remove member")
		return
	}

	slog.Info("member removed", "group_id", groupID, "user_id", memberID, "recomputed", len(affected))

	h.deps.invalidate(r, affected...)
	ev := events.New(events.TypeMemberRemoved, time.Now())
	ev.GroupID = groupID
	ev.UserID = memberID
	ev.Proposals = affected
	h.deps.publish(r, ev)

	if affected == nil {
		affected = []int64{}
	}
	middleware.JSONResponse(w, http.StatusOK, models.RemoveMemberResponse{RecomputedProposals: affected})
}

// MyInvites handles GET /invites: the caller's open invites, newest first.
func (h *GroupHandler) MyInvites(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	invites, err := h.deps.Engine.OpenInvites(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "list invites")
		return
	}
	if invites == nil {
		invites = []models.GroupInvite{}
	}
	middleware.JSONResponse(w, http.StatusOK, invites)
}

// AcceptInvite handles POST /invites/{id}/accept.
func (h *GroupHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.deps.Engine.AcceptInvite, "accept invite")
}

// DeclineInvite handles POST /invites/{id}/decline.
func (h *GroupHandler) DeclineInvite(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.deps.Engine.DeclineInvite, "decline invite")
}

type resolveFunc func(ctx context.Context, inviteID, userID int64) (models.GroupInvite, error)

func (h *GroupHandler) resolve(w http.ResponseWriter, r *http.Request, fn resolveFunc, action string) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	inviteID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	invite, err := fn(r.Context(), inviteID, userID)
	if err != nil {
		writeError(w, r, err, action)
		return
	}

	slog.Info("invite resolved", "invite_id", inviteID, "accepted", *invite.Accepted)
	middleware.JSONResponse(w, http.StatusOK, invite)
}
