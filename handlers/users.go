// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/consensus-engine/auth"
	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
)

type UserHandler struct {
	deps Deps
	cfg  cliparse.Config
}

func NewUserHandler(deps Deps, cfg cliparse.Config) *UserHandler {
	return &UserHandler{deps: deps.WithDefaults(), cfg: cfg}
}

// CreateUser handles POST /users and returns a bearer token for the new user.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	user, err := h.deps.Engine.CreateUser(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err, "create user")
		return
	}

	token, err := auth.IssueToken(user.ID, h.cfg.TokenSecret, h.cfg.TokenTTL, time.Now())
	if err != nil {
		slog.Error("failed to issue token", "user_id", user.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	slog.Info("user created", "user_id", user.ID, "username", user.Username)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateUserResponse{
		User:  user,
		Token: token,
	})
}

// GetMe handles GET /me: the caller, their open invite count and groups.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	e := h.deps.Engine

	user, err := e.GetUser(ctx, userID)
	if err != nil {
		writeError(w, r, err, "load user")
		return
	}
	invites, err := e.OpenInviteCount(ctx, userID)
	if err != nil {
		writeError(w, r, err, "count invites")
		return
	}
	groups, err := e.GroupsForMember(ctx, userID)
	if err != nil {
		writeError(w, r, err, "list groups")
		return
	}
	owned, err := e.GroupsOwned(ctx, userID)
	if err != nil {
		writeError(w, r, err, "list groups")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.MeResponse{
		User:        user,
		OpenInvites: invites,
		Groups:      groups,
		OwnedGroups: owned,
	})
}
