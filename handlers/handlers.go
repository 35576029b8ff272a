// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/consensus-engine/cache"
	"github.com/danielhkuo/consensus-engine/engine"
	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/metrics"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
	"github.com/danielhkuo/consensus-engine/templates"
)

const publishTimeout = 2 * time.Second

// Deps are the collaborators shared by every handler.
type Deps struct {
	Engine    *engine.Engine
	Templates *templates.Registry
	Events    events.Publisher
	Spreads   cache.SpreadCache
	Metrics   *metrics.Metrics
}

// WithDefaults fills optional collaborators with no-op implementations.
func (d Deps) WithDefaults() Deps {
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	if d.Spreads == nil {
		d.Spreads = cache.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Templates == nil {
		reg, err := templates.Builtin()
		if err != nil {
			panic(fmt.Sprintf("embedded templates: %v", err))
		}
		d.Templates = reg
	}
	return d
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, templates.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDataConflict),
		errors.Is(err, engine.ErrProposalStateInvalid),
		errors.Is(err, engine.ErrDefaultChoicesConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status for err. Unexpected errors are
// logged and their detail withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("failed to "+action, "request_id", middleware.RequestID(r.Context()), "error", err)
		middleware.ErrorResponse(w, status, "Failed to "+action)
		return
	}
	middleware.ErrorResponse(w, status, err.Error())
}

// caller returns the authenticated user or answers 401.
func caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
	}
	return userID, ok
}

// pathID parses a numeric path parameter or answers 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseStates reads a comma-separated ?state= filter.
func parseStates(r *http.Request) ([]models.ProposalState, error) {
	raw := r.URL.Query().Get("state")
	if raw == "" {
		return nil, nil
	}
	var states []models.ProposalState
	for _, name := range strings.Split(raw, ",") {
		s, err := models.ParseProposalState(name)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

// parseDate reads an optional ?date=YYYY-MM-DD as a UTC day.
func parseDate(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// canView allows anyone to see ungrouped proposals and members to see
// grouped ones.
func canView(ctx context.Context, e *engine.Engine, p models.Proposal, userID int64) (bool, error) {
	if p.GroupID == nil || p.OwnerID == userID {
		return true, nil
	}
	return e.IsUserMember(ctx, *p.GroupID, userID)
}

// publish sends events after the request's writes have committed. Failures
// are logged and counted; they never fail the request.
func (d Deps) publish(r *http.Request, evs ...events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
	defer cancel()

	for _, e := range evs {
		if err := d.Events.Publish(ctx, e); err != nil {
			d.Metrics.EventsFailed.Inc()
			slog.Warn("event publish failed",
				"request_id", middleware.RequestID(r.Context()),
				"type", e.Type,
				"error", err,
			)
		}
	}
}

// invalidate drops cached live spreads for the given proposals.
func (d Deps) invalidate(r *http.Request, proposalIDs ...int64) {
	for _, id := range proposalIDs {
		if err := d.Spreads.Invalidate(r.Context(), id); err != nil {
			slog.Warn("spread cache invalidation failed", "proposal_id", id, "error", err)
		}
	}
}

func consensusID(c *models.ProposalChoice) *int64 {
	if c == nil {
		return nil
	}
	id := c.ID
	return &id
}
