// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start and completion with a request_id. An incoming
X-Request-ID is reused, otherwise a UUID is assigned; either way it is
echoed on the response and available via RequestID(ctx).

# Metrics

	middleware.WithMetrics(m, "POST /api/choices/{id}/vote", handler)

Observes latency labelled by method, route pattern and status.

# Authentication

	mux.HandleFunc("POST /api/groups", middleware.RequireUser(cfg, h.CreateGroup))

RequireUser expects "Authorization: Bearer <jwt>" and answers 401
otherwise. Handlers read the caller with UserID(r.Context()).

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.CreateGroupRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# CORS

	server := http.Server{Handler: middleware.CORS(mux)}
*/
package middleware
