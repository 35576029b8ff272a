// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"
	"strings"

	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/handlers"
	"github.com/danielhkuo/consensus-engine/middleware"
)

func NewRouter(deps handlers.Deps, cfg cliparse.Config) *http.ServeMux {
	deps = deps.WithDefaults()
	mux := http.NewServeMux()

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps, cfg)
	groupHandler := handlers.NewGroupHandler(deps, cfg)
	proposalHandler := handlers.NewProposalHandler(deps, cfg)
	votingHandler := handlers.NewVotingHandler(deps, cfg)
	resultsHandler := handlers.NewResultsHandler(deps, cfg)
	templateHandler := handlers.NewTemplateHandler(deps, cfg)

	// public registers a route that needs no token.
	public := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, middleware.WithLogging(
			middleware.WithMetrics(deps.Metrics, route(pattern), h)))
	}
	// authed registers a route behind bearer token authentication.
	authed := func(pattern string, h http.HandlerFunc) {
		public(pattern, middleware.RequireUser(cfg, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	// Users
	public("POST /users", userHandler.CreateUser)
	authed("GET /me", userHandler.GetMe)

	// Groups and membership
	authed("POST /groups", groupHandler.CreateGroup)
	authed("GET /groups/{id}", groupHandler.GetGroup)
	authed("PUT /groups/{id}", groupHandler.EditGroup)
	authed("GET /groups/{id}/proposals", groupHandler.GroupProposals)
	authed("POST /groups/{id}/invites", groupHandler.Invite)
	authed("DELETE /groups/{id}/members/{userID}", groupHandler.RemoveMember)
	authed("GET /invites", groupHandler.MyInvites)
	authed("POST /invites/{id}/accept", groupHandler.AcceptInvite)
	authed("POST /invites/{id}/decline", groupHandler.DeclineInvite)

	// Proposal lifecycle
	authed("POST /proposals", proposalHandler.CreateProposal)
	authed("GET /proposals/mine", proposalHandler.ListMine)
	authed("GET /proposals/{id}", proposalHandler.GetProposal)
	authed("PUT /proposals/{id}", proposalHandler.EditProposal)
	authed("POST /proposals/{id}/choices", proposalHandler.AddChoice)
	authed("POST /proposals/{id}/template", proposalHandler.ApplyTemplate)
	authed("POST /proposals/{id}/state", proposalHandler.ChangeState)
	authed("PUT /choices/{id}", proposalHandler.EditChoice)
	authed("DELETE /choices/{id}", proposalHandler.DeactivateChoice)

	// Voting
	authed("POST /choices/{id}/vote", votingHandler.Vote)
	authed("GET /votes/mine", votingHandler.MyVotes)

	// Results
	authed("GET /proposals/{id}/spread", resultsHandler.Spread)
	authed("GET /proposals/{id}/consensus", resultsHandler.Consensus)
	authed("GET /proposals/{id}/history", resultsHandler.History)

	// Templates
	public("GET /templates", templateHandler.List)
	public("GET /templates/{name}", templateHandler.Get)

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("consensus-engine API v1"))
	})

	return mux
}

// route strips the method from a pattern for use as a metrics label.
func route(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
