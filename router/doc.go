// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the consensus engine API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(deps, cfg)

Every API route is wrapped in request logging and latency metrics. Routes
marked (auth) also require a bearer token.

# Endpoints

Operational:

	GET /health  - Liveness check
	GET /metrics - Prometheus metrics

Users:

	POST /users - Sign up, returns a token
	GET  /me    - Caller, open invites and groups (auth)

Groups (auth):

	POST   /groups                       - Create group
	GET    /groups/{id}                  - Group with members
	PUT    /groups/{id}                  - Rename group (owner)
	GET    /groups/{id}/proposals        - Proposals in group, ?state= filter
	POST   /groups/{id}/invites          - Invite a user
	DELETE /groups/{id}/members/{userID} - Remove member and recompute
	GET    /invites                      - Caller's open invites
	POST   /invites/{id}/accept          - Join the group
	POST   /invites/{id}/decline         - Decline

Proposals (auth):

	POST /proposals               - Create draft, optional template
	GET  /proposals/mine          - Caller's proposals, ?state= filter
	GET  /proposals/{id}          - Proposal with choices and votes
	PUT  /proposals/{id}          - Edit while draft or trial
	POST /proposals/{id}/choices  - Add choice
	POST /proposals/{id}/template - Replace choices from a template
	POST /proposals/{id}/state    - Change state
	PUT    /choices/{id}          - Edit choice
	DELETE /choices/{id}          - Deactivate choice

Voting and results (auth):

	POST /choices/{id}/vote        - Cast or move a vote
	GET  /votes/mine               - Caller's current votes
	GET  /proposals/{id}/spread    - Counts and percentages, ?date=
	GET  /proposals/{id}/consensus - Snapshot, ?date=YYYY-MM-DD or first
	GET  /proposals/{id}/history   - All snapshots

Templates:

	GET /templates        - List templates
	GET /templates/{name} - One template
*/
package router
