// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the consensus engine API.

# Handler Types

Each handler is a struct holding the shared Deps and the Config:

  - UserHandler: Sign-up and the caller's overview
  - GroupHandler: Groups, invitations and membership removal
  - ProposalHandler: Proposal editing, choices, templates and state changes
  - VotingHandler: Casting votes and listing the caller's votes
  - ResultsHandler: Vote spread, consensus and snapshot history
  - TemplateHandler: Built-in and configured choice templates

Handlers are created via constructor functions that accept Deps and Config:

	proposalHandler := handlers.NewProposalHandler(deps, cfg)

Deps.Engine is required. Events, Spreads, Metrics and Templates fall back
to no-op or built-in implementations when left nil.

# Authentication

Every route except sign-up and templates expects a bearer token issued by
POST /users. The router wraps handlers in middleware.RequireUser, which
puts the caller's user ID in the request context.

# Errors

Engine errors map to status codes in statusFor:

	ErrPermissionDenied              → 403
	ErrNotFound, unknown template    → 404
	ErrDataConflict and its variants → 409
	ErrProposalStateInvalid          → 409
	ErrDefaultChoicesConflict        → 409
	ErrInvalidInput                  → 400

Anything else is logged and answered with a generic 500.

# Side Effects

After a successful write, handlers invalidate cached spreads of the
affected proposals and publish domain events (vote.cast,
consensus.changed, proposal.state_changed, group.member_removed).
Publishing is best effort: a failure is logged and counted but never
fails the request, since the database transaction has already committed.
*/
package handlers
