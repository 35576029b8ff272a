// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain, request, and response types for the API.

# Proposal States

Proposals move forward through a fixed transition table:

	draft     → trial, published, on_hold, archived
	trial     → published, on_hold, archived
	published → on_hold, archived
	on_hold   → published, archived
	archived  → (terminal)

Nothing ever moves back to draft. States serialize as their names:

	StateDraft     = "draft"
	StateTrial     = "trial"
	StatePublished = "published"
	StateOnHold    = "on_hold"
	StateArchived  = "archived"

ReportingState collapses on_hold and archived into published, so results
gathered while a proposal was live stay visible after it is held or archived.

# Domain Types

  - ProposalGroup: named collection of proposals with an owner
  - GroupMembership: user in a group, with the can_trial flag
  - GroupInvite: pending (Accepted == nil), accepted or declined invitation
  - Proposal: the decision under consideration
  - ProposalChoice: one option; inactive once DeactivatedAt is set
  - ChoiceTicket: one vote; Current marks the user's live vote
  - ConsensusHistory: immutable snapshot of the vote distribution

# Request Types

  - CreateUserRequest: username
  - CreateGroupRequest: name, description
  - InviteRequest: invitee_id, allow_trials
  - CreateProposalRequest: name, description, group_id, template
  - ChoiceRequest: text, priority
  - ChangeStateRequest: state, default_choices

# Response Types

  - CreateUserResponse: user, token
  - ProposalDetail: proposal, active choices, caller's vote, consensus
  - VoteResponse: ticket_id, consensus, consensus_changed, snapshot_id
  - HistoryItem: a snapshot with a human-readable age
  - ErrorResponse: error, message
*/
package models
