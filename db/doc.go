// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the store and creates the schema.

# Dialects

PostgreSQL (lib/pq) is the production store; SQLite (modernc.org/sqlite,
pure Go) serves development and tests:

	conn, err := db.Open(db.SQLite, "file:consensus.db")
	if err := db.CreateSchema(conn, db.SQLite); err != nil {
		log.Fatal(err)
	}

Both use $N placeholders, so queries are shared. SQLite URLs get
foreign_keys, busy_timeout and _txlock=immediate added unless present.

# Tables

  - app_user: registered users
  - proposal_group: groups with owner and the has_default_choices flag
  - group_membership: one row per (group, user), with can_trial
  - group_invite: open/accepted/declined invitations
  - proposal: proposals and their lifecycle state
  - proposal_choice: options, soft-deleted via deactivated_at
  - choice_ticket: every vote ever cast; is_current marks live votes
  - consensus_history: append-only vote distribution snapshots

# Relationships

	proposal_group 1──* group_membership *──1 app_user
	proposal_group 1──* group_invite
	proposal_group 1──* proposal 1──* proposal_choice 1──* choice_ticket
	proposal 1──* consensus_history

# Invariants Enforced by Indexes

  - group_membership (group_id, user_id) unique
  - group_invite (group_id, invitee_id) unique WHERE accepted IS NULL
  - choice_ticket (user_id, proposal_id) unique WHERE is_current

IsUniqueViolation recognises violations from either driver so callers can
turn them into domain conflicts.
*/
package db
