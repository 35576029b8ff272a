// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(conn *sql.DB, dialect Dialect) error {
	idType, err := dialect.idColumn()
	if err != nil {
		return err
	}

	// Executed one statement at a time; lib/pq and sqlite both accept that.
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		stmt = strings.ReplaceAll(stmt, "@ID@", idType)
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

const schema = `
-- Users
CREATE TABLE IF NOT EXISTS app_user (
    id @ID@,
    username TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL
);

-- Proposal groups
CREATE TABLE IF NOT EXISTS proposal_group (
    id @ID@,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    owner_id BIGINT REFERENCES app_user(id) ON DELETE SET NULL,
    has_default_choices BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proposal_group_owner ON proposal_group(owner_id);

-- Memberships
CREATE TABLE IF NOT EXISTS group_membership (
    id @ID@,
    group_id BIGINT NOT NULL REFERENCES proposal_group(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    joined_at TIMESTAMP NOT NULL,
    can_trial BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (group_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_group_membership_user ON group_membership(user_id);

-- Invites (accepted: NULL = open, TRUE = accepted, FALSE = declined)
CREATE TABLE IF NOT EXISTS group_invite (
    id @ID@,
    group_id BIGINT NOT NULL REFERENCES proposal_group(id) ON DELETE CASCADE,
    invitee_id BIGINT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    inviter_id BIGINT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    invited_at TIMESTAMP NOT NULL,
    accepted BOOLEAN,
    resolved_at TIMESTAMP,
    can_trial BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_group_invite_open ON group_invite(group_id, invitee_id) WHERE accepted IS NULL;
CREATE INDEX IF NOT EXISTS idx_group_invite_invitee ON group_invite(invitee_id);

-- Proposals (state: 0 draft, 1 trial, 2 published, 3 on hold, 4 archived)
CREATE TABLE IF NOT EXISTS proposal (
    id @ID@,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    proposed_at TIMESTAMP NOT NULL,
    owner_id BIGINT REFERENCES app_user(id) ON DELETE SET NULL,
    group_id BIGINT REFERENCES proposal_group(id) ON DELETE SET NULL,
    state INTEGER NOT NULL DEFAULT 0 CHECK (state BETWEEN 0 AND 4)
);

CREATE INDEX IF NOT EXISTS idx_proposal_owner ON proposal(owner_id);
CREATE INDEX IF NOT EXISTS idx_proposal_group_state ON proposal(group_id, state);

-- Choices (inactive once deactivated_at is set)
CREATE TABLE IF NOT EXISTS proposal_choice (
    id @ID@,
    proposal_id BIGINT NOT NULL REFERENCES proposal(id) ON DELETE CASCADE,
    choice_text TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    activated_at TIMESTAMP NOT NULL,
    deactivated_at TIMESTAMP,
    current_consensus BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_proposal_choice_proposal ON proposal_choice(proposal_id);

-- Tickets (one vote each; history is never deleted)
CREATE TABLE IF NOT EXISTS choice_ticket (
    id @ID@,
    user_id BIGINT REFERENCES app_user(id) ON DELETE SET NULL,
    proposal_id BIGINT NOT NULL REFERENCES proposal(id) ON DELETE CASCADE,
    choice_id BIGINT NOT NULL REFERENCES proposal_choice(id) ON DELETE CASCADE,
    chosen_at TIMESTAMP NOT NULL,
    is_current BOOLEAN NOT NULL DEFAULT TRUE,
    state INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_choice_ticket_current ON choice_ticket(user_id, proposal_id) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_choice_ticket_choice ON choice_ticket(choice_id, is_current, state);
CREATE INDEX IF NOT EXISTS idx_choice_ticket_proposal ON choice_ticket(proposal_id, is_current, state);

-- Consensus history (append-only)
CREATE TABLE IF NOT EXISTS consensus_history (
    id @ID@,
    proposal_id BIGINT NOT NULL REFERENCES proposal(id) ON DELETE CASCADE,
    snapshot_date TIMESTAMP NOT NULL,
    consensus_id BIGINT REFERENCES proposal_choice(id) ON DELETE CASCADE,
    consensus_data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consensus_history_proposal ON consensus_history(proposal_id, snapshot_date);
`
