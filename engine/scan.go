// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/danielhkuo/consensus-engine/models"
)

const (
	userColumns       = `id, username, created_at`
	groupColumns      = `id, name, description, owner_id, has_default_choices, created_at`
	inviteColumns     = `i.id, i.group_id, g.name, i.invitee_id, i.inviter_id, i.invited_at, i.accepted, i.resolved_at, i.can_trial`
	proposalColumns   = `id, name, description, proposed_at, owner_id, group_id, state`
	choiceColumns     = `id, proposal_id, choice_text, priority, activated_at, deactivated_at, current_consensus`
	ticketColumns     = `id, user_id, proposal_id, choice_id, chosen_at, is_current, state`
	snapshotColumns   = `id, proposal_id, snapshot_date, consensus_id, consensus_data`
	membershipColumns = `m.id, m.group_id, m.user_id, u.username, m.joined_at, m.can_trial`
)

func scanUser(row scanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.CreatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, err
}

func scanGroup(row scanner) (models.ProposalGroup, error) {
	var g models.ProposalGroup
	var ownerID sql.NullInt64
	err := row.Scan(&g.ID, &g.Name, &g.Description, &ownerID, &g.HasDefaultChoices, &g.CreatedAt)
	g.OwnerID = ownerID.Int64
	g.CreatedAt = g.CreatedAt.UTC()
	return g, err
}

func scanMembership(row scanner) (models.GroupMembership, error) {
	var m models.GroupMembership
	err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Username, &m.JoinedAt, &m.CanTrial)
	m.JoinedAt = m.JoinedAt.UTC()
	return m, err
}

func scanInvite(row scanner) (models.GroupInvite, error) {
	var i models.GroupInvite
	var accepted sql.NullBool
	var resolvedAt sql.NullTime
	err := row.Scan(&i.ID, &i.GroupID, &i.GroupName, &i.InviteeID, &i.InviterID,
		&i.InvitedAt, &accepted, &resolvedAt, &i.CanTrial)
	if err != nil {
		return i, err
	}
	i.InvitedAt = i.InvitedAt.UTC()
	if accepted.Valid {
		i.Accepted = &accepted.Bool
	}
	i.ResolvedAt = utcPtr(resolvedAt)
	return i, nil
}

func scanProposal(row scanner) (models.Proposal, error) {
	var p models.Proposal
	var ownerID, groupID sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ProposedAt, &ownerID, &groupID, &p.State)
	if err != nil {
		return p, err
	}
	p.ProposedAt = p.ProposedAt.UTC()
	p.OwnerID = ownerID.Int64
	if groupID.Valid {
		p.GroupID = &groupID.Int64
	}
	return p, nil
}

func scanChoice(row scanner) (models.ProposalChoice, error) {
	var c models.ProposalChoice
	var deactivatedAt sql.NullTime
	err := row.Scan(&c.ID, &c.ProposalID, &c.Text, &c.Priority, &c.ActivatedAt, &deactivatedAt, &c.CurrentConsensus)
	if err != nil {
		return c, err
	}
	c.ActivatedAt = c.ActivatedAt.UTC()
	c.DeactivatedAt = utcPtr(deactivatedAt)
	return c, nil
}

func scanTicket(row scanner) (models.ChoiceTicket, error) {
	var t models.ChoiceTicket
	var userID sql.NullInt64
	err := row.Scan(&t.ID, &userID, &t.ProposalID, &t.ChoiceID, &t.ChosenAt, &t.Current, &t.State)
	if err != nil {
		return t, err
	}
	t.ChosenAt = t.ChosenAt.UTC()
	if userID.Valid {
		t.UserID = &userID.Int64
	}
	return t, nil
}

func scanSnapshot(row scanner) (models.ConsensusHistory, error) {
	var h models.ConsensusHistory
	var consensusID sql.NullInt64
	var data string
	err := row.Scan(&h.ID, &h.ProposalID, &h.SnapshotDate, &consensusID, &data)
	if err != nil {
		return h, err
	}
	h.SnapshotDate = h.SnapshotDate.UTC()
	if consensusID.Valid {
		h.ConsensusID = &consensusID.Int64
	}
	h.Entries, err = DecodeSnapshot(data)
	return h, err
}

func utcPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// Row fetchers shared by the public operations. A missing row becomes ErrNotFound.

func getGroup(ctx context.Context, q querier, id int64) (models.ProposalGroup, error) {
	g, err := scanGroup(q.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM proposal_group WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return g, notFound("group", id)
	}
	return g, err
}

func getProposal(ctx context.Context, q querier, id int64, lock string) (models.Proposal, error) {
	p, err := scanProposal(q.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposal WHERE id = $1`+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, notFound("proposal", id)
	}
	return p, err
}

func getChoice(ctx context.Context, q querier, id int64) (models.ProposalChoice, error) {
	c, err := scanChoice(q.QueryRowContext(ctx,
		`SELECT `+choiceColumns+` FROM proposal_choice WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, notFound("choice", id)
	}
	return c, err
}

func getInvite(ctx context.Context, q querier, id int64) (models.GroupInvite, error) {
	i, err := scanInvite(q.QueryRowContext(ctx,
		`SELECT `+inviteColumns+`
		 FROM group_invite i JOIN proposal_group g ON g.id = i.group_id
		 WHERE i.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return i, notFound("invite", id)
	}
	return i, err
}
