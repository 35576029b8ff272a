// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielhkuo/consensus-engine/db"
	"github.com/danielhkuo/consensus-engine/models"
)

// CreateGroup creates a group and makes the owner its first member, with trial access.
func (e *Engine) CreateGroup(ctx context.Context, ownerID int64, name, description string) (models.ProposalGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ProposalGroup{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}

	g := models.ProposalGroup{
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   e.clock(),
	}

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO proposal_group (name, description, owner_id, has_default_choices, created_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			g.Name, g.Description, g.OwnerID, false, g.CreatedAt).Scan(&g.ID)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		_, err = joinGroup(ctx, tx, g.ID, ownerID, true, g.CreatedAt)
		return err
	})
	if err != nil {
		return models.ProposalGroup{}, err
	}
	return g, nil
}

func (e *Engine) GetGroup(ctx context.Context, groupID int64) (models.ProposalGroup, error) {
	return getGroup(ctx, e.conn, groupID)
}

// EditGroup renames a group. Only the owner may edit.
func (e *Engine) EditGroup(ctx context.Context, groupID, actorID int64, name, description string) (models.ProposalGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ProposalGroup{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}

	var g models.ProposalGroup
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		g, err = getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.OwnerID != actorID {
			return ErrPermissionDenied
		}

		g.Name = name
		g.Description = description
		_, err = tx.ExecContext(ctx,
			`UPDATE proposal_group SET name = $1, description = $2 WHERE id = $3`,
			g.Name, g.Description, g.ID)
		if err != nil {
			return fmt.Errorf("failed to update group: %w", err)
		}
		return nil
	})
	return g, err
}

// JoinGroup adds userID to the group directly. Invite acceptance goes through AcceptInvite.
func (e *Engine) JoinGroup(ctx context.Context, groupID, userID int64, canTrial bool) (models.GroupMembership, error) {
	var m models.GroupMembership
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getGroup(ctx, tx, groupID); err != nil {
			return err
		}
		var err error
		m, err = joinGroup(ctx, tx, groupID, userID, canTrial, e.clock())
		return err
	})
	return m, err
}

func joinGroup(ctx context.Context, q querier, groupID, userID int64, canTrial bool, at time.Time) (models.GroupMembership, error) {
	member, err := isMember(ctx, q, groupID, userID)
	if err != nil {
		return models.GroupMembership{}, err
	}
	if member {
		return models.GroupMembership{}, ErrAlreadyMember
	}

	m := models.GroupMembership{
		GroupID:  groupID,
		UserID:   userID,
		JoinedAt: at,
		CanTrial: canTrial,
	}
	err = q.QueryRowContext(ctx,
		`INSERT INTO group_membership (group_id, user_id, joined_at, can_trial)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		m.GroupID, m.UserID, m.JoinedAt, m.CanTrial).Scan(&m.ID)
	if db.IsUniqueViolation(err) {
		return models.GroupMembership{}, ErrAlreadyMember
	}
	if err != nil {
		return models.GroupMembership{}, fmt.Errorf("failed to add member: %w", err)
	}
	return m, nil
}

// InviteUser records an open invite. The inviter must be a member; the invitee
// must be neither a member nor already holding an open invite to the group.
func (e *Engine) InviteUser(ctx context.Context, groupID, inviterID, inviteeID int64, allowTrials bool) (models.GroupInvite, error) {
	var inv models.GroupInvite
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		g, err := getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}

		inviterIsMember, err := isMember(ctx, tx, groupID, inviterID)
		if err != nil {
			return err
		}
		if !inviterIsMember {
			return ErrPermissionDenied
		}

		inviteeIsMember, err := isMember(ctx, tx, groupID, inviteeID)
		if err != nil {
			return err
		}
		if inviteeIsMember {
			return ErrAlreadyMember
		}

		invited, err := hasOpenInvite(ctx, tx, groupID, inviteeID)
		if err != nil {
			return err
		}
		if invited {
			return ErrAlreadyInvited
		}

		inv = models.GroupInvite{
			GroupID:   groupID,
			GroupName: g.Name,
			InviteeID: inviteeID,
			InviterID: inviterID,
			InvitedAt: e.clock(),
			CanTrial:  allowTrials,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO group_invite (group_id, invitee_id, inviter_id, invited_at, can_trial)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			inv.GroupID, inv.InviteeID, inv.InviterID, inv.InvitedAt, inv.CanTrial).Scan(&inv.ID)
		if db.IsUniqueViolation(err) {
			return ErrAlreadyInvited
		}
		if err != nil {
			return fmt.Errorf("failed to create invite: %w", err)
		}
		return nil
	})
	return inv, err
}

// AcceptInvite resolves the invite and joins the invitee with the invite's trial flag.
func (e *Engine) AcceptInvite(ctx context.Context, inviteID, userID int64) (models.GroupInvite, error) {
	return e.resolveInvite(ctx, inviteID, userID, true)
}

func (e *Engine) DeclineInvite(ctx context.Context, inviteID, userID int64) (models.GroupInvite, error) {
	return e.resolveInvite(ctx, inviteID, userID, false)
}

func (e *Engine) resolveInvite(ctx context.Context, inviteID, userID int64, accept bool) (models.GroupInvite, error) {
	var inv models.GroupInvite
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = getInvite(ctx, tx, inviteID)
		if err != nil {
			return err
		}
		if inv.InviteeID != userID {
			return ErrPermissionDenied
		}
		if !inv.IsOpen() {
			return ErrInviteResolved
		}

		now := e.clock()
		res, err := tx.ExecContext(ctx,
			`UPDATE group_invite SET accepted = $1, resolved_at = $2
			 WHERE id = $3 AND accepted IS NULL`,
			accept, now, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to resolve invite: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInviteResolved
		}
		inv.Accepted = &accept
		inv.ResolvedAt = &now

		if accept {
			if _, err := joinGroup(ctx, tx, inv.GroupID, inv.InviteeID, inv.CanTrial, now); err != nil {
				return err
			}
		}
		return nil
	})
	return inv, err
}

// RemoveMember takes userID out of the group. Their current votes in the
// group's proposals stop counting, and each affected proposal has its
// consensus recomputed and a snapshot recorded in the same transaction.
// The IDs of the affected proposals are returned.
func (e *Engine) RemoveMember(ctx context.Context, groupID, actorID, userID int64) ([]int64, error) {
	var affected []int64
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		g, err := getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.OwnerID != actorID {
			return ErrPermissionDenied
		}
		if g.OwnerID == userID {
			return fmt.Errorf("%w: the group owner cannot be removed", ErrPermissionDenied)
		}

		member, err := isMember(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotAMember
		}

		affected, err = deactivateVotesForUserInGroup(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_membership WHERE group_id = $1 AND user_id = $2`,
			groupID, userID); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}

		now := e.clock()
		for _, proposalID := range affected {
			p, err := getProposal(ctx, tx, proposalID, e.dialect.LockClause())
			if err != nil {
				return err
			}
			if _, _, err := determineConsensus(ctx, tx, p); err != nil {
				return err
			}
			if _, err := recordSnapshot(ctx, tx, p, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// DeactivateVotesForUserInGroup clears userID's current tickets on every
// proposal in the group and returns the proposals that had one. It does
// not recompute consensus; RemoveMember does that.
func (e *Engine) DeactivateVotesForUserInGroup(ctx context.Context, groupID, userID int64) ([]int64, error) {
	var affected []int64
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		affected, err = deactivateVotesForUserInGroup(ctx, tx, groupID, userID)
		return err
	})
	return affected, err
}

func deactivateVotesForUserInGroup(ctx context.Context, q querier, groupID, userID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT t.proposal_id
		 FROM choice_ticket t JOIN proposal p ON p.id = t.proposal_id
		 WHERE p.group_id = $1 AND t.user_id = $2 AND t.is_current
		 ORDER BY t.proposal_id`,
		groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query current votes: %w", err)
	}
	affected, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}

	_, err = q.ExecContext(ctx,
		`UPDATE choice_ticket SET is_current = $1
		 WHERE user_id = $2 AND is_current
		   AND proposal_id IN (SELECT id FROM proposal WHERE group_id = $3)`,
		false, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate votes: %w", err)
	}
	return affected, nil
}

// Membership predicates

func (e *Engine) IsUserMember(ctx context.Context, groupID, userID int64) (bool, error) {
	return isMember(ctx, e.conn, groupID, userID)
}

// IsUserPartOfTrial reports whether userID is a member with trial access.
func (e *Engine) IsUserPartOfTrial(ctx context.Context, groupID, userID int64) (bool, error) {
	return isTrialMember(ctx, e.conn, groupID, userID)
}

// HasUserBeenInvited reports whether userID holds an open invite to the group.
func (e *Engine) HasUserBeenInvited(ctx context.Context, groupID, userID int64) (bool, error) {
	return hasOpenInvite(ctx, e.conn, groupID, userID)
}

func isMember(ctx context.Context, q querier, groupID, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_membership WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func isTrialMember(ctx context.Context, q querier, groupID, userID int64) (bool, error) {
	var canTrial bool
	err := q.QueryRowContext(ctx,
		`SELECT can_trial FROM group_membership WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).Scan(&canTrial)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trial membership: %w", err)
	}
	return canTrial, nil
}

func hasOpenInvite(ctx context.Context, q querier, groupID, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_invite WHERE group_id = $1 AND invitee_id = $2 AND accepted IS NULL)`,
		groupID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invites: %w", err)
	}
	return exists, nil
}

// Listings

// Members lists the group's members in join order.
func (e *Engine) Members(ctx context.Context, groupID int64) ([]models.GroupMembership, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT `+membershipColumns+`
		 FROM group_membership m JOIN app_user u ON u.id = m.user_id
		 WHERE m.group_id = $1
		 ORDER BY m.joined_at, m.id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := []models.GroupMembership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// OpenInvites lists userID's unresolved invites, newest first.
func (e *Engine) OpenInvites(ctx context.Context, userID int64) ([]models.GroupInvite, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT `+inviteColumns+`
		 FROM group_invite i JOIN proposal_group g ON g.id = i.group_id
		 WHERE i.invitee_id = $1 AND i.accepted IS NULL
		 ORDER BY i.invited_at DESC, i.id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}
	defer rows.Close()

	invites := []models.GroupInvite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (e *Engine) OpenInviteCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := e.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_invite WHERE invitee_id = $1 AND accepted IS NULL`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count invites: %w", err)
	}
	return n, nil
}

func (e *Engine) GroupsOwned(ctx context.Context, userID int64) ([]models.ProposalGroup, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM proposal_group WHERE owner_id = $1 ORDER BY name, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := []models.ProposalGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupsForMember lists the groups userID belongs to with the number of
// published proposals in each that the user has not voted on yet.
func (e *Engine) GroupsForMember(ctx context.Context, userID int64) ([]models.GroupSummary, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT g.id, g.name,
		        (SELECT COUNT(*) FROM proposal p
		         WHERE p.group_id = g.id AND p.state = $2
		           AND NOT EXISTS (
		               SELECT 1 FROM choice_ticket t
		               WHERE t.proposal_id = p.id AND t.user_id = $1
		                 AND t.is_current AND t.state = $2))
		 FROM group_membership m JOIN proposal_group g ON g.id = m.group_id
		 WHERE m.user_id = $1
		 ORDER BY g.name, g.id`,
		userID, models.StatePublished)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := []models.GroupSummary{}
	for rows.Next() {
		var s models.GroupSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.PendingVotes); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, s)
	}
	return groups, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
