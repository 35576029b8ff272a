// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielhkuo/consensus-engine/db"
	"github.com/danielhkuo/consensus-engine/models"
)

// VoteResult is everything a vote changed.
type VoteResult struct {
	Ticket           models.ChoiceTicket
	Consensus        *models.ProposalChoice
	ConsensusChanged bool
	Snapshot         models.ConsensusHistory
}

// Vote records userID's choice. The previous current ticket of the user on
// the same proposal is superseded, consensus is recomputed and a snapshot
// appended, all in one transaction serialized on the proposal row.
func (e *Engine) Vote(ctx context.Context, choiceID, userID int64) (VoteResult, error) {
	var result VoteResult
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		choice, err := getChoice(ctx, tx, choiceID)
		if err != nil {
			return err
		}
		if !choice.IsActive() {
			return notFound("choice", choiceID)
		}

		p, err := getProposal(ctx, tx, choice.ProposalID, e.dialect.LockClause())
		if err != nil {
			return err
		}

		allowed, err := canVote(ctx, tx, p, userID)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrPermissionDenied
		}

		now := e.clock()
		if _, err := tx.ExecContext(ctx,
			`UPDATE choice_ticket SET is_current = $1
			 WHERE user_id = $2 AND proposal_id = $3 AND is_current`,
			false, userID, p.ID); err != nil {
			return fmt.Errorf("failed to supersede vote: %w", err)
		}

		ticket := models.ChoiceTicket{
			UserID:     &userID,
			ProposalID: p.ID,
			ChoiceID:   choice.ID,
			ChosenAt:   now,
			Current:    true,
			State:      p.State,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO choice_ticket (user_id, proposal_id, choice_id, chosen_at, is_current, state)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			userID, ticket.ProposalID, ticket.ChoiceID, ticket.ChosenAt, true, ticket.State).Scan(&ticket.ID)
		if db.IsUniqueViolation(err) {
			return ErrConcurrentVote
		}
		if err != nil {
			return fmt.Errorf("failed to record vote: %w", err)
		}
		result.Ticket = ticket

		result.Consensus, result.ConsensusChanged, err = determineConsensus(ctx, tx, p)
		if err != nil {
			return err
		}

		result.Snapshot, err = recordSnapshot(ctx, tx, p, now)
		return err
	})
	if err != nil {
		return VoteResult{}, err
	}
	return result, nil
}

// CurrentVoteCount counts current tickets for the choice cast under the
// proposal's reporting state.
func (e *Engine) CurrentVoteCount(ctx context.Context, choiceID int64) (int, error) {
	choice, err := getChoice(ctx, e.conn, choiceID)
	if err != nil {
		return 0, err
	}
	p, err := getProposal(ctx, e.conn, choice.ProposalID, "")
	if err != nil {
		return 0, err
	}

	var n int
	err = e.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM choice_ticket WHERE choice_id = $1 AND is_current AND state = $2`,
		choiceID, models.ReportingState(p.State)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return n, nil
}

// TotalVotes counts distinct users with a current ticket under the reporting state.
func (e *Engine) TotalVotes(ctx context.Context, proposalID int64) (int, error) {
	p, err := getProposal(ctx, e.conn, proposalID, "")
	if err != nil {
		return 0, err
	}
	return totalVotes(ctx, e.conn, p)
}

func totalVotes(ctx context.Context, q querier, p models.Proposal) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM choice_ticket
		 WHERE proposal_id = $1 AND is_current AND state = $2`,
		p.ID, models.ReportingState(p.State)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count voters: %w", err)
	}
	return n, nil
}

// GetCurrentChoice returns userID's current ticket on the proposal cast
// under its reporting state, or nil.
func (e *Engine) GetCurrentChoice(ctx context.Context, userID, proposalID int64) (*models.ChoiceTicket, error) {
	p, err := getProposal(ctx, e.conn, proposalID, "")
	if err != nil {
		return nil, err
	}

	t, err := scanTicket(e.conn.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM choice_ticket
		 WHERE user_id = $1 AND proposal_id = $2 AND is_current AND state = $3`,
		userID, p.ID, models.ReportingState(p.State)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current vote: %w", err)
	}
	return &t, nil
}

// MyVotes lists userID's current votes on active choices ordered by group
// name, then proposal name.
func (e *Engine) MyVotes(ctx context.Context, userID int64) ([]models.MyVote, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT p.id, p.name, c.choice_text, COALESCE(g.name, ''), t.chosen_at
		 FROM choice_ticket t
		 JOIN proposal p ON p.id = t.proposal_id
		 JOIN proposal_choice c ON c.id = t.choice_id
		 LEFT JOIN proposal_group g ON g.id = p.group_id
		 WHERE t.user_id = $1 AND t.is_current AND c.deactivated_at IS NULL
		 ORDER BY COALESCE(g.name, ''), p.name, p.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	votes := []models.MyVote{}
	for rows.Next() {
		var v models.MyVote
		if err := rows.Scan(&v.ProposalID, &v.ProposalName, &v.ChoiceText, &v.GroupName, &v.ChosenAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		v.ChosenAt = v.ChosenAt.UTC()
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
