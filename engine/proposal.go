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

	"github.com/danielhkuo/consensus-engine/models"
)

// NewProposal carries the inputs for CreateProposal. GroupID is optional;
// Template, when set, seeds the initial choices.
type NewProposal struct {
	OwnerID     int64
	GroupID     *int64
	Name        string
	Description string
	Template    []models.TemplateChoice
}

// CreateProposal stores a DRAFT proposal. A grouped proposal requires the
// owner to be a member of that group.
func (e *Engine) CreateProposal(ctx context.Context, np NewProposal) (models.Proposal, error) {
	name := strings.TrimSpace(np.Name)
	if name == "" {
		return models.Proposal{}, fmt.Errorf("%w: proposal name is required", ErrInvalidInput)
	}

	p := models.Proposal{
		Name:        name,
		Description: np.Description,
		ProposedAt:  e.clock(),
		OwnerID:     np.OwnerID,
		GroupID:     np.GroupID,
		State:       models.StateDraft,
	}

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var groupID sql.NullInt64
		if p.GroupID != nil {
			if _, err := getGroup(ctx, tx, *p.GroupID); err != nil {
				return err
			}
			member, err := isMember(ctx, tx, *p.GroupID, p.OwnerID)
			if err != nil {
				return err
			}
			if !member {
				return ErrPermissionDenied
			}
			groupID = sql.NullInt64{Int64: *p.GroupID, Valid: true}
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO proposal (name, description, proposed_at, owner_id, group_id, state)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			p.Name, p.Description, p.ProposedAt, p.OwnerID, groupID, p.State).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("failed to create proposal: %w", err)
		}

		return insertTemplate(ctx, tx, p.ID, np.Template, p.ProposedAt)
	})
	if err != nil {
		return models.Proposal{}, err
	}
	return p, nil
}

func (e *Engine) GetProposal(ctx context.Context, proposalID int64) (models.Proposal, error) {
	return getProposal(ctx, e.conn, proposalID, "")
}

// EditProposal updates name and description while the proposal is editable.
func (e *Engine) EditProposal(ctx context.Context, proposalID, actorID int64, name, description string) (models.Proposal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Proposal{}, fmt.Errorf("%w: proposal name is required", ErrInvalidInput)
	}

	var p models.Proposal
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = e.editableProposal(ctx, tx, proposalID, actorID)
		if err != nil {
			return err
		}

		p.Name = name
		p.Description = description
		_, err = tx.ExecContext(ctx,
			`UPDATE proposal SET name = $1, description = $2 WHERE id = $3`,
			p.Name, p.Description, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update proposal: %w", err)
		}
		return nil
	})
	return p, err
}

func (e *Engine) editableProposal(ctx context.Context, q querier, proposalID, actorID int64) (models.Proposal, error) {
	p, err := getProposal(ctx, q, proposalID, e.dialect.LockClause())
	if err != nil {
		return p, err
	}
	if !p.UserCanEdit(actorID) {
		return p, ErrPermissionDenied
	}
	return p, nil
}

// Choices

func (e *Engine) AddChoice(ctx context.Context, proposalID, actorID int64, text string, priority int) (models.ProposalChoice, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ProposalChoice{}, fmt.Errorf("%w: choice text is required", ErrInvalidInput)
	}

	var c models.ProposalChoice
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.editableProposal(ctx, tx, proposalID, actorID); err != nil {
			return err
		}
		var err error
		c, err = insertChoice(ctx, tx, proposalID, text, priority, e.clock())
		return err
	})
	return c, err
}

func insertChoice(ctx context.Context, q querier, proposalID int64, text string, priority int, at time.Time) (models.ProposalChoice, error) {
	c := models.ProposalChoice{
		ProposalID:  proposalID,
		Text:        text,
		Priority:    priority,
		ActivatedAt: at,
	}
	err := q.QueryRowContext(ctx,
		`INSERT INTO proposal_choice (proposal_id, choice_text, priority, activated_at, current_consensus)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.ProposalID, c.Text, c.Priority, c.ActivatedAt, false).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("failed to add choice: %w", err)
	}
	return c, nil
}

// EditChoice changes the text and priority of an active choice.
func (e *Engine) EditChoice(ctx context.Context, choiceID, actorID int64, text string, priority int) (models.ProposalChoice, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ProposalChoice{}, fmt.Errorf("%w: choice text is required", ErrInvalidInput)
	}

	var c models.ProposalChoice
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = e.editableChoice(ctx, tx, choiceID, actorID)
		if err != nil {
			return err
		}

		c.Text = text
		c.Priority = priority
		_, err = tx.ExecContext(ctx,
			`UPDATE proposal_choice SET choice_text = $1, priority = $2 WHERE id = $3`,
			c.Text, c.Priority, c.ID)
		if err != nil {
			return fmt.Errorf("failed to update choice: %w", err)
		}
		return nil
	})
	return c, err
}

// DeactivateChoice soft-deletes a choice. It stops appearing in listings,
// counts and snapshots, and consensus is recomputed over the remaining
// active choices.
func (e *Engine) DeactivateChoice(ctx context.Context, choiceID, actorID int64) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		c, err := e.editableChoice(ctx, tx, choiceID, actorID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE proposal_choice SET deactivated_at = $1, current_consensus = $2 WHERE id = $3`,
			e.clock(), false, c.ID)
		if err != nil {
			return fmt.Errorf("failed to deactivate choice: %w", err)
		}

		p, err := getProposal(ctx, tx, c.ProposalID, "")
		if err != nil {
			return err
		}
		_, _, err = determineConsensus(ctx, tx, p)
		return err
	})
}

func (e *Engine) editableChoice(ctx context.Context, q querier, choiceID, actorID int64) (models.ProposalChoice, error) {
	c, err := getChoice(ctx, q, choiceID)
	if err != nil {
		return c, err
	}
	if !c.IsActive() {
		return c, notFound("choice", choiceID)
	}
	if _, err := e.editableProposal(ctx, q, c.ProposalID, actorID); err != nil {
		return c, err
	}
	return c, nil
}

func (e *Engine) GetChoice(ctx context.Context, choiceID int64) (models.ProposalChoice, error) {
	return getChoice(ctx, e.conn, choiceID)
}

// PopulateFromTemplate replaces the proposal's active choices with fresh
// ones built from template and recomputes consensus. A nil template is a
// no-op.
func (e *Engine) PopulateFromTemplate(ctx context.Context, proposalID, actorID int64, template []models.TemplateChoice) error {
	if template == nil {
		return nil
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.editableProposal(ctx, tx, proposalID, actorID)
		if err != nil {
			return err
		}
		now := e.clock()
		if err := deactivateChoices(ctx, tx, proposalID, now); err != nil {
			return err
		}
		if err := insertTemplate(ctx, tx, proposalID, template, now); err != nil {
			return err
		}
		_, _, err = determineConsensus(ctx, tx, p)
		return err
	})
}

func insertTemplate(ctx context.Context, q querier, proposalID int64, template []models.TemplateChoice, at time.Time) error {
	for _, tc := range template {
		if _, err := insertChoice(ctx, q, proposalID, tc.Text, tc.Priority, at); err != nil {
			return err
		}
	}
	return nil
}

// deactivateChoices retires every active choice of the proposal.
func deactivateChoices(ctx context.Context, q querier, proposalID int64, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE proposal_choice SET deactivated_at = $1, current_consensus = $2
		 WHERE proposal_id = $3 AND deactivated_at IS NULL`,
		at, false, proposalID)
	if err != nil {
		return fmt.Errorf("failed to deactivate choices: %w", err)
	}
	return nil
}

// ActiveChoices returns the proposal's active choices ordered by priority, then id.
func (e *Engine) ActiveChoices(ctx context.Context, proposalID int64) ([]models.ProposalChoice, error) {
	return activeChoices(ctx, e.conn, proposalID)
}

func activeChoices(ctx context.Context, q querier, proposalID int64) ([]models.ProposalChoice, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+choiceColumns+` FROM proposal_choice
		 WHERE proposal_id = $1 AND deactivated_at IS NULL
		 ORDER BY priority, id`,
		proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query choices: %w", err)
	}
	defer rows.Close()

	choices := []models.ProposalChoice{}
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan choice: %w", err)
		}
		choices = append(choices, c)
	}
	return choices, rows.Err()
}

// CurrentConsensus returns the active choice flagged as consensus, or nil.
func (e *Engine) CurrentConsensus(ctx context.Context, proposalID int64) (*models.ProposalChoice, error) {
	c, err := scanChoice(e.conn.QueryRowContext(ctx,
		`SELECT `+choiceColumns+` FROM proposal_choice
		 WHERE proposal_id = $1 AND deactivated_at IS NULL AND current_consensus
		 ORDER BY priority, id LIMIT 1`,
		proposalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consensus: %w", err)
	}
	return &c, nil
}

// CanVote decides eligibility from the proposal state. Ungrouped proposals
// are open to anyone in TRIAL and PUBLISHED. Grouped proposals need
// membership, plus the trial flag while in TRIAL. Nobody votes on DRAFT,
// ON_HOLD or ARCHIVED proposals.
func (e *Engine) CanVote(ctx context.Context, p models.Proposal, userID int64) (bool, error) {
	return canVote(ctx, e.conn, p, userID)
}

func canVote(ctx context.Context, q querier, p models.Proposal, userID int64) (bool, error) {
	if p.State != models.StateTrial && p.State != models.StatePublished {
		return false, nil
	}
	if p.GroupID == nil {
		return true, nil
	}
	if p.State == models.StateTrial {
		return isTrialMember(ctx, q, *p.GroupID, userID)
	}
	return isMember(ctx, q, *p.GroupID, userID)
}

// Lifecycle

// PublishResult reports side effects of Publish beyond the state change.
type PublishResult struct {
	Archived      []int64
	ClonedChoices int
	Consensus     *models.ProposalChoice
	Snapshot      models.ConsensusHistory
}

func (e *Engine) Draft(ctx context.Context, proposalID int64) error {
	return e.transition(ctx, proposalID, models.StateDraft)
}

func (e *Engine) Trial(ctx context.Context, proposalID int64) error {
	return e.transition(ctx, proposalID, models.StateTrial)
}

func (e *Engine) Hold(ctx context.Context, proposalID int64) error {
	return e.transition(ctx, proposalID, models.StateOnHold)
}

func (e *Engine) Archive(ctx context.Context, proposalID int64) error {
	return e.transition(ctx, proposalID, models.StateArchived)
}

// ChangeState dispatches to the per-state operation. defaultChoices only
// matters for PUBLISHED.
func (e *Engine) ChangeState(ctx context.Context, proposalID int64, to models.ProposalState, defaultChoices bool) error {
	switch to {
	case models.StateDraft:
		return e.Draft(ctx, proposalID)
	case models.StateTrial:
		return e.Trial(ctx, proposalID)
	case models.StatePublished:
		_, err := e.Publish(ctx, proposalID, defaultChoices)
		return err
	case models.StateOnHold:
		return e.Hold(ctx, proposalID)
	case models.StateArchived:
		return e.Archive(ctx, proposalID)
	}
	return fmt.Errorf("%w: unknown state %d", ErrProposalStateInvalid, int(to))
}

func (e *Engine) transition(ctx context.Context, proposalID int64, to models.ProposalState) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getProposal(ctx, tx, proposalID, e.dialect.LockClause())
		if err != nil {
			return err
		}
		if err := updateState(ctx, tx, &p, to); err != nil {
			return err
		}
		// Counts are scoped by reporting state, so the flags may now be stale.
		_, _, err = determineConsensus(ctx, tx, p)
		return err
	})
}

// Publish moves the proposal to PUBLISHED.
//
// With defaultChoices the group is marked as using this proposal's choices
// as its defaults; that fails if another proposal in the group is already
// PUBLISHED, and archives the group's ON_HOLD proposals. Without it, a
// proposal in a group that has defaults gets its choices replaced by the
// active choices of the group's earliest PUBLISHED proposal.
//
// A snapshot is recorded once the proposal is published.
func (e *Engine) Publish(ctx context.Context, proposalID int64, defaultChoices bool) (PublishResult, error) {
	var result PublishResult
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getProposal(ctx, tx, proposalID, e.dialect.LockClause())
		if err != nil {
			return err
		}
		if !p.State.CanTransitionTo(models.StatePublished) {
			return stateError(p.State, models.StatePublished)
		}

		now := e.clock()
		if p.GroupID != nil {
			g, err := getGroup(ctx, tx, *p.GroupID)
			if err != nil {
				return err
			}
			switch {
			case defaultChoices:
				result.Archived, err = e.makeGroupDefault(ctx, tx, g, p)
			case g.HasDefaultChoices:
				result.ClonedChoices, err = cloneGroupDefaults(ctx, tx, g, p, now)
			}
			if err != nil {
				return err
			}
		}

		if err := updateState(ctx, tx, &p, models.StatePublished); err != nil {
			return err
		}

		result.Consensus, _, err = determineConsensus(ctx, tx, p)
		if err != nil {
			return err
		}
		result.Snapshot, err = recordSnapshot(ctx, tx, p, now)
		return err
	})
	return result, err
}

func (e *Engine) makeGroupDefault(ctx context.Context, tx *sql.Tx, g models.ProposalGroup, p models.Proposal) ([]int64, error) {
	var published int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposal WHERE group_id = $1 AND state = $2 AND id <> $3`,
		g.ID, models.StatePublished, p.ID).Scan(&published)
	if err != nil {
		return nil, fmt.Errorf("failed to count published proposals: %w", err)
	}
	if published > 0 {
		return nil, fmt.Errorf("%w: group %d already has published proposals", ErrDefaultChoicesConflict, g.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE proposal_group SET has_default_choices = $1 WHERE id = $2`,
		true, g.ID); err != nil {
		return nil, fmt.Errorf("failed to mark group defaults: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM proposal WHERE group_id = $1 AND state = $2 AND id <> $3 ORDER BY id`,
		g.ID, models.StateOnHold, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query held proposals: %w", err)
	}
	held, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}

	for _, id := range held {
		other, err := getProposal(ctx, tx, id, e.dialect.LockClause())
		if err != nil {
			return nil, err
		}
		if err := updateState(ctx, tx, &other, models.StateArchived); err != nil {
			return nil, err
		}
	}
	return held, nil
}

func cloneGroupDefaults(ctx context.Context, tx *sql.Tx, g models.ProposalGroup, p models.Proposal, at time.Time) (int, error) {
	var sourceID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM proposal WHERE group_id = $1 AND state = $2 AND id <> $3 ORDER BY id LIMIT 1`,
		g.ID, models.StatePublished, p.ID).Scan(&sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: group %d has no published proposal to copy choices from", ErrDefaultChoicesConflict, g.ID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find default choices: %w", err)
	}

	if err := deactivateChoices(ctx, tx, p.ID, at); err != nil {
		return 0, err
	}

	defaults, err := activeChoices(ctx, tx, sourceID)
	if err != nil {
		return 0, err
	}
	for _, c := range defaults {
		if _, err := insertChoice(ctx, tx, p.ID, c.Text, c.Priority, at); err != nil {
			return 0, err
		}
	}
	return len(defaults), nil
}

// updateState applies a legal transition. The state column is compared on
// write so a concurrent transition cannot be silently overwritten.
func updateState(ctx context.Context, q querier, p *models.Proposal, to models.ProposalState) error {
	if !p.State.CanTransitionTo(to) {
		return stateError(p.State, to)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE proposal SET state = $1 WHERE id = $2 AND state = $3`,
		to, p.ID, p.State)
	if err != nil {
		return fmt.Errorf("failed to update proposal state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stateError(p.State, to)
	}
	p.State = to
	return nil
}

func stateError(from, to models.ProposalState) error {
	return fmt.Errorf("%w: %s to %s", ErrProposalStateInvalid, from, to)
}

// Listings

// ProposalsOwned lists userID's proposals, optionally limited to states.
func (e *Engine) ProposalsOwned(ctx context.Context, userID int64, states ...models.ProposalState) ([]models.ProposalSummary, error) {
	if len(states) == 0 {
		states = models.AllStates
	}
	return e.listProposals(ctx, "owner_id", userID, states)
}

// ProposalsInGroup lists the group's proposals, PUBLISHED only unless states are given.
func (e *Engine) ProposalsInGroup(ctx context.Context, groupID int64, states ...models.ProposalState) ([]models.ProposalSummary, error) {
	if len(states) == 0 {
		states = []models.ProposalState{models.StatePublished}
	}
	return e.listProposals(ctx, "group_id", groupID, states)
}

func (e *Engine) listProposals(ctx context.Context, column string, id int64, states []models.ProposalState) ([]models.ProposalSummary, error) {
	args := []any{id}
	for _, s := range states {
		args = append(args, s)
	}

	rows, err := e.conn.QueryContext(ctx,
		`SELECT id, name, description, state FROM proposal
		 WHERE `+column+` = $1 AND state IN (`+placeholders(2, len(states))+`)
		 ORDER BY proposed_at DESC, id DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	proposals := []models.ProposalSummary{}
	for rows.Next() {
		var s models.ProposalSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.State); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, s)
	}
	return proposals, rows.Err()
}
