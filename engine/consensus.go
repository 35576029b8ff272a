// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/consensus-engine/models"
)

type choiceCount struct {
	choice models.ProposalChoice
	count  int
}

// countActiveChoices returns every active choice with its current vote count
// under the proposal's reporting state, ordered by priority, then id.
func countActiveChoices(ctx context.Context, q querier, p models.Proposal) ([]choiceCount, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT c.id, c.proposal_id, c.choice_text, c.priority, c.activated_at, c.deactivated_at, c.current_consensus,
		        (SELECT COUNT(*) FROM choice_ticket t
		         WHERE t.choice_id = c.id AND t.is_current AND t.state = $2)
		 FROM proposal_choice c
		 WHERE c.proposal_id = $1 AND c.deactivated_at IS NULL
		 ORDER BY c.priority, c.id`,
		p.ID, models.ReportingState(p.State))
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	counts := []choiceCount{}
	for rows.Next() {
		var cc choiceCount
		var deactivatedAt sql.NullTime
		c := &cc.choice
		if err := rows.Scan(&c.ID, &c.ProposalID, &c.Text, &c.Priority, &c.ActivatedAt,
			&deactivatedAt, &c.CurrentConsensus, &cc.count); err != nil {
			return nil, fmt.Errorf("failed to scan vote count: %w", err)
		}
		c.ActivatedAt = c.ActivatedAt.UTC()
		c.DeactivatedAt = utcPtr(deactivatedAt)
		counts = append(counts, cc)
	}
	return counts, rows.Err()
}

// leader returns the index of the single choice with strictly the most
// votes, or -1 when the top count is shared or nobody has voted.
func leader(counts []int) int {
	best, maxVotes := -1, 0
	for i, n := range counts {
		switch {
		case n > maxVotes:
			best, maxVotes = i, n
		case n == maxVotes:
			best = -1
		}
	}
	return best
}

// DetermineConsensus recomputes and stores the consensus flag of the
// proposal's choices. It returns the consensus choice (nil for none) and
// whether any flag changed.
func (e *Engine) DetermineConsensus(ctx context.Context, proposalID int64) (*models.ProposalChoice, bool, error) {
	var winner *models.ProposalChoice
	var changed bool
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getProposal(ctx, tx, proposalID, e.dialect.LockClause())
		if err != nil {
			return err
		}
		winner, changed, err = determineConsensus(ctx, tx, p)
		return err
	})
	return winner, changed, err
}

func determineConsensus(ctx context.Context, q querier, p models.Proposal) (*models.ProposalChoice, bool, error) {
	counts, err := countActiveChoices(ctx, q, p)
	if err != nil {
		return nil, false, err
	}

	tallies := make([]int, len(counts))
	for i, cc := range counts {
		tallies[i] = cc.count
	}
	best := leader(tallies)

	var winnerID int64
	var winner *models.ProposalChoice
	if best >= 0 {
		winner = &counts[best].choice
		winnerID = winner.ID
	}

	changed := false
	for i := range counts {
		if counts[i].choice.CurrentConsensus != (i == best) {
			changed = true
			break
		}
	}
	if !changed {
		return winner, false, nil
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE proposal_choice SET current_consensus = $1
		 WHERE proposal_id = $2 AND id <> $3 AND current_consensus`,
		false, p.ID, winnerID); err != nil {
		return nil, false, fmt.Errorf("failed to clear consensus: %w", err)
	}
	if winner != nil {
		if _, err := q.ExecContext(ctx,
			`UPDATE proposal_choice SET current_consensus = $1 WHERE id = $2`,
			true, winnerID); err != nil {
			return nil, false, fmt.Errorf("failed to set consensus: %w", err)
		}
		winner.CurrentConsensus = true
	}
	return winner, true, nil
}

// BuildSnapshot computes the current distribution without storing it.
func (e *Engine) BuildSnapshot(ctx context.Context, proposalID int64) (models.ConsensusHistory, error) {
	p, err := getProposal(ctx, e.conn, proposalID, "")
	if err != nil {
		return models.ConsensusHistory{}, err
	}
	counts, err := countActiveChoices(ctx, e.conn, p)
	if err != nil {
		return models.ConsensusHistory{}, err
	}
	return buildSnapshot(p, counts, e.clock()), nil
}

// RecordSnapshot appends the current distribution to the proposal's history.
func (e *Engine) RecordSnapshot(ctx context.Context, proposalID int64) (models.ConsensusHistory, error) {
	var h models.ConsensusHistory
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getProposal(ctx, tx, proposalID, e.dialect.LockClause())
		if err != nil {
			return err
		}
		h, err = recordSnapshot(ctx, tx, p, e.clock())
		return err
	})
	return h, err
}

func buildSnapshot(p models.Proposal, counts []choiceCount, at time.Time) models.ConsensusHistory {
	h := models.ConsensusHistory{
		ProposalID:   p.ID,
		SnapshotDate: at,
		Entries:      make([]models.SnapshotEntry, 0, len(counts)),
	}
	for _, cc := range counts {
		h.Entries = append(h.Entries, models.SnapshotEntry{
			ChoiceID: cc.choice.ID,
			Text:     cc.choice.Text,
			Count:    cc.count,
		})
		if cc.choice.CurrentConsensus && h.ConsensusID == nil {
			id := cc.choice.ID
			h.ConsensusID = &id
		}
	}
	return h
}

func recordSnapshot(ctx context.Context, q querier, p models.Proposal, at time.Time) (models.ConsensusHistory, error) {
	counts, err := countActiveChoices(ctx, q, p)
	if err != nil {
		return models.ConsensusHistory{}, err
	}
	h := buildSnapshot(p, counts, at)

	data, err := EncodeSnapshot(h.Entries)
	if err != nil {
		return models.ConsensusHistory{}, err
	}

	var consensusID sql.NullInt64
	if h.ConsensusID != nil {
		consensusID = sql.NullInt64{Int64: *h.ConsensusID, Valid: true}
	}
	err = q.QueryRowContext(ctx,
		`INSERT INTO consensus_history (proposal_id, snapshot_date, consensus_id, consensus_data)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		h.ProposalID, h.SnapshotDate, consensusID, data).Scan(&h.ID)
	if err != nil {
		return models.ConsensusHistory{}, fmt.Errorf("failed to record snapshot: %w", err)
	}
	return h, nil
}

// EncodeSnapshot serializes snapshot entries for the consensus_data column.
func EncodeSnapshot(entries []models.SnapshotEntry) (string, error) {
	if entries == nil {
		entries = []models.SnapshotEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(data), nil
}

func DecodeSnapshot(data string) ([]models.SnapshotEntry, error) {
	entries := []models.SnapshotEntry{}
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return entries, nil
}

// History

// endOfDay is the last microsecond of the calendar day of t, in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999000, t.Location())
}

// ConsensusAtDate returns the latest snapshot taken on or before the end of
// the given calendar day. ErrNotFound means no snapshot existed by then.
func (e *Engine) ConsensusAtDate(ctx context.Context, proposalID int64, date time.Time) (models.ConsensusHistory, error) {
	h, err := scanSnapshot(e.conn.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM consensus_history
		 WHERE proposal_id = $1 AND snapshot_date <= $2
		 ORDER BY snapshot_date DESC, id DESC LIMIT 1`,
		proposalID, endOfDay(date).UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return h, fmt.Errorf("%w: no snapshot of proposal %d by %s", ErrNotFound, proposalID, date.Format(time.DateOnly))
	}
	if err != nil {
		return h, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return h, nil
}

func (e *Engine) EarliestSnapshot(ctx context.Context, proposalID int64) (models.ConsensusHistory, error) {
	h, err := scanSnapshot(e.conn.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM consensus_history
		 WHERE proposal_id = $1
		 ORDER BY snapshot_date, id LIMIT 1`,
		proposalID))
	if errors.Is(err, sql.ErrNoRows) {
		return h, fmt.Errorf("%w: proposal %d has no snapshots", ErrNotFound, proposalID)
	}
	if err != nil {
		return h, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return h, nil
}

// History returns all snapshots of the proposal, oldest first.
func (e *Engine) History(ctx context.Context, proposalID int64) ([]models.ConsensusHistory, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM consensus_history
		 WHERE proposal_id = $1
		 ORDER BY snapshot_date, id`,
		proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []models.ConsensusHistory{}
	for rows.Next() {
		h, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// VotingSpread reports each active choice's count and percentage. With a nil
// date the live counts are used; otherwise the snapshot in effect at the end
// of that day. Percentages are 0 when nobody has voted.
func (e *Engine) VotingSpread(ctx context.Context, proposalID int64, date *time.Time) (models.VoteSpread, error) {
	if date != nil {
		h, err := e.ConsensusAtDate(ctx, proposalID, *date)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, entry := range h.Entries {
			total += entry.Count
		}
		spread := make(models.VoteSpread, len(h.Entries))
		for _, entry := range h.Entries {
			spread[entry.ChoiceID] = models.SpreadEntry{
				Text:       entry.Text,
				Count:      entry.Count,
				Percentage: percentage(entry.Count, total),
			}
		}
		return spread, nil
	}

	p, err := getProposal(ctx, e.conn, proposalID, "")
	if err != nil {
		return nil, err
	}
	counts, err := countActiveChoices(ctx, e.conn, p)
	if err != nil {
		return nil, err
	}
	total, err := totalVotes(ctx, e.conn, p)
	if err != nil {
		return nil, err
	}

	spread := make(models.VoteSpread, len(counts))
	for _, cc := range counts {
		spread[cc.choice.ID] = models.SpreadEntry{
			Text:       cc.choice.Text,
			Count:      cc.count,
			Percentage: percentage(cc.count, total),
		}
	}
	return spread, nil
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
