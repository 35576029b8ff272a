// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package engine implements groups, proposals, voting and consensus.

# Usage

	e := engine.New(conn, db.Postgres)
	res, err := e.Vote(ctx, choiceID, userID)

Every operation that writes more than one row runs in a single
transaction. Vote, Publish, transitions and RemoveMember lock the
proposal row first (FOR UPDATE on Postgres, an immediate write
transaction on SQLite), so concurrent votes on one proposal serialize.

# Lifecycle

	DRAFT ──► TRIAL ──► PUBLISHED ◄──► ON_HOLD ──► ARCHIVED

DRAFT may also jump to any later state. Nothing returns to DRAFT and
ARCHIVED is terminal. Illegal moves return ErrProposalStateInvalid.

# Voting

Who may vote:

  - ungrouped proposal: anyone, in TRIAL or PUBLISHED
  - grouped, TRIAL: members whose membership has can_trial
  - grouped, PUBLISHED: any member

Each vote is a ticket stamped with the proposal state. A user has at most
one current ticket per proposal; a new vote supersedes the old one. Counts
only include current tickets stamped with the reporting state, so TRIAL
votes never mix into PUBLISHED results, and ON_HOLD/ARCHIVED proposals
keep showing their PUBLISHED results.

# Consensus

The consensus choice is the single active choice with strictly the most
votes. Any tie at the top, or no votes at all, means no consensus. Flags
are rewritten only when the outcome changes. Each vote appends a snapshot
of the distribution to consensus_history, which backs ConsensusAtDate,
History and historical VotingSpread.

# Errors

Callers should match with errors.Is:

  - ErrPermissionDenied
  - ErrDataConflict (ErrAlreadyMember, ErrAlreadyInvited, ErrNotAMember,
    ErrInviteResolved, ErrUsernameTaken, ErrConcurrentVote)
  - ErrProposalStateInvalid
  - ErrNotFound
  - ErrDefaultChoicesConflict
  - ErrInvalidInput
*/
package engine
