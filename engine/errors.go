// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the acting user lacks rights for the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDataConflict is the kind shared by all membership and vote conflicts.
	ErrDataConflict = errors.New("data conflict")

	ErrAlreadyMember  = fmt.Errorf("%w: user is already a member of this group", ErrDataConflict)
	ErrAlreadyInvited = fmt.Errorf("%w: user has already been invited", ErrDataConflict)
	ErrNotAMember     = fmt.Errorf("%w: user is not a member of the group", ErrDataConflict)
	ErrInviteResolved = fmt.Errorf("%w: invite has already been accepted or declined", ErrDataConflict)
	ErrUsernameTaken  = fmt.Errorf("%w: username already taken", ErrDataConflict)
	ErrConcurrentVote = fmt.Errorf("%w: a concurrent vote by the same user won", ErrDataConflict)

	// ErrProposalStateInvalid means the requested state is not a legal next state.
	ErrProposalStateInvalid = errors.New("proposal state transition not allowed")

	// ErrNotFound is returned when a referenced entity or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDefaultChoicesConflict covers both setting group defaults too late
	// and cloning defaults that do not exist.
	ErrDefaultChoicesConflict = errors.New("default choices conflict")

	// ErrInvalidInput is returned for empty names and similar caller mistakes.
	ErrInvalidInput = errors.New("invalid input")
)

func notFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
}
