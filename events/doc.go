// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events publishes domain events after engine writes commit.

Events are JSON envelopes with a UUID id:

	vote.cast               a ticket was recorded
	consensus.changed       a vote moved the consensus choice
	proposal.state_changed  a lifecycle transition
	group.member_removed    a member was removed and proposals recomputed

Publishers are chosen by EVENTS_BROKER: none, kafka (keyed by proposal so
one proposal's events stay in partition order) or nats (subject
<NATS_SUBJECT>.<type>). Publishing is best effort; the database is the
source of truth.
*/
package events
