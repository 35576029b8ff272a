package models

import "time"

// Domain types

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type ProposalGroup struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	OwnerID           int64     `json:"owner_id"`
	HasDefaultChoices bool      `json:"has_default_choices"`
	CreatedAt         time.Time `json:"created_at"`
}

// ShortName truncates long names for list displays.
func (g ProposalGroup) ShortName() string {
	return shortName(g.Name)
}

type GroupMembership struct {
	ID       int64     `json:"id"`
	GroupID  int64     `json:"group_id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	CanTrial bool      `json:"can_trial"`
}

// GroupInvite is pending while Accepted is nil. Accepting or declining is terminal.
type GroupInvite struct {
	ID         int64      `json:"id"`
	GroupID    int64      `json:"group_id"`
	GroupName  string     `json:"group_name,omitempty"`
	InviteeID  int64      `json:"invitee_id"`
	InviterID  int64      `json:"inviter_id"`
	InvitedAt  time.Time  `json:"invited_at"`
	Accepted   *bool      `json:"accepted"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CanTrial   bool       `json:"can_trial"`
}

func (i GroupInvite) IsOpen() bool {
	return i.Accepted == nil
}

type Proposal struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	ProposedAt  time.Time     `json:"proposed_at"`
	OwnerID     int64         `json:"owner_id"`
	GroupID     *int64        `json:"group_id,omitempty"`
	State       ProposalState `json:"state"`
}

// UserCanEdit is true only for the owner while the proposal is DRAFT or TRIAL.
func (p Proposal) UserCanEdit(userID int64) bool {
	return p.OwnerID == userID && (p.State == StateDraft || p.State == StateTrial)
}

func (p Proposal) ShortName() string {
	return shortName(p.Name)
}

// ProposalChoice is soft-deleted by setting DeactivatedAt.
type ProposalChoice struct {
	ID               int64      `json:"id"`
	ProposalID       int64      `json:"proposal_id"`
	Text             string     `json:"text"`
	Priority         int        `json:"priority"`
	ActivatedAt      time.Time  `json:"activated_at"`
	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
	CurrentConsensus bool       `json:"current_consensus"`
}

func (c ProposalChoice) IsActive() bool {
	return c.DeactivatedAt == nil
}

// ChoiceTicket is one vote. State records the proposal state at the time of voting.
type ChoiceTicket struct {
	ID         int64         `json:"id"`
	UserID     *int64        `json:"user_id,omitempty"`
	ProposalID int64         `json:"proposal_id"`
	ChoiceID   int64         `json:"choice_id"`
	ChosenAt   time.Time     `json:"chosen_at"`
	Current    bool          `json:"current"`
	State      ProposalState `json:"state"`
}

type SnapshotEntry struct {
	ChoiceID int64  `json:"choice_id"`
	Text     string `json:"text"`
	Count    int    `json:"count"`
}

// ConsensusHistory is an append-only record of the vote distribution at SnapshotDate.
type ConsensusHistory struct {
	ID           int64           `json:"id"`
	ProposalID   int64           `json:"proposal_id"`
	SnapshotDate time.Time       `json:"snapshot_date"`
	ConsensusID  *int64          `json:"consensus_id,omitempty"`
	Entries      []SnapshotEntry `json:"entries"`
}

type SpreadEntry struct {
	Text       string  `json:"text"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// VoteSpread maps choice ID to its share of the vote.
type VoteSpread map[int64]SpreadEntry

type TemplateChoice struct {
	Text     string `json:"text" yaml:"text"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Query result records

type MyVote struct {
	ProposalID   int64     `json:"proposal_id"`
	ProposalName string    `json:"proposal_name"`
	ChoiceText   string    `json:"choice_text"`
	GroupName    string    `json:"group_name"`
	ChosenAt     time.Time `json:"chosen_at"`
}

type GroupSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PendingVotes int    `json:"pending_votes"`
}

type ProposalSummary struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	State       ProposalState `json:"state"`
}

// Request types

type CreateUserRequest struct {
	Username string `json:"username"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type EditGroupRequest = CreateGroupRequest

type InviteRequest struct {
	InviteeID   int64 `json:"invitee_id"`
	AllowTrials bool  `json:"allow_trials"`
}

type CreateProposalRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	GroupID     *int64 `json:"group_id,omitempty"`
	Template    string `json:"template,omitempty"`
}

type EditProposalRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ChoiceRequest struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

type ApplyTemplateRequest struct {
	Template string `json:"template"`
}

type ChangeStateRequest struct {
	State          ProposalState `json:"state"`
	DefaultChoices bool          `json:"default_choices"`
}

// Response types

type CreateUserResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type ProposalDetail struct {
	Proposal      Proposal         `json:"proposal"`
	Choices       []ProposalChoice `json:"choices"`
	CurrentChoice *int64           `json:"current_choice,omitempty"`
	Consensus     *int64           `json:"consensus,omitempty"`
	TotalVotes    int              `json:"total_votes"`
	CanEdit       bool             `json:"can_edit"`
	CanVote       bool             `json:"can_vote"`
	NextStates    []ProposalState  `json:"next_states"`
}

type VoteResponse struct {
	TicketID         int64  `json:"ticket_id"`
	Consensus        *int64 `json:"consensus,omitempty"`
	ConsensusChanged bool   `json:"consensus_changed"`
	SnapshotID       int64  `json:"snapshot_id"`
}

type HistoryItem struct {
	ID           int64           `json:"id"`
	SnapshotDate time.Time       `json:"snapshot_date"`
	Recorded     string          `json:"recorded"`
	ConsensusID  *int64          `json:"consensus_id,omitempty"`
	Entries      []SnapshotEntry `json:"entries"`
}

type MyVoteItem struct {
	MyVote
	Voted string `json:"voted"`
}

type RemoveMemberResponse struct {
	RecomputedProposals []int64 `json:"recomputed_proposals"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func shortName(name string) string {
	runes := []rune(name)
	if len(runes) > 30 {
		return string(runes[:27]) + "..."
	}
	return name
}

type MeResponse struct {
	User        User            `json:"user"`
	OpenInvites int             `json:"open_invites"`
	Groups      []GroupSummary  `json:"groups"`
	OwnedGroups []ProposalGroup `json:"owned_groups"`
}

type GroupDetail struct {
	Group     ProposalGroup     `json:"group"`
	ShortName string            `json:"short_name"`
	Members   []GroupMembership `json:"members"`
}

type StateChangeResponse struct {
	Proposal      Proposal `json:"proposal"`
	Archived      []int64  `json:"archived,omitempty"`
	ClonedChoices int      `json:"cloned_choices,omitempty"`
	Consensus     *int64   `json:"consensus,omitempty"`
}
