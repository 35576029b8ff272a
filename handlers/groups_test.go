// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/models"
	"github.com/danielhkuo/consensus-engine/testutil"
)

func TestCreateGroup(t *testing.T) {
	env := newTestEnv(t)
	h := NewGroupHandler(env.deps, env.cfg)
	owner := testutil.CreateTestUser(t, env.engine, "owner")

	testCases := []struct {
		name       string
		body       interface{}
		userID     int64
		wantStatus int
	}{
		{"valid", models.CreateGroupRequest{Name: "Team", Description: "Weekly decisions"}, owner.ID, http.StatusCreated},
		{"anonymous", models.CreateGroupRequest{Name: "Team"}, 0, http.StatusUnauthorized},
		{"blank name", models.CreateGroupRequest{Name: "  "}, owner.ID, http.StatusBadRequest},
		{"no body", nil, owner.ID, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.call(h.CreateGroup, "POST", "/groups", tc.body, tc.userID)
			testutil.AssertStatus(t, w, tc.wantStatus)

			if tc.wantStatus == http.StatusCreated {
				var g models.ProposalGroup
				testutil.AssertJSON(t, w, &g)
				if g.OwnerID != owner.ID || g.Name != "Team" {
					t.Errorf("Unexpected group: %+v", g)
				}
			}
		})
	}
}

func TestInviteFlow(t *testing.T) {
	env := newTestEnv(t)
	h := NewGroupHandler(env.deps, env.cfg)
	owner := testutil.CreateTestUser(t, env.engine, "owner")
	alice := testutil.CreateTestUser(t, env.engine, "alice")
	bob := testutil.CreateTestUser(t, env.engine, "bob")
	g := testutil.CreateTestGroup(t, env.engine, owner.ID, "Team")
	gid := idStr(g.ID)

	// Non-members cannot see the roster.
	w := env.call(h.GetGroup, "GET", "/groups/"+gid, nil, alice.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = env.call(h.Invite, "POST", "/groups/"+gid+"/invites",
		models.InviteRequest{InviteeID: alice.ID, AllowTrials: true}, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusCreated)
	var invite models.GroupInvite
	testutil.AssertJSON(t, w, &invite)
	if !invite.IsOpen() || !invite.CanTrial {
		t.Errorf("Expected open trial invite, got %+v", invite)
	}

	w = env.call(h.Invite, "POST", "/groups/"+gid+"/invites",
		models.InviteRequest{InviteeID: alice.ID}, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusConflict)

	// Only members may invite.
	w = env.call(h.Invite, "POST", "/groups/"+gid+"/invites",
		models.InviteRequest{InviteeID: owner.ID}, bob.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = env.call(h.Invite, "POST", "/groups/"+gid+"/invites", models.InviteRequest{}, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = env.call(h.MyInvites, "GET", "/invites", nil, alice.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	var open []models.GroupInvite
	testutil.AssertJSON(t, w, &open)
	if len(open) != 1 || open[0].ID != invite.ID {
		t.Fatalf("Expected alice's invite, got %+v", open)
	}

	iid := idStr(invite.ID)

	// Only the invitee may resolve it.
	w = env.call(h.AcceptInvite, "POST", "/invites/"+iid+"/accept", nil, bob.ID, "id", iid)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = env.call(h.AcceptInvite, "POST", "/invites/"+iid+"/accept", nil, alice.ID, "id", iid)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &invite)
	if invite.Accepted == nil || !*invite.Accepted {
		t.Errorf("Expected accepted invite, got %+v", invite)
	}

	w = env.call(h.DeclineInvite, "POST", "/invites/"+iid+"/decline", nil, alice.ID, "id", iid)
	testutil.AssertStatus(t, w, http.StatusConflict)

	trial, err := env.engine.IsUserPartOfTrial(context.Background(), g.ID, alice.ID)
	if err != nil || !trial {
		t.Errorf("Expected alice to have trial access, got %v (%v)", trial, err)
	}

	w = env.call(h.GetGroup, "GET", "/groups/"+gid, nil, alice.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusOK)
	var detail models.GroupDetail
	testutil.AssertJSON(t, w, &detail)
	if len(detail.Members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(detail.Members))
	}

	w = env.call(h.Invite, "POST", "/groups/"+gid+"/invites",
		models.InviteRequest{InviteeID: alice.ID}, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestDeclineInvite(t *testing.T) {
	env := newTestEnv(t)
	h := NewGroupHandler(env.deps, env.cfg)
	owner := testutil.CreateTestUser(t, env.engine, "owner")
	bob := testutil.CreateTestUser(t, env.engine, "bob")
	g := testutil.CreateTestGroup(t, env.engine, owner.ID, "Team")

	invite, err := env.engine.InviteUser(context.Background(), g.ID, owner.ID, bob.ID, false)
	if err != nil {
		t.Fatalf("Failed to invite: %v", err)
	}
	iid := idStr(invite.ID)

	w := env.call(h.DeclineInvite, "POST", "/invites/"+iid+"/decline", nil, bob.ID, "id", iid)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &invite)
	if invite.Accepted == nil || *invite.Accepted {
		t.Errorf("Expected declined invite, got %+v", invite)
	}

	member, _ := env.engine.IsUserMember(context.Background(), g.ID, bob.ID)
	if member {
		t.Error("Declining must not create a membership")
	}

	w = env.call(h.AcceptInvite, "POST", "/invites/9999/accept", nil, bob.ID, "id", "9999")
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestEditGroup(t *testing.T) {
	env := newTestEnv(t)
	h := NewGroupHandler(env.deps, env.cfg)
	owner := testutil.CreateTestUser(t, env.engine, "owner")
	alice := testutil.CreateTestUser(t, env.engine, "alice")
	g := testutil.CreateTestGroup(t, env.engine, owner.ID, "Team")
	testutil.AddTestMember(t, env.engine, g.ID, alice.ID, false)
	gid := idStr(g.ID)

	w := env.call(h.EditGroup, "PUT", "/groups/"+gid, models.EditGroupRequest{Name: "Renamed"}, alice.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = env.call(h.EditGroup, "PUT", "/groups/"+gid, models.EditGroupRequest{Name: "Renamed"}, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &g)
	if g.Name != "Renamed" {
		t.Errorf("Expected name 'Renamed', got '%s'", g.Name)
	}

	w = env.call(h.EditGroup, "PUT", "/groups/abc", models.EditGroupRequest{Name: "x"}, owner.ID, "id", "abc")
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestRemoveMemberRecomputes(t *testing.T) {
	env := newTestEnv(t)
	h := NewGroupHandler(env.deps, env.cfg)
	ctx := context.Background()
	owner, alice, g, p, choices := env.publishedGroupProposal()
	gid := idStr(g.ID)

	if _, err := env.engine.Vote(ctx, choices[0].ID, alice.ID); err != nil {
		t.Fatalf("Failed to vote: %v", err)
	}

	w := env.call(h.RemoveMember, "DELETE", "/groups/"+gid+"/members/"+idStr(owner.ID), nil, alice.ID,
		"id", gid, "userID", idStr(owner.ID))
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = env.call(h.RemoveMember, "DELETE", "/groups/"+gid+"/members/"+idStr(alice.ID), nil, owner.ID,
		"id", gid, "userID", idStr(alice.ID))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.RemoveMemberResponse
	testutil.AssertJSON(t, w, &resp)
	if len(resp.RecomputedProposals) != 1 || resp.RecomputedProposals[0] != p.ID {
		t.Errorf("Expected proposal %d recomputed, got %v", p.ID, resp.RecomputedProposals)
	}

	consensus, err := env.engine.CurrentConsensus(ctx, p.ID)
	if err != nil {
		t.Fatalf("Failed to load consensus: %v", err)
	}
	if consensus != nil {
		t.Errorf("Expected no consensus after removal, got %d", consensus.ID)
	}

	removed := env.events.OfType(events.TypeMemberRemoved)
	if len(removed) != 1 || removed[0].UserID != alice.ID || removed[0].GroupID != g.ID {
		t.Errorf("Unexpected member_removed events: %+v", removed)
	}
	if env.spreads.invalidated[p.ID] == 0 {
		t.Error("Expected the proposal's spread to be invalidated")
	}

	w = env.call(h.RemoveMember, "DELETE", "/groups/"+gid+"/members/"+idStr(alice.ID), nil, owner.ID,
		"id", gid, "userID", idStr(alice.ID))
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestGroupProposals(t *testing.T) {
	env := newTestEnv(t)
	h := NewGroupHandler(env.deps, env.cfg)
	owner, _, g, p, _ := env.publishedGroupProposal()
	draft, _ := testutil.CreateTestProposal(t, env.engine, owner.ID, &g.ID, "A")
	outsider := testutil.CreateTestUser(t, env.engine, "outsider")
	gid := idStr(g.ID)

	w := env.call(h.GroupProposals, "GET", "/groups/"+gid+"/proposals", nil, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusOK)
	var list []models.ProposalSummary
	testutil.AssertJSON(t, w, &list)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("Expected only the published proposal, got %+v", list)
	}

	w = env.call(h.GroupProposals, "GET", "/groups/"+gid+"/proposals?state=draft,published", nil, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &list)
	if len(list) != 2 || list[0].ID != draft.ID {
		t.Errorf("Expected draft first (newest), got %+v", list)
	}

	w = env.call(h.GroupProposals, "GET", "/groups/"+gid+"/proposals?state=nope", nil, owner.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = env.call(h.GroupProposals, "GET", "/groups/"+gid+"/proposals", nil, outsider.ID, "id", gid)
	testutil.AssertStatus(t, w, http.StatusForbidden)
}
