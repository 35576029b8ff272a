// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/handlers"
	"github.com/danielhkuo/consensus-engine/metrics"
	"github.com/danielhkuo/consensus-engine/models"
	"github.com/danielhkuo/consensus-engine/testutil"
)

func newTestRouter(t *testing.T) (*http.ServeMux, *events.Recorder) {
	t.Helper()

	e, _ := testutil.NewTestEngine(t)
	rec := &events.Recorder{}
	mux := NewRouter(handlers.Deps{
		Engine:  e,
		Events:  rec,
		Metrics: metrics.New(),
	}, testutil.GetTestConfig())
	return mux, rec
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", w.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	expected := "consensus-engine API v1"
	if w.Body.String() != expected {
		t.Errorf("Expected body '%s', got '%s'", expected, w.Body.String())
	}
}

func TestRouteExistence(t *testing.T) {
	mux, _ := newTestRouter(t)

	// Authenticated routes answer 401 without a token, which proves the
	// pattern matched.
	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/me"},
		{"POST", "/groups"},
		{"GET", "/groups/1"},
		{"PUT", "/groups/1"},
		{"GET", "/groups/1/proposals"},
		{"POST", "/groups/1/invites"},
		{"DELETE", "/groups/1/members/2"},
		{"GET", "/invites"},
		{"POST", "/invites/1/accept"},
		{"POST", "/invites/1/decline"},
		{"POST", "/proposals"},
		{"GET", "/proposals/mine"},
		{"GET", "/proposals/1"},
		{"PUT", "/proposals/1"},
		{"POST", "/proposals/1/choices"},
		{"POST", "/proposals/1/template"},
		{"POST", "/proposals/1/state"},
		{"PUT", "/choices/1"},
		{"DELETE", "/choices/1"},
		{"POST", "/choices/1/vote"},
		{"GET", "/votes/mine"},
		{"GET", "/proposals/1/spread"},
		{"GET", "/proposals/1/consensus"},
		{"GET", "/proposals/1/history"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", w.Code)
			}
		})
	}
}

func TestPublicRoutes(t *testing.T) {
	mux, _ := newTestRouter(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/templates", http.StatusOK},
		{"/templates/moscow", http.StatusOK},
		{"/templates/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.status, w.Code)
		}
	}
}

func TestSpecificMethodRouting(t *testing.T) {
	mux, _ := newTestRouter(t)

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"POST to health endpoint", "POST", "/health", http.StatusMethodNotAllowed},
		{"PATCH to proposal", "PATCH", "/proposals/1", http.StatusMethodNotAllowed},
		{"GET to vote", "GET", "/choices/1/vote", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Expected %d for %s %s, got %d", tc.expectedStatus, tc.method, tc.path, w.Code)
			}
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	mux, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/templates", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/templates", nil))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "consensus_http_request_duration_seconds") {
		t.Error("Expected request duration histogram in metrics output")
	}
	if !strings.Contains(body, `route="/templates"`) {
		t.Error("Expected route label without method")
	}
}

// client drives the router as one user.
type client struct {
	t     *testing.T
	mux   *http.ServeMux
	token string
}

func (c client) do(method, path string, body interface{}, out interface{}) int {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, req)

	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			c.t.Fatalf("%s %s: failed to decode %s: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

func signUp(t *testing.T, mux *http.ServeMux, name string) (client, models.User) {
	t.Helper()

	var resp models.CreateUserResponse
	c := client{t: t, mux: mux}
	if code := c.do("POST", "/users", models.CreateUserRequest{Username: name}, &resp); code != http.StatusCreated {
		t.Fatalf("Failed to sign up %s: %d", name, code)
	}
	c.token = resp.Token
	return c, resp.User
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func expect(t *testing.T, what string, got, want int) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: expected %d, got %d", what, want, got)
	}
}

func TestConsensusWorkflow(t *testing.T) {
	mux, rec := newTestRouter(t)

	owner, _ := signUp(t, mux, "owner")
	alice, aliceUser := signUp(t, mux, "alice")
	bob, bobUser := signUp(t, mux, "bob")

	// Group with two invited members.
	var group models.ProposalGroup
	expect(t, "create group", owner.do("POST", "/groups", models.CreateGroupRequest{Name: "Lunch club"}, &group), http.StatusCreated)

	for _, u := range []struct {
		c    client
		user models.User
	}{{alice, aliceUser}, {bob, bobUser}} {
		var inv models.GroupInvite
		expect(t, "invite", owner.do("POST", "/groups/"+id(group.ID)+"/invites", models.InviteRequest{InviteeID: u.user.ID}, &inv), http.StatusCreated)

		var open []models.GroupInvite
		expect(t, "list invites", u.c.do("GET", "/invites", nil, &open), http.StatusOK)
		if len(open) != 1 || open[0].ID != inv.ID {
			t.Fatalf("Expected the new invite, got %+v", open)
		}
		expect(t, "accept", u.c.do("POST", "/invites/"+id(inv.ID)+"/accept", nil, nil), http.StatusOK)
	}

	// Draft proposal seeded from a template, then published.
	var p models.Proposal
	expect(t, "create proposal", owner.do("POST", "/proposals", models.CreateProposalRequest{
		Name: "Pizza Friday?", GroupID: &group.ID, Template: "yes_no",
	}, &p), http.StatusCreated)
	if p.State != models.StateDraft {
		t.Fatalf("Expected draft, got %s", p.State)
	}

	var detail models.ProposalDetail
	expect(t, "get proposal", owner.do("GET", "/proposals/"+id(p.ID), nil, &detail), http.StatusOK)
	if len(detail.Choices) != 2 {
		t.Fatalf("Expected 2 choices from template, got %d", len(detail.Choices))
	}
	yes, no := detail.Choices[0], detail.Choices[1]

	expect(t, "vote before publish", alice.do("POST", "/choices/"+id(yes.ID)+"/vote", nil, nil), http.StatusForbidden)

	var changed models.StateChangeResponse
	expect(t, "publish", owner.do("POST", "/proposals/"+id(p.ID)+"/state", models.ChangeStateRequest{State: models.StatePublished}, &changed), http.StatusOK)
	if changed.Proposal.State != models.StatePublished {
		t.Fatalf("Expected published, got %s", changed.Proposal.State)
	}
	expect(t, "edit after publish", owner.do("PUT", "/proposals/"+id(p.ID), models.EditProposalRequest{Name: "x"}, nil), http.StatusForbidden)

	// Votes: alice yes, bob no, then bob switches to yes.
	var vote models.VoteResponse
	expect(t, "alice votes", alice.do("POST", "/choices/"+id(yes.ID)+"/vote", nil, &vote), http.StatusCreated)
	if vote.Consensus == nil || *vote.Consensus != yes.ID || !vote.ConsensusChanged {
		t.Fatalf("Expected yes to become consensus, got %+v", vote)
	}
	expect(t, "bob votes", bob.do("POST", "/choices/"+id(no.ID)+"/vote", nil, &vote), http.StatusCreated)
	if vote.Consensus != nil {
		t.Fatalf("Expected tie to clear consensus, got %d", *vote.Consensus)
	}
	expect(t, "bob switches", bob.do("POST", "/choices/"+id(yes.ID)+"/vote", nil, &vote), http.StatusCreated)

	var spread models.VoteSpread
	expect(t, "spread", alice.do("GET", "/proposals/"+id(p.ID)+"/spread", nil, &spread), http.StatusOK)
	if spread[yes.ID].Count != 2 || spread[no.ID].Count != 0 || spread[yes.ID].Percentage != 100 {
		t.Errorf("Unexpected spread: %+v", spread)
	}

	var history []models.HistoryItem
	expect(t, "history", alice.do("GET", "/proposals/"+id(p.ID)+"/history", nil, &history), http.StatusOK)
	// Publish plus three votes.
	if len(history) != 4 {
		t.Errorf("Expected 4 snapshots, got %d", len(history))
	}

	var first models.HistoryItem
	expect(t, "first consensus", alice.do("GET", "/proposals/"+id(p.ID)+"/consensus?date=first", nil, &first), http.StatusOK)
	if first.ConsensusID != nil {
		t.Errorf("Expected no consensus at publish, got %d", *first.ConsensusID)
	}

	// Removing bob recomputes: yes still leads with alice's vote.
	var removed models.RemoveMemberResponse
	expect(t, "remove bob", owner.do("DELETE", "/groups/"+id(group.ID)+"/members/"+id(bobUser.ID), nil, &removed), http.StatusOK)
	if len(removed.RecomputedProposals) != 1 || removed.RecomputedProposals[0] != p.ID {
		t.Errorf("Expected proposal %d recomputed, got %v", p.ID, removed.RecomputedProposals)
	}
	expect(t, "removed member reads", bob.do("GET", "/proposals/"+id(p.ID)+"/spread", nil, nil), http.StatusForbidden)

	expect(t, "spread after removal", alice.do("GET", "/proposals/"+id(p.ID)+"/spread", nil, &spread), http.StatusOK)
	if spread[yes.ID].Count != 1 {
		t.Errorf("Expected 1 vote left for yes, got %d", spread[yes.ID].Count)
	}

	var me models.MeResponse
	expect(t, "me", alice.do("GET", "/me", nil, &me), http.StatusOK)
	if len(me.Groups) != 1 || me.Groups[0].PendingVotes != 0 {
		t.Errorf("Expected alice to have voted on everything, got %+v", me.Groups)
	}

	expect(t, "archive", owner.do("POST", "/proposals/"+id(p.ID)+"/state", models.ChangeStateRequest{State: models.StateArchived}, nil), http.StatusOK)
	expect(t, "vote after archive", alice.do("POST", "/choices/"+id(yes.ID)+"/vote", nil, nil), http.StatusForbidden)

	if n := len(rec.OfType(events.TypeVoteCast)); n != 3 {
		t.Errorf("Expected 3 vote.cast events, got %d", n)
	}
	if n := len(rec.OfType(events.TypeMemberRemoved)); n != 1 {
		t.Errorf("Expected 1 member_removed event, got %d", n)
	}
	if n := len(rec.OfType(events.TypeStateChanged)); n != 2 {
		t.Errorf("Expected 2 state_changed events, got %d", n)
	}
}
