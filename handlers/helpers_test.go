// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/consensus-engine/cache"
	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/engine"
	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/metrics"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/models"
	"github.com/danielhkuo/consensus-engine/templates"
	"github.com/danielhkuo/consensus-engine/testutil"
)

// memorySpreads is a SpreadCache that counts its traffic.
type memorySpreads struct {
	mu          sync.Mutex
	data        map[string]models.VoteSpread
	sets        int
	invalidated map[int64]int
}

func newMemorySpreads() *memorySpreads {
	return &memorySpreads{data: map[string]models.VoteSpread{}, invalidated: map[int64]int{}}
}

func (m *memorySpreads) Get(_ context.Context, id int64, date *time.Time) (models.VoteSpread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[cache.Key(id, date)]
	return s, ok, nil
}

func (m *memorySpreads) Set(_ context.Context, id int64, date *time.Time, s models.VoteSpread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cache.Key(id, date)] = s
	m.sets++
	return nil
}

func (m *memorySpreads) Invalidate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, cache.Key(id, nil))
	m.invalidated[id]++
	return nil
}

type testEnv struct {
	t       *testing.T
	engine  *engine.Engine
	clock   *testutil.Clock
	cfg     cliparse.Config
	events  *events.Recorder
	spreads *memorySpreads
	metrics *metrics.Metrics
	deps    Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e, clock := testutil.NewTestEngine(t)
	reg, err := templates.Builtin()
	if err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}

	env := &testEnv{
		t:       t,
		engine:  e,
		clock:   clock,
		cfg:     testutil.GetTestConfig(),
		events:  &events.Recorder{},
		spreads: newMemorySpreads(),
		metrics: metrics.New(),
	}
	env.deps = Deps{
		Engine:    e,
		Templates: reg,
		Events:    env.events,
		Spreads:   env.spreads,
		Metrics:   env.metrics,
	}
	return env
}

// call runs h behind RequireUser as userID; 0 sends no token. pathValues
// are name/value pairs.
func (env *testEnv) call(h http.HandlerFunc, method, path string, body interface{}, userID int64, pathValues ...string) *httptest.ResponseRecorder {
	env.t.Helper()

	var headers map[string]string
	if userID != 0 {
		headers = testutil.AuthHeader(env.t, env.cfg, userID)
	}
	req := testutil.MakeRequest(method, path, body, headers)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}

	w := httptest.NewRecorder()
	middleware.RequireUser(env.cfg, h)(w, req)
	return w
}

// serve runs a public handler without authentication.
func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

// publishedGroupProposal returns a PUBLISHED Yes/No proposal in a group
// with the owner and alice as members.
func (env *testEnv) publishedGroupProposal() (owner, alice models.User, g models.ProposalGroup, p models.Proposal, choices []models.ProposalChoice) {
	env.t.Helper()

	owner = testutil.CreateTestUser(env.t, env.engine, "owner")
	alice = testutil.CreateTestUser(env.t, env.engine, "alice")
	g = testutil.CreateTestGroup(env.t, env.engine, owner.ID, "Team")
	testutil.AddTestMember(env.t, env.engine, g.ID, alice.ID, false)
	p, choices = testutil.CreateTestProposal(env.t, env.engine, owner.ID, &g.ID, "Yes", "No")

	if _, err := env.engine.Publish(context.Background(), p.ID, false); err != nil {
		env.t.Fatalf("Failed to publish: %v", err)
	}
	return owner, alice, g, p, choices
}

func idStr(id int64) string {
	return strconv.FormatInt(id, 10)
}
