// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/consensus-engine/auth"
	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/db"
	"github.com/danielhkuo/consensus-engine/engine"
	"github.com/danielhkuo/consensus-engine/models"
)

// SetupTestDB creates a fresh SQLite database with the full schema in a
// temporary directory. It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := "file:" + filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Open(db.SQLite, url)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// One connection serializes writers the way row locks do on Postgres.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn, db.SQLite); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:           3318,
		DatabaseURL:    "file:test.db",
		DatabaseType:   "sqlite",
		TokenSecret:    "test-token-secret",
		TokenTTL:       time.Hour,
		LogLevel:       "info",
		SpreadCacheTTL: 30 * time.Second,
		EventsBroker:   "none",
	}
}

// Clock is a settable time source for engine.WithClock.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// NewTestEngine returns an engine over a fresh database with a controllable clock.
func NewTestEngine(t *testing.T) (*engine.Engine, *Clock) {
	t.Helper()

	clock := NewClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	return engine.New(SetupTestDB(t), db.SQLite, engine.WithClock(clock.Now)), clock
}

// CreateTestUser registers a user and fails the test on error.
func CreateTestUser(t *testing.T, e *engine.Engine, username string) models.User {
	t.Helper()

	u, err := e.CreateUser(context.Background(), username)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// CreateTestGroup creates a group owned by ownerID.
func CreateTestGroup(t *testing.T, e *engine.Engine, ownerID int64, name string) models.ProposalGroup {
	t.Helper()

	g, err := e.CreateGroup(context.Background(), ownerID, name, "")
	if err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}
	return g
}

// AddTestMember joins userID to the group directly.
func AddTestMember(t *testing.T, e *engine.Engine, groupID, userID int64, canTrial bool) {
	t.Helper()

	if _, err := e.JoinGroup(context.Background(), groupID, userID, canTrial); err != nil {
		t.Fatalf("Failed to add test member: %v", err)
	}
}

// CreateTestProposal creates a DRAFT proposal with the given choice texts
// at increasing priority and returns it with the created choices.
func CreateTestProposal(t *testing.T, e *engine.Engine, ownerID int64, groupID *int64, choices ...string) (models.Proposal, []models.ProposalChoice) {
	t.Helper()

	template := make([]models.TemplateChoice, len(choices))
	for i, text := range choices {
		template[i] = models.TemplateChoice{Text: text, Priority: i + 1}
	}

	ctx := context.Background()
	p, err := e.CreateProposal(ctx, engine.NewProposal{
		OwnerID:  ownerID,
		GroupID:  groupID,
		Name:     "Test Proposal",
		Template: template,
	})
	if err != nil {
		t.Fatalf("Failed to create test proposal: %v", err)
	}

	active, err := e.ActiveChoices(ctx, p.ID)
	if err != nil {
		t.Fatalf("Failed to load test choices: %v", err)
	}
	return p, active
}

// IssueTestToken signs a token for userID with the test configuration.
func IssueTestToken(t *testing.T, cfg cliparse.Config, userID int64) string {
	t.Helper()

	token, err := auth.IssueToken(userID, cfg.TokenSecret, cfg.TokenTTL, time.Now())
	if err != nil {
		t.Fatalf("Failed to issue test token: %v", err)
	}
	return token
}

// AuthHeader returns the Authorization header for userID.
func AuthHeader(t *testing.T, cfg cliparse.Config, userID int64) map[string]string {
	t.Helper()
	return map[string]string{"Authorization": "Bearer " + IssueTestToken(t, cfg, userID)}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
