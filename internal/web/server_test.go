package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/review"
	"github.com/brainstormbuddy/studybuddy/internal/storage"
	"github.com/brainstormbuddy/studybuddy/internal/sync"
)

var today = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := review.NewManager(db, nil, 0)
	sessions.Now = func() time.Time { return today }
	syncer := sync.New(db, filepath.Join(dir, "repos"))
	syncer.Now = sessions.Now

	ts := httptest.NewServer(NewServer(db, sessions, syncer))
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, t: t}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (ts *testServer) do(method, path string, body, out any) int {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) createUser(name string) domain.User {
	ts.t.Helper()
	var u domain.User
	require.Equal(ts.t, http.StatusCreated, ts.do("POST", "/api/users", map[string]string{"username": name}, &u))
	return u
}

func (ts *testServer) createDeck(userID int64, topic string, public bool) domain.Deck {
	ts.t.Helper()
	var d domain.Deck
	status := ts.do("POST", fmt.Sprintf("/api/users/%d/decks", userID), map[string]any{
		"topic":  topic,
		"public": public,
		"cards": []map[string]string{
			{"front": "Capital of France?", "back": "Paris"},
			{"front": "2 + 2?", "back": "4", "context": "arithmetic"},
		},
	}, &d)
	require.Equal(ts.t, http.StatusCreated, status)
	return d
}

func TestCreateUser(t *testing.T) {
	ts := newTestServer(t)

	u := ts.createUser("ada")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ada", u.Username)

	var e apiError
	assert.Equal(t, http.StatusConflict, ts.do("POST", "/api/users", map[string]string{"username": "ada"}, &e))
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/users", map[string]string{}, &e))
	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/api/users/999/stats", nil, &e))
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/users/abc/stats", nil, &e))
}

func TestCreateDeckValidation(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUser("ada")

	var e apiError
	status := ts.do("POST", fmt.Sprintf("/api/users/%d/decks", u.ID), map[string]any{
		"topic": "Empty",
		"cards": []map[string]string{},
	}, &e)
	assert.Equal(t, http.StatusBadRequest, status)

	status = ts.do("POST", fmt.Sprintf("/api/users/%d/decks", u.ID), map[string]any{
		"topic": "Missing back",
		"cards": []map[string]string{{"front": "Q"}},
	}, &e)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestReviewSession(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUser("ada")
	deck := ts.createDeck(u.ID, "Basics", false)
	assert.Equal(t, 2, deck.CardCount)

	var due struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, ts.do("GET", fmt.Sprintf("/api/users/%d/due", u.ID), nil, &due))
	assert.Equal(t, 2, due.Count)

	var snap review.Snapshot
	require.Equal(t, http.StatusCreated, ts.do("POST", fmt.Sprintf("/api/users/%d/sessions", u.ID), nil, &snap))
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, 2, snap.Total)
	require.NotNil(t, snap.Card)
	assert.Empty(t, snap.Card.Back)

	sessionPath := "/api/sessions/" + snap.ID
	var e apiError
	assert.Equal(t, http.StatusConflict, ts.do("POST", sessionPath+"/rating", map[string]string{"rating": "good"}, &e))

	require.Equal(t, http.StatusOK, ts.do("POST", sessionPath+"/reveal", nil, &snap))
	require.NotNil(t, snap.Card)
	assert.Equal(t, "Paris", snap.Card.Back)

	assert.Equal(t, http.StatusBadRequest, ts.do("POST", sessionPath+"/rating", map[string]string{"rating": "2"}, &e))

	var rated ratingResponse
	require.Equal(t, http.StatusOK, ts.do("POST", sessionPath+"/rating", map[string]string{"rating": "good"}, &rated))
	assert.Equal(t, 1, rated.Schedule.Interval)
	assert.Equal(t, 1, rated.Schedule.Repetitions)
	assert.True(t, rated.Schedule.NextReviewDate.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, rated.Session.Reviewed)
	assert.Equal(t, 1, rated.Session.Remaining)

	require.Equal(t, http.StatusOK, ts.do("POST", sessionPath+"/reveal", nil, &snap))
	require.Equal(t, http.StatusOK, ts.do("POST", sessionPath+"/rating", map[string]string{"rating": "0"}, &rated))
	assert.Equal(t, 0, rated.Session.Remaining)
	assert.Nil(t, rated.Session.Card)

	assert.Equal(t, http.StatusConflict, ts.do("POST", sessionPath+"/reveal", nil, &e))

	var stats review.Stats
	require.Equal(t, http.StatusOK, ts.do("GET", fmt.Sprintf("/api/users/%d/stats", u.ID), nil, &stats))
	assert.Equal(t, 2, stats.TotalCards)
	assert.Equal(t, 2, stats.ReviewedToday)
	assert.Equal(t, 1, stats.StreakDays)
	assert.Equal(t, 0, stats.DueToday)

	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", sessionPath, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do("GET", sessionPath, nil, &e))
}

func TestCommunityClone(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.createUser("ada")
	learner := ts.createUser("grace")
	deck := ts.createDeck(owner.ID, "Basics", false)

	var e apiError
	clonePath := fmt.Sprintf("/api/community/decks/%d/clone", deck.ID)
	assert.Equal(t, http.StatusForbidden, ts.do("POST", clonePath, map[string]int64{"user_id": learner.ID}, &e))

	assert.Equal(t, http.StatusNoContent, ts.do("PUT", fmt.Sprintf("/api/decks/%d/public", deck.ID), map[string]bool{"public": true}, nil))

	var public []domain.Deck
	require.Equal(t, http.StatusOK, ts.do("GET", "/api/community/decks", nil, &public))
	require.Len(t, public, 1)
	assert.Equal(t, deck.ID, public[0].ID)

	var clone domain.Deck
	require.Equal(t, http.StatusCreated, ts.do("POST", clonePath, map[string]int64{"user_id": learner.ID}, &clone))
	assert.NotEqual(t, deck.ID, clone.ID)
	assert.Equal(t, learner.ID, clone.UserID)
	assert.Equal(t, "Basics", clone.Topic)
	assert.False(t, clone.Public)

	var cards []domain.Card
	require.Equal(t, http.StatusOK, ts.do("GET", fmt.Sprintf("/api/decks/%d/cards", clone.ID), nil, &cards))
	assert.Len(t, cards, 2)

	assert.Equal(t, http.StatusNotFound, ts.do("POST", "/api/community/decks/999/clone", map[string]int64{"user_id": learner.ID}, &e))
	assert.Equal(t, http.StatusNotFound, ts.do("PUT", "/api/decks/999/public", map[string]bool{"public": true}, &e))
	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", fmt.Sprintf("/api/decks/%d", clone.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", fmt.Sprintf("/api/decks/%d", clone.ID), nil, &e))
	assert.Equal(t, http.StatusBadRequest, ts.do("PUT", fmt.Sprintf("/api/decks/%d/public", deck.ID), map[string]string{}, &e))
}

func TestSourcesAndSync(t *testing.T) {
	ts := newTestServer(t)
	u := ts.createUser("ada")

	notes := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notes, "go.md"), []byte("# Go\nQ: Zero value of a map?\nA: nil\n"), 0o644))

	var e apiError
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/sources", map[string]any{"user_id": u.ID, "path": filepath.Join(notes, "missing")}, &e))

	var src domain.Source
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/sources", map[string]any{"user_id": u.ID, "path": notes}, &src))
	assert.Equal(t, domain.SourceLocal, src.Type)
	assert.Equal(t, http.StatusConflict, ts.do("POST", "/api/sources", map[string]any{"user_id": u.ID, "path": notes}, &e))

	var result struct {
		Report sync.Report `json:"report"`
		Errors []string    `json:"errors"`
	}
	require.Equal(t, http.StatusOK, ts.do("POST", "/api/sync", nil, &result))
	assert.Equal(t, 1, result.Report.NewCards)
	assert.Empty(t, result.Errors)

	var decks []domain.Deck
	require.Equal(t, http.StatusOK, ts.do("GET", fmt.Sprintf("/api/users/%d/decks", u.ID), nil, &decks))
	require.Len(t, decks, 1)
	assert.Equal(t, "Go", decks[0].Topic)

	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", fmt.Sprintf("/api/sources/%d", src.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", fmt.Sprintf("/api/sources/%d", src.ID), nil, &e))

	require.Equal(t, http.StatusOK, ts.do("GET", fmt.Sprintf("/api/users/%d/decks", u.ID), nil, &decks))
	assert.Empty(t, decks)
}
