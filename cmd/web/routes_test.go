package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/AdamBeresnev/duel-organizer/internal/db"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/middleware"
	"github.com/AdamBeresnev/duel-organizer/internal/service"
	users "github.com/AdamBeresnev/duel-organizer/internal/user"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err, "Failed to connect to in-memory DB")
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database.DB), "Failed to apply migrations")

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return newRouter(newApplication(database, clock))
}

func do(t *testing.T, h http.Handler, method, path string, caller uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, caller.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func registerUser(t *testing.T, h http.Handler, name string) uuid.UUID {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/users", uuid.Nil, map[string]string{"username": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[users.User](t, rec).ID
}

func TestRequireAuth(t *testing.T) {
	h := newTestRouter(t)
	userID := registerUser(t, h, "yugi")

	rec := do(t, h, http.MethodGet, "/users/me", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/me", uuid.New(), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unknown users are turned away")

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set(middleware.UserIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/me", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yugi", decode[users.User](t, rec).Username)

	rec = do(t, h, http.MethodPatch, "/users/me", userID, map[string]string{"username": "yugi", "tag": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", decode[users.User](t, rec).Tag)
}

func TestTournamentLifecycleOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	organizer := registerUser(t, h, "organizer")
	alice := registerUser(t, h, "alice")
	bob := registerUser(t, h, "bob")

	rec := do(t, h, http.MethodPost, "/tournaments", organizer, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/tournaments", organizer, map[string]any{"name": "Locals"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"ownerId":"`+organizer.String()+`"`)
	tournament := decode[bracket.Tournament](t, rec)
	base := "/tournaments/" + tournament.ID.String()

	rec = do(t, h, http.MethodGet, "/tournaments", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bracket.Tournament](t, rec), 1)

	for _, player := range []uuid.UUID{alice, bob} {
		rec = do(t, h, http.MethodPost, base+"/participants", player, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, base+"/participants", alice, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "registering twice")

	rec = do(t, h, http.MethodPost, base+"/start", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "only the organizer starts")

	rec = do(t, h, http.MethodPost, base+"/start", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	start := decode[service.RoundResult](t, rec)
	assert.Equal(t, 1, start.RoundNumber)
	require.Len(t, start.Pairings, 1)

	rec = do(t, h, http.MethodPost, base+"/start", organizer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "already running")

	rec = do(t, h, http.MethodGet, base, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode[service.TournamentData](t, rec)
	require.Len(t, data.Matches, 1)
	matchPath := "/matches/" + data.Matches[0].ID.String()

	rec = do(t, h, http.MethodPost, base+"/advance", organizer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "the match is still pending")

	rec = do(t, h, http.MethodPost, matchPath+"/result", alice, map[string]int{"team1Score": 1, "team2Score": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "draws are rejected")

	rec = do(t, h, http.MethodPost, matchPath+"/result", alice, map[string]int{"team1Score": 0, "team2Score": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, bracket.Team2, decode[service.MatchResult](t, rec).WinnerTeamID)

	rec = do(t, h, http.MethodGet, matchPath, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bracket.MatchCompleted, decode[service.MatchData](t, rec).Match.Status)

	rec = do(t, h, http.MethodPost, base+"/advance", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[service.AdvanceResult](t, rec).Completed)

	rec = do(t, h, http.MethodGet, base+"/standings", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var standings []struct {
		UserID    uuid.UUID `json:"userId"`
		MatchWins int       `json:"matchWins"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&standings))
	require.Len(t, standings, 2)
	assert.Equal(t, 1, standings[0].MatchWins)
	assert.Equal(t, 0, standings[1].MatchWins)

	rec = do(t, h, http.MethodGet, "/tournaments/not-a-uuid", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/tournaments/"+uuid.NewString(), alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomCardRoutes(t *testing.T) {
	h := newTestRouter(t)
	designer := registerUser(t, h, "designer")

	rec := do(t, h, http.MethodPost, "/custom-cards", designer, map[string]any{"name": "Meteor Wyrm", "cardType": "Monster", "atk": 1000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	card := decode[deck.CustomCard](t, rec)
	cardPath := "/custom-cards/" + card.ID.String()

	rec = do(t, h, http.MethodPatch, cardPath, designer, map[string]any{"atk": 2000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var edit struct {
		Card struct {
			Version int `json:"version"`
		} `json:"card"`
		PropagatedTo int `json:"propagatedTo"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&edit))
	assert.Equal(t, 2, edit.Card.Version)
	assert.Equal(t, 0, edit.PropagatedTo)

	rec = do(t, h, http.MethodPatch, cardPath, designer, map[string]any{"power": 9000})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are not editable")

	rec = do(t, h, http.MethodPatch, cardPath, designer, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, cardPath, designer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.DeleteHard, decode[service.DeleteResult](t, rec).Type)

	rec = do(t, h, http.MethodGet, cardPath, designer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshotRoutesStayWithOwners(t *testing.T) {
	h := newTestRouter(t)
	victim := registerUser(t, h, "victim")
	organizer := registerUser(t, h, "organizer")

	createCollection := func(owner uuid.UUID) uuid.UUID {
		rec := do(t, h, http.MethodPost, "/collections", owner, map[string]any{"name": "Cube"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		collectionID := decode[deck.Collection](t, rec).ID
		rec = do(t, h, http.MethodPost, "/collections/"+collectionID.String()+"/decks", owner, map[string]any{"name": "Hidden Deck"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return collectionID
	}
	hidden := createCollection(victim)
	own := createCollection(organizer)

	rec := do(t, h, http.MethodPost, "/tournaments", organizer, map[string]any{"name": "Locals"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snapshotsPath := "/tournaments/" + decode[bracket.Tournament](t, rec).ID.String() + "/snapshots"

	rec = do(t, h, http.MethodPost, snapshotsPath, organizer, map[string]any{"collectionId": hidden})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, snapshotsPath, organizer, map[string]any{"collectionId": own})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snapshotPath := "/snapshots/" + decode[service.SnapshotResult](t, rec).SnapshotID.String()

	rec = do(t, h, http.MethodGet, snapshotPath, victim, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, snapshotPath, organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[service.SnapshotView](t, rec)
	assert.Equal(t, own, view.Snapshot.SourceCollectionID)
	require.Len(t, view.Decks, 1)
	assert.Equal(t, "Hidden Deck", view.Decks[0].Name)
}
