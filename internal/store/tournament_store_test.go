package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/AdamBeresnev/duel-organizer/internal/db"
	users "github.com/AdamBeresnev/duel-organizer/internal/user"
	"github.com/AdamBeresnev/duel-organizer/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err, "Failed to connect to in-memory DB")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database.DB), "Failed to apply migrations")
	return database
}

func createTestUser(t *testing.T, database *sqlx.DB, name string) uuid.UUID {
	t.Helper()
	user := &users.User{ID: uuid.New(), Username: name, CreatedAt: testNow}
	require.NoError(t, NewUserStore(database).CreateUser(context.Background(), user))
	return user.ID
}

func createTestTournament(t *testing.T, database *sqlx.DB, ownerID uuid.UUID) *bracket.Tournament {
	t.Helper()
	tournament := &bracket.Tournament{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      "Locals",
		Status:    bracket.TournamentOpen,
		DeckMode:  bracket.DeckModeNone,
		CreatedAt: testNow,
	}
	require.NoError(t, NewTournamentStore(database).CreateTournament(context.Background(), database, tournament))
	return tournament
}

func TestCreateTournament(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	ownerID := createTestUser(t, database, "owner")
	collectionID := uuid.New()
	tournament := &bracket.Tournament{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Name:             "Test Tournament",
		Status:           bracket.TournamentOpen,
		TotalRounds:      utils.Ptr(4),
		DeckMode:         bracket.DeckModePlayer,
		AllowCustomCards: true,
		CollectionID:     &collectionID,
		CreatedAt:        testNow,
	}

	tx, err := database.BeginTxx(ctx, nil)
	require.NoError(t, err)

	err = store.CreateTournament(ctx, tx, tournament)
	require.NoError(t, err)

	err = tx.Commit()
	require.NoError(t, err)

	fetched, err := store.GetTournament(ctx, database, tournament.ID)
	require.NoError(t, err)

	assert.Equal(t, tournament.ID, fetched.ID)
	assert.Equal(t, tournament.Name, fetched.Name)
	assert.Equal(t, bracket.TournamentOpen, fetched.Status)
	assert.Equal(t, 4, *fetched.TotalRounds)
	assert.Equal(t, bracket.DeckModePlayer, fetched.DeckMode)
	assert.True(t, fetched.AllowCustomCards)
	assert.False(t, fetched.LockSnapshotOnStart)
	assert.Equal(t, collectionID, *fetched.CollectionID)
	assert.Nil(t, fetched.SnapshotID)

	owned, err := store.GetTournamentsByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestTournamentTransitionsAreGuarded(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "owner"))

	require.NoError(t, store.MarkStarted(ctx, database, tournament.ID, 2, nil))
	assert.ErrorIs(t, store.MarkStarted(ctx, database, tournament.ID, 2, nil), ErrStaleWrite)

	require.NoError(t, store.MarkRoundAdvanced(ctx, database, tournament.ID, 1))
	// a second caller that also saw round 1 loses
	assert.ErrorIs(t, store.MarkRoundAdvanced(ctx, database, tournament.ID, 1), ErrStaleWrite)

	assert.ErrorIs(t, store.MarkCompleted(ctx, database, tournament.ID, 1), ErrStaleWrite)
	require.NoError(t, store.MarkCompleted(ctx, database, tournament.ID, 2))

	fetched, err := store.GetTournament(ctx, database, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentCompleted, fetched.Status)
	assert.Equal(t, 2, fetched.CurrentRound)
	assert.Equal(t, 2, *fetched.TotalRounds)
}

func TestParticipants(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "owner"))
	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	require.NoError(t, store.AddParticipant(ctx, database, tournament.ID, bob, testNow))
	require.NoError(t, store.AddParticipant(ctx, database, tournament.ID, alice, testNow.Add(time.Minute)))

	err := store.AddParticipant(ctx, database, tournament.ID, bob, testNow)
	assert.True(t, IsUniqueViolation(err))

	participants, err := store.GetParticipants(ctx, database, tournament.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "bob", participants[0].DisplayName)
	assert.Equal(t, "alice", participants[1].DisplayName)

	deckID := uuid.New()
	require.NoError(t, store.SetParticipantDeck(ctx, database, tournament.ID, alice, &deckID))
	assert.ErrorIs(t, store.SetParticipantDeck(ctx, database, tournament.ID, uuid.New(), &deckID), ErrStaleWrite)

	holders, err := store.CountDeckHolders(ctx, database, tournament.ID, deckID, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, holders)

	holders, err = store.CountDeckHolders(ctx, database, tournament.ID, deckID, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, holders)

	participant, err := store.GetParticipant(ctx, database, tournament.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, deckID, *participant.DeckID)

	_, err = store.GetParticipant(ctx, database, tournament.ID, uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestOnlyOneRoundInProgress(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "owner"))

	first := &bracket.Round{ID: uuid.New(), TournamentID: tournament.ID, RoundNumber: 1, Status: bracket.RoundInProgress, CreatedAt: testNow}
	require.NoError(t, store.CreateRound(ctx, database, first))

	second := &bracket.Round{ID: uuid.New(), TournamentID: tournament.ID, RoundNumber: 2, Status: bracket.RoundInProgress, CreatedAt: testNow}
	assert.True(t, IsUniqueViolation(store.CreateRound(ctx, database, second)))

	require.NoError(t, store.CompleteRound(ctx, database, first.ID, testNow))
	assert.ErrorIs(t, store.CompleteRound(ctx, database, first.ID, testNow), ErrStaleWrite)
	require.NoError(t, store.CreateRound(ctx, database, second))

	duplicate := &bracket.Round{ID: uuid.New(), TournamentID: tournament.ID, RoundNumber: 2, Status: bracket.RoundCompleted, CreatedAt: testNow}
	assert.True(t, IsUniqueViolation(store.CreateRound(ctx, database, duplicate)))

	rounds, err := store.GetRounds(ctx, database, tournament.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, bracket.RoundCompleted, rounds[0].Status)
	assert.NotNil(t, rounds[0].CompletedAt)
	assert.Equal(t, bracket.RoundInProgress, rounds[1].Status)
}

func TestMatchLifecycle(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "owner"))
	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")
	carol := createTestUser(t, database, "carol")

	round := &bracket.Round{ID: uuid.New(), TournamentID: tournament.ID, RoundNumber: 1, Status: bracket.RoundInProgress, CreatedAt: testNow}
	require.NoError(t, store.CreateRound(ctx, database, round))

	played := bracket.Match{ID: uuid.New(), TournamentID: tournament.ID, RoundID: round.ID, MatchOrder: 1, Status: bracket.MatchPending, CreatedAt: testNow}
	bye := bracket.Match{
		ID: uuid.New(), TournamentID: tournament.ID, RoundID: round.ID, MatchOrder: 2,
		Status: bracket.MatchCompleted, WinnerTeamID: utils.Ptr(bracket.Team1), IsBye: true,
		CompletedAt: &testNow, CreatedAt: testNow,
	}
	require.NoError(t, store.CreateMatches(ctx, database, []bracket.Match{played, bye}))
	require.NoError(t, store.CreateMatchParticipants(ctx, database, []bracket.MatchParticipant{
		{MatchID: played.ID, UserID: alice, TeamID: bracket.Team1},
		{MatchID: played.ID, UserID: bob, TeamID: bracket.Team2},
		{MatchID: bye.ID, UserID: carol, TeamID: bracket.Team1},
	}))

	unfinished, err := store.CountUnfinishedMatches(ctx, database, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unfinished)

	played.Status = bracket.MatchCompleted
	played.Team1Score = 2
	played.Team2Score = 1
	played.WinnerTeamID = utils.Ptr(bracket.Team1)
	played.CompletedAt = &testNow
	require.NoError(t, store.CompleteMatch(ctx, database, &played))
	assert.ErrorIs(t, store.CompleteMatch(ctx, database, &played), ErrStaleWrite)

	require.NoError(t, store.SetTeamGamesWon(ctx, database, played.ID, bracket.Team1, 2))
	require.NoError(t, store.SetTeamGamesWon(ctx, database, played.ID, bracket.Team2, 1))

	unfinished, err = store.CountUnfinishedMatches(ctx, database, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unfinished)

	fetched, err := store.GetMatch(ctx, database, played.ID)
	require.NoError(t, err)
	assert.True(t, fetched.IsWinner(bracket.Team1))
	assert.True(t, fetched.IsLoser(bracket.Team2))

	rows, err := store.GetCompletedMatchRows(ctx, database, tournament.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, alice, rows[0].PlayerID)
	assert.Equal(t, 2, rows[0].GamesWon)
	assert.Equal(t, bob, rows[1].PlayerID)
	assert.Equal(t, 1, rows[1].GamesWon)
	assert.True(t, rows[2].IsBye)

	matches, err := store.GetMatches(ctx, database, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	seats, err := store.GetMatchParticipants(ctx, database, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 3)
}

func TestCompletedMatchNeedsWinner(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "owner"))
	round := &bracket.Round{ID: uuid.New(), TournamentID: tournament.ID, RoundNumber: 1, Status: bracket.RoundInProgress, CreatedAt: testNow}
	require.NoError(t, store.CreateRound(ctx, database, round))

	broken := bracket.Match{ID: uuid.New(), TournamentID: tournament.ID, RoundID: round.ID, MatchOrder: 1, Status: bracket.MatchCompleted, CreatedAt: testNow}
	err := store.CreateMatches(ctx, database, []bracket.Match{broken})
	assert.True(t, IsConstraintViolation(err))
}
