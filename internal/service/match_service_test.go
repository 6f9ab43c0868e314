package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMatchViewData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	matchService := NewMatchService(env.db, env.tournaments)

	ownerID := env.createUser(t, "organizer")
	tournament, _ := env.openTournament(t, ownerID, 4, CreateTournamentInput{})
	start, err := env.tournamentService.StartTournament(ctx, ownerID, tournament.ID)
	require.NoError(t, err)

	matches, err := env.tournaments.GetRoundMatches(ctx, env.db, start.RoundID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	first, second := matches[0], matches[1]

	_, err = env.tournamentService.ReportMatchResult(ctx, ownerID, first.ID, 2, 1)
	require.NoError(t, err)

	data, err := matchService.GetMatchViewData(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchCompleted, data.Match.Status)
	assert.Equal(t, 1, data.RoundNumber)
	require.Len(t, data.Seats, 2)
	assert.Equal(t, bracket.Team1, data.Seats[0].TeamID)
	assert.Equal(t, 2, data.Seats[0].GamesWon)
	assert.Equal(t, 1, data.Seats[1].GamesWon)
	assert.ElementsMatch(t, []string{"player1", "player2"}, []string{data.Seats[0].DisplayName, data.Seats[1].DisplayName})
	require.NotNil(t, data.NextMatchID)
	assert.Equal(t, second.ID, *data.NextMatchID)

	last, err := matchService.GetMatchViewData(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, last.NextMatchID, "nothing follows the last match of a round")

	_, err = matchService.GetMatchViewData(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
