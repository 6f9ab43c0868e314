package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

const (
	Team1 = 1
	Team2 = 2
)

type Match struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournamentId"`
	RoundID      uuid.UUID `db:"round_id" json:"roundId"`
	MatchOrder   int       `db:"match_order" json:"matchOrder"`

	Status       MatchStatus `db:"status" json:"status"`
	Team1Score   int         `db:"team1_score" json:"team1Score"`
	Team2Score   int         `db:"team2_score" json:"team2Score"`
	WinnerTeamID *int        `db:"winner_team_id" json:"winnerTeamId"`
	IsBye        bool        `db:"is_bye" json:"isBye"`

	CompletedAt *time.Time `db:"completed_at" json:"completedAt"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

func (m *Match) IsWinner(teamID int) bool {
	return m.Status == MatchCompleted && m.WinnerTeamID != nil && *m.WinnerTeamID == teamID
}

func (m *Match) IsLoser(teamID int) bool {
	return m.Status == MatchCompleted && m.WinnerTeamID != nil && *m.WinnerTeamID != teamID
}

// MatchParticipant is one player's seat in a match.
type MatchParticipant struct {
	MatchID  uuid.UUID `db:"match_id" json:"matchId"`
	UserID   uuid.UUID `db:"user_id" json:"userId"`
	TeamID   int       `db:"team_id" json:"teamId"`
	GamesWon int       `db:"games_won" json:"gamesWon"`
}

// MatchRow flattens a completed match to one row per seated player.
type MatchRow struct {
	MatchID      uuid.UUID `db:"match_id" json:"matchId"`
	RoundNumber  int       `db:"round_number" json:"roundNumber"`
	WinnerTeamID *int      `db:"winner_team_id" json:"winnerTeamId"`
	IsBye        bool      `db:"is_bye" json:"isBye"`
	Team1Score   int       `db:"team1_score" json:"team1Score"`
	Team2Score   int       `db:"team2_score" json:"team2Score"`
	PlayerID     uuid.UUID `db:"user_id" json:"playerId"`
	TeamID       int       `db:"team_id" json:"teamId"`
	GamesWon     int       `db:"games_won" json:"gamesWon"`
}
