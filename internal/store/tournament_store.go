package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TournamentStore reads and writes tournaments, participants, rounds and
// matches. Every method takes the querier to run on, so a service can thread
// one *sqlx.Tx through a whole operation.
type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

const (
	participantColumns = `
		p.tournament_id, p.user_id, u.username, u.tag, p.deck_id, p.snapshot_deck_id, p.joined_at`

	matchRowsQuery = `
		SELECT m.id AS match_id, r.round_number, m.winner_team_id, m.is_bye, m.team1_score, m.team2_score,
			mp.user_id, mp.team_id, mp.games_won
		FROM matches m
		JOIN rounds r ON r.id = m.round_id
		JOIN match_participants mp ON mp.match_id = m.id
		WHERE m.tournament_id = ? AND m.status = 'completed'
		ORDER BY r.round_number ASC, m.match_order ASC, mp.team_id ASC`
)

func (s *TournamentStore) CreateTournament(ctx context.Context, q sqlx.ExtContext, tournament *bracket.Tournament) error {
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO tournaments (id, owner_id, name, status, current_round, total_rounds,
			deck_mode, allow_custom_cards, lock_snapshot_on_start, collection_id, series_id, created_at)
		VALUES (:id, :owner_id, :name, :status, :current_round, :total_rounds,
			:deck_mode, :allow_custom_cards, :lock_snapshot_on_start, :collection_id, :series_id, :created_at)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := sqlx.GetContext(ctx, q, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

func (s *TournamentStore) GetTournamentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]bracket.Tournament, error) {
	tournaments := []bracket.Tournament{}
	err := s.db.SelectContext(ctx, &tournaments, "SELECT * FROM tournaments WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
	return tournaments, err
}

// MarkStarted moves an open tournament to round 1. ErrStaleWrite if it was no longer open.
func (s *TournamentStore) MarkStarted(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, totalRounds int, snapshotID *uuid.UUID) error {
	return requireRow(q.ExecContext(ctx, `UPDATE tournaments
		SET status = 'in_progress', current_round = 1, total_rounds = ?, snapshot_id = ?
		WHERE id = ? AND status = 'open'`, totalRounds, snapshotID, id))
}

// MarkRoundAdvanced bumps current_round only if it still equals fromRound.
func (s *TournamentStore) MarkRoundAdvanced(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, fromRound int) error {
	return requireRow(q.ExecContext(ctx, `UPDATE tournaments
		SET current_round = current_round + 1
		WHERE id = ? AND status = 'in_progress' AND current_round = ?`, id, fromRound))
}

func (s *TournamentStore) MarkCompleted(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, atRound int) error {
	return requireRow(q.ExecContext(ctx, `UPDATE tournaments
		SET status = 'completed'
		WHERE id = ? AND status = 'in_progress' AND current_round = ?`, id, atRound))
}

// SetSnapshot records the snapshot a still-open tournament's collection was frozen into.
func (s *TournamentStore) SetSnapshot(ctx context.Context, q sqlx.ExtContext, id, snapshotID uuid.UUID) error {
	return requireRow(q.ExecContext(ctx, "UPDATE tournaments SET snapshot_id = ? WHERE id = ? AND status = 'open'", snapshotID, id))
}

func (s *TournamentStore) AddParticipant(ctx context.Context, q sqlx.ExtContext, tournamentID, userID uuid.UUID, joinedAt time.Time) error {
	_, err := q.ExecContext(ctx, `INSERT INTO tournament_participants (tournament_id, user_id, joined_at) VALUES (?, ?, ?)`,
		tournamentID, userID, joinedAt)
	return err
}

func (s *TournamentStore) GetParticipants(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]bracket.Participant, error) {
	participants := []bracket.Participant{}
	err := sqlx.SelectContext(ctx, q, &participants, `SELECT`+participantColumns+`
		FROM tournament_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.tournament_id = ?
		ORDER BY p.joined_at ASC, p.user_id ASC`, tournamentID)
	return participants, err
}

func (s *TournamentStore) GetParticipant(ctx context.Context, q sqlx.ExtContext, tournamentID, userID uuid.UUID) (*bracket.Participant, error) {
	var participant bracket.Participant
	err := sqlx.GetContext(ctx, q, &participant, `SELECT`+participantColumns+`
		FROM tournament_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.tournament_id = ? AND p.user_id = ?`, tournamentID, userID)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *TournamentStore) SetParticipantDeck(ctx context.Context, q sqlx.ExtContext, tournamentID, userID uuid.UUID, deckID *uuid.UUID) error {
	return requireRow(q.ExecContext(ctx, `UPDATE tournament_participants SET deck_id = ? WHERE tournament_id = ? AND user_id = ?`,
		deckID, tournamentID, userID))
}

func (s *TournamentStore) SetParticipantSnapshotDeck(ctx context.Context, q sqlx.ExtContext, tournamentID, userID, snapshotDeckID uuid.UUID) error {
	return requireRow(q.ExecContext(ctx, `UPDATE tournament_participants SET snapshot_deck_id = ? WHERE tournament_id = ? AND user_id = ?`,
		snapshotDeckID, tournamentID, userID))
}

// CountDeckHolders counts participants other than userID holding deckID.
func (s *TournamentStore) CountDeckHolders(ctx context.Context, q sqlx.ExtContext, tournamentID, deckID, userID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM tournament_participants
		WHERE tournament_id = ? AND deck_id = ? AND user_id <> ?`, tournamentID, deckID, userID)
	return count, err
}

func (s *TournamentStore) CreateRound(ctx context.Context, q sqlx.ExtContext, round *bracket.Round) error {
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO rounds (id, tournament_id, round_number, status, created_at)
		VALUES (:id, :tournament_id, :round_number, :status, :created_at)`, round)
	return err
}

func (s *TournamentStore) GetRound(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID, roundNumber int) (*bracket.Round, error) {
	var round bracket.Round
	err := sqlx.GetContext(ctx, q, &round, "SELECT * FROM rounds WHERE tournament_id = ? AND round_number = ?", tournamentID, roundNumber)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (s *TournamentStore) GetRounds(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]bracket.Round, error) {
	rounds := []bracket.Round{}
	err := sqlx.SelectContext(ctx, q, &rounds, "SELECT * FROM rounds WHERE tournament_id = ? ORDER BY round_number ASC", tournamentID)
	return rounds, err
}

func (s *TournamentStore) CompleteRound(ctx context.Context, q sqlx.ExtContext, roundID uuid.UUID, completedAt time.Time) error {
	return requireRow(q.ExecContext(ctx, `UPDATE rounds SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'in_progress'`, completedAt, roundID))
}

func (s *TournamentStore) CreateMatches(ctx context.Context, q sqlx.ExtContext, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO matches (id, tournament_id, round_id, match_order, status,
			team1_score, team2_score, winner_team_id, is_bye, completed_at, created_at)
		VALUES (:id, :tournament_id, :round_id, :match_order, :status,
			:team1_score, :team2_score, :winner_team_id, :is_bye, :completed_at, :created_at)`, matches)
	return err
}

func (s *TournamentStore) CreateMatchParticipants(ctx context.Context, q sqlx.ExtContext, seats []bracket.MatchParticipant) error {
	if len(seats) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO match_participants (match_id, user_id, team_id, games_won)
		VALUES (:match_id, :user_id, :team_id, :games_won)`, seats)
	return err
}

func (s *TournamentStore) GetMatch(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := sqlx.GetContext(ctx, q, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *TournamentStore) GetMatches(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]bracket.Match, error) {
	matches := []bracket.Match{}
	err := sqlx.SelectContext(ctx, q, &matches, `SELECT m.* FROM matches m
		JOIN rounds r ON r.id = m.round_id
		WHERE m.tournament_id = ?
		ORDER BY r.round_number ASC, m.match_order ASC`, tournamentID)
	return matches, err
}

func (s *TournamentStore) GetRoundMatches(ctx context.Context, q sqlx.ExtContext, roundID uuid.UUID) ([]bracket.Match, error) {
	matches := []bracket.Match{}
	err := sqlx.SelectContext(ctx, q, &matches, "SELECT * FROM matches WHERE round_id = ? ORDER BY match_order ASC", roundID)
	return matches, err
}

func (s *TournamentStore) GetMatchParticipants(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]bracket.MatchParticipant, error) {
	seats := []bracket.MatchParticipant{}
	err := sqlx.SelectContext(ctx, q, &seats, `SELECT mp.* FROM match_participants mp
		JOIN matches m ON m.id = mp.match_id
		WHERE m.tournament_id = ?
		ORDER BY mp.match_id ASC, mp.team_id ASC`, tournamentID)
	return seats, err
}

func (s *TournamentStore) GetMatchSeats(ctx context.Context, q sqlx.ExtContext, matchID uuid.UUID) ([]bracket.MatchParticipant, error) {
	seats := []bracket.MatchParticipant{}
	err := sqlx.SelectContext(ctx, q, &seats, "SELECT * FROM match_participants WHERE match_id = ? ORDER BY team_id ASC", matchID)
	return seats, err
}

func (s *TournamentStore) CountUnfinishedMatches(ctx context.Context, q sqlx.ExtContext, roundID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, "SELECT COUNT(*) FROM matches WHERE round_id = ? AND status <> 'completed'", roundID)
	return count, err
}

// CompleteMatch records the final score. ErrStaleWrite if the match was already completed.
func (s *TournamentStore) CompleteMatch(ctx context.Context, q sqlx.ExtContext, match *bracket.Match) error {
	return requireRow(sqlx.NamedExecContext(ctx, q, `UPDATE matches
		SET status = :status, team1_score = :team1_score, team2_score = :team2_score,
			winner_team_id = :winner_team_id, completed_at = :completed_at
		WHERE id = :id AND status <> 'completed'`, match))
}

func (s *TournamentStore) SetTeamGamesWon(ctx context.Context, q sqlx.ExtContext, matchID uuid.UUID, teamID, gamesWon int) error {
	_, err := q.ExecContext(ctx, "UPDATE match_participants SET games_won = ? WHERE match_id = ? AND team_id = ?", gamesWon, matchID, teamID)
	return err
}

func (s *TournamentStore) GetCompletedMatchRows(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]bracket.MatchRow, error) {
	rows := []bracket.MatchRow{}
	err := sqlx.SelectContext(ctx, q, &rows, matchRowsQuery, tournamentID)
	return rows, err
}
