package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/AdamBeresnev/duel-organizer/internal/swiss"
	"github.com/AdamBeresnev/duel-organizer/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Shuffler randomises round-one seating. It has the signature of rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

type TournamentService struct {
	db        *sqlx.DB
	store     *store.TournamentStore
	snapshots *SnapshotService
	clock     clockwork.Clock
	shuffle   Shuffler
}

// NewTournamentService wires the Swiss state machine. A nil shuffle falls back to rand.Shuffle.
func NewTournamentService(db *sqlx.DB, store *store.TournamentStore, snapshots *SnapshotService, clock clockwork.Clock, shuffle Shuffler) *TournamentService {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	return &TournamentService{db: db, store: store, snapshots: snapshots, clock: clock, shuffle: shuffle}
}

type CreateTournamentInput struct {
	Name                string
	TotalRounds         *int
	CollectionID        *uuid.UUID
	SeriesID            *uuid.UUID
	DeckMode            bracket.DeckMode
	AllowCustomCards    bool
	LockSnapshotOnStart bool
}

type TournamentData struct {
	Tournament   *bracket.Tournament        `json:"tournament"`
	Participants []bracket.Participant      `json:"participants"`
	Rounds       []bracket.Round            `json:"rounds"`
	Matches      []bracket.Match            `json:"matches"`
	Seats        []bracket.MatchParticipant `json:"seats"`
}

type RoundResult struct {
	RoundID     uuid.UUID       `json:"roundId"`
	RoundNumber int             `json:"roundNumber"`
	Pairings    []swiss.Pairing `json:"pairings"`
	SnapshotID  *uuid.UUID      `json:"snapshotId,omitempty"`
}

type AdvanceResult struct {
	Completed bool `json:"completed"`
	*RoundResult
}

type MatchResult struct {
	WinnerTeamID int `json:"winnerTeamId"`
}

func (in CreateTournamentInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("tournament name is required")
	}
	if in.TotalRounds != nil && *in.TotalRounds < 1 {
		return apperr.Validation("total rounds must be at least 1")
	}
	switch in.DeckMode {
	case bracket.DeckModeNone, bracket.DeckModePlayer, bracket.DeckModeOrganizer:
	default:
		return apperr.Validation("unknown deck mode %q", in.DeckMode)
	}
	if in.DeckMode != bracket.DeckModeNone && in.CollectionID == nil {
		return apperr.Validation("deck mode %q needs a collection", in.DeckMode)
	}
	if in.LockSnapshotOnStart && !in.AllowCustomCards {
		return apperr.Validation("only custom-card tournaments have a snapshot lock")
	}
	return nil
}

func (s *TournamentService) CreateTournament(ctx context.Context, ownerID uuid.UUID, in CreateTournamentInput) (*bracket.Tournament, error) {
	if in.DeckMode == "" {
		in.DeckMode = bracket.DeckModeNone
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if in.CollectionID != nil {
		collections := s.snapshots.collections(deck.VariantFor(in.AllowCustomCards))
		collection, err := collections.GetCollection(ctx, tx, *in.CollectionID)
		if err != nil {
			return nil, lookupErr(err, "collection", *in.CollectionID)
		}
		if collection.UserID != ownerID {
			return nil, apperr.NotFound("collection %s not found", *in.CollectionID)
		}
	}

	tournament := &bracket.Tournament{
		ID:                  uuid.New(),
		OwnerID:             ownerID,
		Name:                strings.TrimSpace(in.Name),
		Status:              bracket.TournamentOpen,
		TotalRounds:         in.TotalRounds,
		DeckMode:            in.DeckMode,
		AllowCustomCards:    in.AllowCustomCards,
		LockSnapshotOnStart: in.LockSnapshotOnStart,
		CollectionID:        in.CollectionID,
		SeriesID:            in.SeriesID,
		CreatedAt:           s.clock.Now().UTC(),
	}
	if err := s.store.CreateTournament(ctx, tx, tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	log.Info().Str("tournament_id", tournament.ID.String()).Str("owner_id", ownerID.String()).Msg("tournament created")
	return tournament, tx.Commit()
}

func (s *TournamentService) RegisterParticipant(ctx context.Context, tournamentID, userID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournament(ctx, tx, tournamentID)
	if err != nil {
		return lookupErr(err, "tournament", tournamentID)
	}
	if tournament.Status != bracket.TournamentOpen {
		return apperr.InvalidState("tournament %s is %s, registration is closed", tournamentID, tournament.Status)
	}

	if err := s.store.AddParticipant(ctx, tx, tournamentID, userID, s.clock.Now().UTC()); err != nil {
		switch {
		case store.IsUniqueViolation(err):
			return apperr.Integrity("user %s is already registered", userID)
		case store.IsConstraintViolation(err):
			return apperr.NotFound("user %s not found", userID)
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return tx.Commit()
}

// SelectDeck lets a participant pick their own deck in player deck mode.
func (s *TournamentService) SelectDeck(ctx context.Context, tournamentID, userID, deckID uuid.UUID) error {
	return s.setDeck(ctx, tournamentID, userID, deckID, func(t *bracket.Tournament) error {
		if t.DeckMode != bracket.DeckModePlayer {
			return apperr.InvalidState("players cannot pick decks in deck mode %q", t.DeckMode)
		}
		return nil
	})
}

// AssignDeck lets the organizer hand a deck to a participant in organizer deck mode.
func (s *TournamentService) AssignDeck(ctx context.Context, callerID, tournamentID, userID, deckID uuid.UUID) error {
	return s.setDeck(ctx, tournamentID, userID, deckID, func(t *bracket.Tournament) error {
		if t.OwnerID != callerID {
			return apperr.NotFound("tournament %s not found", tournamentID)
		}
		if t.DeckMode != bracket.DeckModeOrganizer {
			return apperr.InvalidState("decks are not assigned by the organizer in deck mode %q", t.DeckMode)
		}
		return nil
	})
}

// SetParticipantDeck dispatches on the tournament's deck mode: organizers
// assign decks, players pick their own.
func (s *TournamentService) SetParticipantDeck(ctx context.Context, callerID, tournamentID, userID, deckID uuid.UUID) error {
	tournament, err := s.store.GetTournament(ctx, s.db, tournamentID)
	if err != nil {
		return lookupErr(err, "tournament", tournamentID)
	}
	if tournament.DeckMode == bracket.DeckModeOrganizer {
		return s.AssignDeck(ctx, callerID, tournamentID, userID, deckID)
	}
	if callerID != userID {
		return apperr.NotFound("participant %s not found", userID)
	}
	return s.SelectDeck(ctx, tournamentID, userID, deckID)
}

// RequireOwner fails with NotFound unless callerID organises the tournament.
func (s *TournamentService) RequireOwner(ctx context.Context, callerID, tournamentID uuid.UUID) error {
	_, err := s.ownedTournament(ctx, s.db, callerID, tournamentID)
	return err
}

func (s *TournamentService) setDeck(ctx context.Context, tournamentID, userID, deckID uuid.UUID, allowed func(*bracket.Tournament) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournament(ctx, tx, tournamentID)
	if err != nil {
		return lookupErr(err, "tournament", tournamentID)
	}
	if err := allowed(tournament); err != nil {
		return err
	}
	if tournament.Status != bracket.TournamentOpen {
		return apperr.InvalidState("tournament %s is %s, decks are frozen", tournamentID, tournament.Status)
	}
	if _, err := s.store.GetParticipant(ctx, tx, tournamentID, userID); err != nil {
		return lookupErr(err, "participant", userID)
	}

	collections := s.snapshots.collections(deck.VariantFor(tournament.AllowCustomCards))
	d, err := collections.GetDeck(ctx, tx, deckID)
	if err != nil {
		return lookupErr(err, "deck", deckID)
	}
	if tournament.CollectionID == nil || d.CollectionID != *tournament.CollectionID {
		return apperr.NotFound("deck %s not found in the tournament collection", deckID)
	}

	if d.MaxSelections != nil {
		holders, err := s.store.CountDeckHolders(ctx, tx, tournamentID, deckID, userID)
		if err != nil {
			return fmt.Errorf("failed to count deck holders: %w", err)
		}
		if holders >= *d.MaxSelections {
			return apperr.Integrity("deck %s is already taken by %d participants", deckID, holders)
		}
	}

	if err := s.store.SetParticipantDeck(ctx, tx, tournamentID, userID, &deckID); err != nil {
		return staleErr(err, "failed to set deck")
	}
	return tx.Commit()
}

// StartTournament freezes the collection when there is one, then seats round one from a shuffled field.
func (s *TournamentService) StartTournament(ctx context.Context, callerID, tournamentID uuid.UUID) (*RoundResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.ownedTournament(ctx, tx, callerID, tournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.Status.CanTransition(bracket.TournamentInProgress) {
		return nil, apperr.InvalidState("tournament %s is %s, only open tournaments can start", tournamentID, tournament.Status)
	}

	participants, err := s.store.GetParticipants(ctx, tx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	if len(participants) < 2 {
		return nil, apperr.InvalidState("at least 2 participants are needed to start, tournament has %d", len(participants))
	}

	totalRounds := swiss.TotalRounds(len(participants))
	if tournament.TotalRounds != nil {
		totalRounds = *tournament.TotalRounds
	}

	snapshotID := tournament.SnapshotID
	if tournament.CollectionID != nil {
		snapshot, err := s.snapshots.snapshotAssignedDecks(ctx, tx, tournament, *tournament.CollectionID, tournament.SeriesID)
		if err != nil {
			return nil, err
		}
		snapshotID = &snapshot.SnapshotID

		if tournament.AllowCustomCards && tournament.LockSnapshotOnStart {
			if _, err := s.snapshots.custom.LockSnapshot(ctx, tx, snapshot.SnapshotID); err != nil {
				return nil, fmt.Errorf("failed to lock snapshot: %w", err)
			}
		}
	}

	if err := s.store.MarkStarted(ctx, tx, tournamentID, totalRounds, snapshotID); err != nil {
		return nil, staleErr(err, "tournament was started concurrently")
	}

	players := toPlayers(participants)
	s.shuffle(len(players), func(i, j int) { players[i], players[j] = players[j], players[i] })
	pairings := swiss.GeneratePairings(swiss.CalculateStandings(players, nil))

	round, err := s.openRound(ctx, tx, tournamentID, 1, pairings)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("tournament_id", tournamentID.String()).
		Int("participants", len(participants)).
		Int("total_rounds", totalRounds).
		Msg("tournament started")
	return &RoundResult{RoundID: round.ID, RoundNumber: 1, Pairings: pairings, SnapshotID: snapshotID}, nil
}

// ReportMatchResult settles a non-bye match. Draws are rejected.
func (s *TournamentService) ReportMatchResult(ctx context.Context, callerID, matchID uuid.UUID, team1Score, team2Score int) (*MatchResult, error) {
	if team1Score < 0 || team2Score < 0 {
		return nil, apperr.Validation("scores cannot be negative")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.store.GetMatch(ctx, tx, matchID)
	if err != nil {
		return nil, lookupErr(err, "match", matchID)
	}
	tournament, err := s.store.GetTournament(ctx, tx, match.TournamentID)
	if err != nil {
		return nil, lookupErr(err, "tournament", match.TournamentID)
	}
	seats, err := s.store.GetMatchSeats(ctx, tx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match seats: %w", err)
	}
	if !canReport(callerID, tournament, seats) {
		return nil, apperr.NotFound("match %s not found", matchID)
	}

	if tournament.Status != bracket.TournamentInProgress {
		return nil, apperr.InvalidState("tournament %s is %s", tournament.ID, tournament.Status)
	}
	if match.IsBye {
		return nil, apperr.InvalidState("match %s is a bye", matchID)
	}
	if match.Status == bracket.MatchCompleted {
		return nil, apperr.InvalidState("match %s is already completed", matchID)
	}
	if team1Score == team2Score {
		return nil, apperr.Integrity("draws are not allowed (%d-%d)", team1Score, team2Score)
	}

	winner := bracket.Team1
	if team2Score > team1Score {
		winner = bracket.Team2
	}
	now := s.clock.Now().UTC()
	match.Status = bracket.MatchCompleted
	match.Team1Score = team1Score
	match.Team2Score = team2Score
	match.WinnerTeamID = &winner
	match.CompletedAt = &now

	if err := s.store.CompleteMatch(ctx, tx, match); err != nil {
		return nil, staleErr(err, "match was completed concurrently")
	}
	if err := s.store.SetTeamGamesWon(ctx, tx, matchID, bracket.Team1, team1Score); err != nil {
		return nil, fmt.Errorf("failed to record team 1 games: %w", err)
	}
	if err := s.store.SetTeamGamesWon(ctx, tx, matchID, bracket.Team2, team2Score); err != nil {
		return nil, fmt.Errorf("failed to record team 2 games: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().Str("match_id", matchID.String()).Int("winner_team_id", winner).Msg("match result reported")
	return &MatchResult{WinnerTeamID: winner}, nil
}

func canReport(callerID uuid.UUID, tournament *bracket.Tournament, seats []bracket.MatchParticipant) bool {
	if tournament.OwnerID == callerID {
		return true
	}
	for _, seat := range seats {
		if seat.UserID == callerID {
			return true
		}
	}
	return false
}

// AdvanceRound closes the current round and either finishes the tournament or
// pairs the next round from standings.
func (s *TournamentService) AdvanceRound(ctx context.Context, callerID, tournamentID uuid.UUID) (*AdvanceResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.ownedTournament(ctx, tx, callerID, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != bracket.TournamentInProgress {
		return nil, apperr.InvalidState("tournament %s is %s, only running tournaments advance", tournamentID, tournament.Status)
	}

	current := tournament.CurrentRound
	round, err := s.store.GetRound(ctx, tx, tournamentID, current)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, apperr.NotFound("round %d of tournament %s not found", current, tournamentID)
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	pending, err := s.store.CountUnfinishedMatches(ctx, tx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unfinished matches: %w", err)
	}
	if pending > 0 {
		return nil, apperr.InvalidState("not all matches completed: round %d has %d pending", current, pending)
	}

	if err := s.store.CompleteRound(ctx, tx, round.ID, s.clock.Now().UTC()); err != nil {
		return nil, staleErr(err, "round was advanced concurrently")
	}

	if current >= utils.OrZero(tournament.TotalRounds) {
		if err := s.store.MarkCompleted(ctx, tx, tournamentID, current); err != nil {
			return nil, staleErr(err, "round was advanced concurrently")
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		log.Info().Str("tournament_id", tournamentID.String()).Int("rounds", current).Msg("tournament completed")
		return &AdvanceResult{Completed: true}, nil
	}

	if err := s.store.MarkRoundAdvanced(ctx, tx, tournamentID, current); err != nil {
		return nil, staleErr(err, "round was advanced concurrently")
	}

	standings, err := s.standings(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	pairings := swiss.GeneratePairings(standings)

	next, err := s.openRound(ctx, tx, tournamentID, current+1, pairings)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().Str("tournament_id", tournamentID.String()).Int("round", next.RoundNumber).Msg("round advanced")
	return &AdvanceResult{RoundResult: &RoundResult{RoundID: next.ID, RoundNumber: next.RoundNumber, Pairings: pairings}}, nil
}

// openRound persists an in-progress round and one match per pairing. Byes are
// stored already won by team 1.
func (s *TournamentService) openRound(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, number int, pairings []swiss.Pairing) (*bracket.Round, error) {
	now := s.clock.Now().UTC()
	round := &bracket.Round{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		RoundNumber:  number,
		Status:       bracket.RoundInProgress,
		CreatedAt:    now,
	}
	if err := s.store.CreateRound(ctx, tx, round); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "round was advanced concurrently")
		}
		return nil, fmt.Errorf("failed to create round: %w", err)
	}

	matches, seats := buildMatches(round, pairings, now)
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}
	if err := s.store.CreateMatchParticipants(ctx, tx, seats); err != nil {
		return nil, fmt.Errorf("failed to seat players: %w", err)
	}
	return round, nil
}

func buildMatches(round *bracket.Round, pairings []swiss.Pairing, now time.Time) ([]bracket.Match, []bracket.MatchParticipant) {
	matches := make([]bracket.Match, 0, len(pairings))
	seats := make([]bracket.MatchParticipant, 0, len(pairings)*2)

	for i, p := range pairings {
		m := bracket.Match{
			ID:           uuid.New(),
			TournamentID: round.TournamentID,
			RoundID:      round.ID,
			MatchOrder:   i + 1,
			Status:       bracket.MatchPending,
			CreatedAt:    now,
		}
		seats = append(seats, bracket.MatchParticipant{MatchID: m.ID, UserID: p.Player1.UserID, TeamID: bracket.Team1})

		if p.IsBye {
			m.Status = bracket.MatchCompleted
			m.IsBye = true
			m.WinnerTeamID = utils.Ptr(bracket.Team1)
			m.CompletedAt = &now
		} else {
			seats = append(seats, bracket.MatchParticipant{MatchID: m.ID, UserID: p.Player2.UserID, TeamID: bracket.Team2})
		}
		matches = append(matches, m)
	}
	return matches, seats
}

func toPlayers(participants []bracket.Participant) []swiss.Player {
	players := make([]swiss.Player, 0, len(participants))
	for _, p := range participants {
		players = append(players, swiss.Player{UserID: p.UserID, DisplayName: p.DisplayName, Tag: p.Tag})
	}
	return players
}

func (s *TournamentService) ownedTournament(ctx context.Context, q sqlx.ExtContext, callerID, tournamentID uuid.UUID) (*bracket.Tournament, error) {
	tournament, err := s.store.GetTournament(ctx, q, tournamentID)
	if err != nil {
		return nil, lookupErr(err, "tournament", tournamentID)
	}
	if tournament.OwnerID != callerID {
		return nil, apperr.NotFound("tournament %s not found", tournamentID)
	}
	return tournament, nil
}

func (s *TournamentService) standings(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]swiss.Standing, error) {
	participants, err := s.store.GetParticipants(ctx, q, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	rows, err := s.store.GetCompletedMatchRows(ctx, q, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match history: %w", err)
	}
	return swiss.CalculateStandings(toPlayers(participants), rows), nil
}

// GetStandings ranks every participant from the completed matches so far.
func (s *TournamentService) GetStandings(ctx context.Context, tournamentID uuid.UUID) ([]swiss.Standing, error) {
	if _, err := s.store.GetTournament(ctx, s.db, tournamentID); err != nil {
		return nil, lookupErr(err, "tournament", tournamentID)
	}
	return s.standings(ctx, s.db, tournamentID)
}

// GetTournamentData returns nil without an error when the tournament does not exist.
func (s *TournamentService) GetTournamentData(ctx context.Context, id uuid.UUID) (*TournamentData, error) {
	tournament, err := s.store.GetTournament(ctx, s.db, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	participants, err := s.store.GetParticipants(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	rounds, err := s.store.GetRounds(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.GetMatches(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	seats, err := s.store.GetMatchParticipants(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	return &TournamentData{
		Tournament:   tournament,
		Participants: participants,
		Rounds:       rounds,
		Matches:      matches,
		Seats:        seats,
	}, nil
}

// GetTournamentsForUser lists tournaments the user organises.
func (s *TournamentService) GetTournamentsForUser(ctx context.Context, userID uuid.UUID) ([]bracket.Tournament, error) {
	return s.store.GetTournamentsByOwner(ctx, userID)
}
