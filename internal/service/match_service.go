package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	db    *sqlx.DB
	store *store.TournamentStore
}

func NewMatchService(db *sqlx.DB, store *store.TournamentStore) *MatchService {
	return &MatchService{db: db, store: store}
}

type Seat struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	TeamID      int       `json:"teamId"`
	GamesWon    int       `json:"gamesWon"`
}

type MatchData struct {
	Match       *bracket.Match `json:"match"`
	RoundNumber int            `json:"roundNumber"`
	Seats       []Seat         `json:"seats"`
	// NextMatchID is the first unfinished match of the same round after this one.
	NextMatchID *uuid.UUID `json:"nextMatchId,omitempty"`
}

func (s *MatchService) GetMatchViewData(ctx context.Context, matchID uuid.UUID) (*MatchData, error) {
	match, err := s.store.GetMatch(ctx, s.db, matchID)
	if err != nil {
		return nil, lookupErr(err, "match", matchID)
	}

	seats, err := s.store.GetMatchSeats(ctx, s.db, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match seats: %w", err)
	}
	participants, err := s.store.GetParticipants(ctx, s.db, match.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	names := make(map[uuid.UUID]string, len(participants))
	for _, p := range participants {
		names[p.UserID] = displayName(p)
	}

	data := &MatchData{Match: match, Seats: make([]Seat, 0, len(seats))}
	for _, seat := range seats {
		data.Seats = append(data.Seats, Seat{
			UserID:      seat.UserID,
			DisplayName: names[seat.UserID],
			TeamID:      seat.TeamID,
			GamesWon:    seat.GamesWon,
		})
	}

	roundMatches, err := s.store.GetRoundMatches(ctx, s.db, match.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round matches: %w", err)
	}
	for _, m := range roundMatches {
		if m.MatchOrder > match.MatchOrder && m.Status != bracket.MatchCompleted {
			id := m.ID
			data.NextMatchID = &id
			break
		}
	}

	rounds, err := s.store.GetRounds(ctx, s.db, match.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rounds: %w", err)
	}
	for _, r := range rounds {
		if r.ID == match.RoundID {
			data.RoundNumber = r.RoundNumber
		}
	}

	return data, nil
}

func displayName(p bracket.Participant) string {
	if p.Tag == "" {
		return p.DisplayName
	}
	return p.DisplayName + "#" + p.Tag
}
