package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type SnapshotService struct {
	db          *sqlx.DB
	tournaments *store.TournamentStore
	standard    *store.StandardCollectionStore
	custom      *store.CustomCollectionStore
	clock       clockwork.Clock
}

func NewSnapshotService(db *sqlx.DB, tournaments *store.TournamentStore, standard *store.StandardCollectionStore, custom *store.CustomCollectionStore, clock clockwork.Clock) *SnapshotService {
	return &SnapshotService{db: db, tournaments: tournaments, standard: standard, custom: custom, clock: clock}
}

func (s *SnapshotService) collections(variant deck.Variant) store.CollectionStore {
	if variant == deck.VariantCustom {
		return s.custom
	}
	return s.standard
}

type CreateSnapshotInput struct {
	UserID     uuid.UUID
	Custom     bool
	SourceType deck.SourceType
	// CollectionID is the source for SourceCollection.
	CollectionID *uuid.UUID
	// ParentSnapshotID is followed to its source collection for chained source types.
	ParentSnapshotID *uuid.UUID
	SnapshotType     deck.SnapshotType
	TournamentID     *uuid.UUID
	SeriesID         *uuid.UUID
}

type SnapshotResult struct {
	SnapshotID      uuid.UUID `json:"snapshotId"`
	Version         int       `json:"version"`
	DeckCount       int       `json:"deckCount"`
	CardCount       int       `json:"cardCount"`
	CustomCardCount int       `json:"customCardCount"`
	AssignedDecks   int       `json:"assignedDecks,omitempty"`

	// live deck id -> snapshot deck id
	deckIDs map[uuid.UUID]uuid.UUID
}

type SnapshotView struct {
	Snapshot    *deck.Snapshot            `json:"snapshot"`
	Decks       []deck.SnapshotDeck       `json:"decks"`
	Cards       []deck.SnapshotDeckCard   `json:"cards"`
	CustomCards []deck.SnapshotCustomCard `json:"customCards,omitempty"`
}

func (in CreateSnapshotInput) validate() error {
	switch in.SourceType {
	case deck.SourceCollection:
		if in.CollectionID == nil {
			return apperr.Validation("collectionId is required for source type %q", in.SourceType)
		}
	case deck.SourcePreviousTournament, deck.SourceSeriesSnapshot:
		if in.ParentSnapshotID == nil {
			return apperr.Validation("parentSnapshotId is required for source type %q", in.SourceType)
		}
	default:
		return apperr.Validation("unknown source type %q", in.SourceType)
	}

	switch in.SnapshotType {
	case deck.SnapshotTournament:
		if in.TournamentID == nil {
			return apperr.Validation("tournament snapshots need a tournamentId")
		}
	case deck.SnapshotSeries:
		if in.SeriesID == nil {
			return apperr.Validation("series snapshots need a seriesId")
		}
	default:
		return apperr.Validation("unknown snapshot type %q", in.SnapshotType)
	}
	return nil
}

// CreateSnapshot freezes a collection the caller owns. Chained source types
// resolve the collection through an earlier snapshot.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, in CreateSnapshotInput) (*SnapshotResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	collections := s.collections(deck.VariantFor(in.Custom))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sourceID := in.CollectionID
	var parentID *uuid.UUID
	if in.SourceType.Chained() {
		parent, err := collections.GetSnapshot(ctx, tx, *in.ParentSnapshotID)
		if err != nil {
			return nil, lookupErr(err, "snapshot", *in.ParentSnapshotID)
		}
		sourceID, parentID = &parent.SourceCollectionID, &parent.ID
	}

	collection, err := collections.GetCollection(ctx, tx, *sourceID)
	if err != nil {
		return nil, lookupErr(err, "collection", *sourceID)
	}
	if collection.UserID != in.UserID {
		return nil, apperr.NotFound("collection %s not found", *sourceID)
	}

	if in.TournamentID != nil {
		if _, err := s.tournaments.GetTournament(ctx, tx, *in.TournamentID); err != nil {
			return nil, lookupErr(err, "tournament", *in.TournamentID)
		}
	}

	snapshot := &deck.Snapshot{
		SourceCollectionID: collection.ID,
		UserID:             in.UserID,
		SnapshotType:       in.SnapshotType,
		TournamentID:       in.TournamentID,
		SeriesID:           in.SeriesID,
		ParentSnapshotID:   parentID,
	}
	result, err := s.copyCollection(ctx, tx, collections, snapshot)
	if err != nil {
		return nil, err
	}

	return result, tx.Commit()
}

// CreateCollectionSnapshot freezes collectionID for an open tournament.
func (s *SnapshotService) CreateCollectionSnapshot(ctx context.Context, tournamentID, collectionID uuid.UUID, seriesID *uuid.UUID) (*SnapshotResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.openTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}

	result, err := s.tournamentSnapshot(ctx, tx, tournament, collectionID, seriesID)
	if err != nil {
		return nil, err
	}
	if err := s.tournaments.SetSnapshot(ctx, tx, tournament.ID, result.SnapshotID); err != nil {
		return nil, staleErr(err, "tournament was started concurrently")
	}

	return result, tx.Commit()
}

// SnapshotAssignedDecks freezes collectionID for an open tournament and pins
// each participant's chosen live deck to its snapshot copy.
func (s *SnapshotService) SnapshotAssignedDecks(ctx context.Context, tournamentID, collectionID uuid.UUID, seriesID *uuid.UUID) (*SnapshotResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.openTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}

	result, err := s.snapshotAssignedDecks(ctx, tx, tournament, collectionID, seriesID)
	if err != nil {
		return nil, err
	}
	if err := s.tournaments.SetSnapshot(ctx, tx, tournament.ID, result.SnapshotID); err != nil {
		return nil, staleErr(err, "tournament was started concurrently")
	}

	return result, tx.Commit()
}

func (s *SnapshotService) openTournament(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Tournament, error) {
	tournament, err := s.tournaments.GetTournament(ctx, tx, id)
	if err != nil {
		return nil, lookupErr(err, "tournament", id)
	}
	if tournament.Status != bracket.TournamentOpen {
		return nil, apperr.InvalidState("tournament %s is %s, decks can only be frozen before it starts", id, tournament.Status)
	}
	return tournament, nil
}

func (s *SnapshotService) tournamentSnapshot(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, collectionID uuid.UUID, seriesID *uuid.UUID) (*SnapshotResult, error) {
	if tournament.CollectionID != nil && *tournament.CollectionID != collectionID {
		return nil, apperr.Validation("tournament %s plays collection %s, not %s", tournament.ID, *tournament.CollectionID, collectionID)
	}

	collections := s.collections(deck.VariantFor(tournament.AllowCustomCards))
	collection, err := collections.GetCollection(ctx, tx, collectionID)
	if err != nil {
		return nil, lookupErr(err, "collection", collectionID)
	}
	if collection.UserID != tournament.OwnerID {
		return nil, apperr.NotFound("collection %s not found", collectionID)
	}

	tournamentID := tournament.ID
	snapshot := &deck.Snapshot{
		SourceCollectionID: collectionID,
		UserID:             tournament.OwnerID,
		SnapshotType:       deck.SnapshotTournament,
		TournamentID:       &tournamentID,
		SeriesID:           seriesID,
	}
	return s.copyCollection(ctx, tx, collections, snapshot)
}

// snapshotAssignedDecks runs inside the caller's transaction. Assignments
// whose live deck has no snapshot copy are skipped.
func (s *SnapshotService) snapshotAssignedDecks(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, collectionID uuid.UUID, seriesID *uuid.UUID) (*SnapshotResult, error) {
	result, err := s.tournamentSnapshot(ctx, tx, tournament, collectionID, seriesID)
	if err != nil {
		return nil, err
	}

	participants, err := s.tournaments.GetParticipants(ctx, tx, tournament.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	collections := s.collections(deck.VariantFor(tournament.AllowCustomCards))
	for _, p := range participants {
		if p.DeckID == nil {
			continue
		}
		snapshotDeckID, ok := result.deckIDs[*p.DeckID]
		if !ok {
			log.Debug().Str("tournament_id", tournament.ID.String()).Str("deck_id", p.DeckID.String()).Msg("assigned deck has no snapshot copy, skipping")
			continue
		}

		if err := s.tournaments.SetParticipantSnapshotDeck(ctx, tx, tournament.ID, p.UserID, snapshotDeckID); err != nil {
			return nil, fmt.Errorf("failed to pin snapshot deck: %w", err)
		}
		if err := collections.RecordSelection(ctx, tx, snapshotDeckID); err != nil {
			if errors.Is(err, store.ErrSelectionLimit) {
				return nil, apperr.Integrity("deck %s was selected more often than its limit allows", *p.DeckID)
			}
			return nil, fmt.Errorf("failed to record deck selection: %w", err)
		}
		result.AssignedDecks++
	}

	return result, nil
}

// copyCollection writes snapshot and a deep copy of its source collection's
// decks on tx. Custom cards are copied once per snapshot however many decks use them.
func (s *SnapshotService) copyCollection(ctx context.Context, tx *sqlx.Tx, collections store.CollectionStore, snapshot *deck.Snapshot) (*SnapshotResult, error) {
	now := s.clock.Now().UTC()

	version, err := collections.NextSnapshotVersion(ctx, tx, snapshot.SourceCollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute snapshot version: %w", err)
	}
	snapshot.ID = uuid.New()
	snapshot.Version = version
	snapshot.CreatedAt = now

	if err := collections.CreateSnapshot(ctx, tx, snapshot); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "snapshot version taken by a concurrent snapshot")
		}
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	liveDecks, err := collections.ListDecks(ctx, tx, snapshot.SourceCollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}

	result := &SnapshotResult{SnapshotID: snapshot.ID, Version: version, deckIDs: make(map[uuid.UUID]uuid.UUID, len(liveDecks))}
	snapshotDecks := make([]deck.SnapshotDeck, 0, len(liveDecks))
	for _, d := range liveDecks {
		originalID := d.ID
		copied := deck.SnapshotDeck{
			ID:             uuid.New(),
			SnapshotID:     snapshot.ID,
			OriginalDeckID: &originalID,
			Name:           d.Name,
			MaxSelections:  d.MaxSelections,
			CreatedAt:      now,
		}
		snapshotDecks = append(snapshotDecks, copied)
		result.deckIDs[d.ID] = copied.ID
	}
	if err := collections.CreateSnapshotDecks(ctx, tx, snapshotDecks); err != nil {
		return nil, fmt.Errorf("failed to copy decks: %w", err)
	}

	customCopies := map[uuid.UUID]uuid.UUID{}
	if custom, ok := collections.(*store.CustomCollectionStore); ok {
		customCopies, err = s.copyCustomCards(ctx, tx, custom, snapshot, now)
		if err != nil {
			return nil, err
		}
		result.CustomCardCount = len(customCopies)
	}

	liveCards, err := collections.ListCollectionDeckCards(ctx, tx, snapshot.SourceCollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deck cards: %w", err)
	}
	snapshotCards := make([]deck.SnapshotDeckCard, 0, len(liveCards))
	for _, c := range liveCards {
		copied := deck.SnapshotDeckCard{
			ID:             uuid.New(),
			SnapshotDeckID: result.deckIDs[c.DeckID],
			CardID:         c.CardID,
			Quantity:       c.Quantity,
			Section:        c.Section,
		}
		if c.CustomCardID != nil {
			copyID, ok := customCopies[*c.CustomCardID]
			if !ok {
				continue
			}
			copied.SnapshotCustomCardID = &copyID
		}
		snapshotCards = append(snapshotCards, copied)
	}
	if err := collections.CreateSnapshotDeckCards(ctx, tx, snapshotCards); err != nil {
		return nil, fmt.Errorf("failed to copy deck cards: %w", err)
	}

	result.DeckCount = len(snapshotDecks)
	result.CardCount = len(snapshotCards)

	log.Info().
		Str("snapshot_id", snapshot.ID.String()).
		Str("collection_id", snapshot.SourceCollectionID.String()).
		Str("variant", string(collections.Variant())).
		Int("version", version).
		Int("decks", result.DeckCount).
		Msg("snapshot created")
	return result, nil
}

func (s *SnapshotService) copyCustomCards(ctx context.Context, tx *sqlx.Tx, custom *store.CustomCollectionStore, snapshot *deck.Snapshot, now time.Time) (map[uuid.UUID]uuid.UUID, error) {
	cards, err := custom.ListReferencedCustomCards(ctx, tx, snapshot.SourceCollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom cards: %w", err)
	}

	copies := make(map[uuid.UUID]uuid.UUID, len(cards))
	rows := make([]deck.SnapshotCustomCard, 0, len(cards))
	for _, c := range cards {
		sourceID := c.ID
		row := deck.SnapshotCustomCard{
			ID:                uuid.New(),
			SnapshotID:        snapshot.ID,
			SourceCardID:      &sourceID,
			CardFields:        c.CardFields,
			VersionAtSnapshot: c.Version,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		rows = append(rows, row)
		copies[c.ID] = row.ID
	}

	if err := custom.CreateSnapshotCustomCards(ctx, tx, rows); err != nil {
		return nil, fmt.Errorf("failed to copy custom cards: %w", err)
	}
	return copies, nil
}

// GetSnapshot returns a snapshot with its decks and cards. Only the snapshot
// owner and the organizer of its tournament can see it.
func (s *SnapshotService) GetSnapshot(ctx context.Context, userID, snapshotID uuid.UUID, custom bool) (*SnapshotView, error) {
	collections := s.collections(deck.VariantFor(custom))

	snapshot, err := collections.GetSnapshot(ctx, s.db, snapshotID)
	if err != nil {
		return nil, lookupErr(err, "snapshot", snapshotID)
	}
	allowed, err := canManageSnapshot(ctx, s.db, s.tournaments, snapshot, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.NotFound("snapshot %s not found", snapshotID)
	}

	decks, err := collections.ListSnapshotDecks(ctx, s.db, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot decks: %w", err)
	}

	cards, err := collections.ListSnapshotDeckCards(ctx, s.db, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot cards: %w", err)
	}

	view := &SnapshotView{Snapshot: snapshot, Decks: decks, Cards: cards}
	if custom {
		view.CustomCards, err = s.custom.ListSnapshotCustomCards(ctx, s.db, snapshotID)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshot custom cards: %w", err)
		}
	}
	return view, nil
}

// canManageSnapshot reports whether userID owns the snapshot or organizes the
// tournament it was taken for.
func canManageSnapshot(ctx context.Context, q sqlx.ExtContext, tournaments *store.TournamentStore, snapshot *deck.Snapshot, userID uuid.UUID) (bool, error) {
	if snapshot.UserID == userID {
		return true, nil
	}
	if snapshot.TournamentID == nil {
		return false, nil
	}
	tournament, err := tournaments.GetTournament(ctx, q, *snapshot.TournamentID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get tournament: %w", err)
	}
	return tournament.OwnerID == userID, nil
}
