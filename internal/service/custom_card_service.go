package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type CustomCardService struct {
	db          *sqlx.DB
	cards       *store.CustomCardStore
	collections *store.CustomCollectionStore
	tournaments *store.TournamentStore
	clock       clockwork.Clock
}

func NewCustomCardService(db *sqlx.DB, cards *store.CustomCardStore, collections *store.CustomCollectionStore, tournaments *store.TournamentStore, clock clockwork.Clock) *CustomCardService {
	return &CustomCardService{db: db, cards: cards, collections: collections, tournaments: tournaments, clock: clock}
}

type DeleteType string

const (
	DeleteSoft DeleteType = "soft"
	DeleteHard DeleteType = "hard"
)

type CardEditResult struct {
	Card         *deck.CustomCard `json:"card"`
	PropagatedTo int              `json:"propagatedTo"`
}

type SnapshotCardEditOptions struct {
	// PropagateToSource only matters for locked snapshots; unlocked edits always reach the source.
	PropagateToSource bool
}

type SnapshotCardEditResult struct {
	Card          *deck.SnapshotCustomCard `json:"card"`
	Locked        bool                     `json:"locked"`
	SourceUpdated bool                     `json:"sourceUpdated"`
	PropagatedTo  int                      `json:"propagatedTo"`
}

type DeleteResult struct {
	Type           DeleteType `json:"type"`
	// SnapshotCopies counts the snapshot copies that keep a soft-deleted card around.
	SnapshotCopies int        `json:"snapshotCopies"`
}

type LockResult struct {
	Locked  bool `json:"locked"`
	Changed bool `json:"changed"`
}

func (s *CustomCardService) CreateCustomCard(ctx context.Context, userID uuid.UUID, fields deck.CardFields) (*deck.CustomCard, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	card := &deck.CustomCard{
		ID:         uuid.New(),
		CreatedBy:  &userID,
		CardFields: fields,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.cards.CreateCustomCard(ctx, s.db, card); err != nil {
		if store.IsConstraintViolation(err) {
			return nil, apperr.NotFound("user %s not found", userID)
		}
		return nil, fmt.Errorf("failed to create custom card: %w", err)
	}
	return card, nil
}

func (s *CustomCardService) GetCustomCard(ctx context.Context, cardID uuid.UUID) (*deck.CustomCard, error) {
	card, err := s.cards.GetCustomCard(ctx, s.db, cardID)
	if err != nil {
		return nil, lookupErr(err, "custom card", cardID)
	}
	return card, nil
}

func (s *CustomCardService) ownedCard(ctx context.Context, tx *sqlx.Tx, userID, cardID uuid.UUID) (*deck.CustomCard, error) {
	card, err := s.cards.GetCustomCard(ctx, tx, cardID)
	if err != nil {
		return nil, lookupErr(err, "custom card", cardID)
	}
	if !card.OwnedBy(userID) {
		return nil, apperr.NotFound("custom card %s not found", cardID)
	}
	return card, nil
}

// EditCustomCard applies changes to the source card, bumps its version and
// pushes the same changes into every copy held by an unlocked snapshot.
func (s *CustomCardService) EditCustomCard(ctx context.Context, userID, cardID uuid.UUID, changes deck.CardChanges) (*CardEditResult, error) {
	if err := changes.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	card, err := s.ownedCard(ctx, tx, userID, cardID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	version, err := s.cards.UpdateCustomCard(ctx, tx, cardID, changes, now)
	if err != nil {
		return nil, staleErr(err, "custom card was deleted concurrently")
	}

	propagated, err := s.cards.PropagateToSnapshots(ctx, tx, cardID, changes, version, now, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("failed to propagate card edit: %w", err)
	}

	changes.Apply(&card.CardFields)
	card.Version = version
	card.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().Str("card_id", cardID.String()).Int("version", version).Int64("propagated_to", propagated).Msg("custom card edited")
	return &CardEditResult{Card: card, PropagatedTo: int(propagated)}, nil
}

// EditSnapshotCustomCard edits one snapshot's copy of a card. Edits on an
// unlocked snapshot flow back to the source and on to the other unlocked
// copies. A locked snapshot only reaches the source when asked to, and never
// its siblings.
func (s *CustomCardService) EditSnapshotCustomCard(ctx context.Context, userID, snapshotID, copyID uuid.UUID, changes deck.CardChanges, opts SnapshotCardEditOptions) (*SnapshotCardEditResult, error) {
	if err := changes.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	snapshot, err := s.collections.GetSnapshot(ctx, tx, snapshotID)
	if err != nil {
		return nil, lookupErr(err, "snapshot", snapshotID)
	}
	copied, err := s.cards.GetSnapshotCustomCard(ctx, tx, snapshotID, copyID)
	if err != nil {
		return nil, lookupErr(err, "snapshot card", copyID)
	}
	if copied.SourceCardID == nil {
		return nil, apperr.NotFound("snapshot card %s not found", copyID)
	}
	sourceID := *copied.SourceCardID
	if _, err := s.ownedCard(ctx, tx, userID, sourceID); err != nil {
		return nil, apperr.NotFound("snapshot card %s not found", copyID)
	}

	now := s.clock.Now().UTC()
	result := &SnapshotCardEditResult{Locked: snapshot.SyncLocked}

	if snapshot.SyncLocked {
		if err := s.cards.UpdateSnapshotCustomCard(ctx, tx, copyID, changes, nil, now); err != nil {
			return nil, staleErr(err, "failed to update snapshot card")
		}
		if opts.PropagateToSource {
			if _, err := s.cards.UpdateCustomCard(ctx, tx, sourceID, changes, now); err != nil {
				return nil, staleErr(err, "custom card was deleted concurrently")
			}
			result.SourceUpdated = true
		}
	} else {
		version, err := s.cards.UpdateCustomCard(ctx, tx, sourceID, changes, now)
		if err != nil {
			return nil, staleErr(err, "custom card was deleted concurrently")
		}
		if err := s.cards.UpdateSnapshotCustomCard(ctx, tx, copyID, changes, &version, now); err != nil {
			return nil, staleErr(err, "failed to update snapshot card")
		}
		copied.VersionAtSnapshot = version
		propagated, err := s.cards.PropagateToSnapshots(ctx, tx, sourceID, changes, version, now, copyID)
		if err != nil {
			return nil, fmt.Errorf("failed to propagate card edit: %w", err)
		}
		result.SourceUpdated = true
		result.PropagatedTo = int(propagated)
	}

	changes.Apply(&copied.CardFields)
	copied.UpdatedAt = now
	result.Card = copied

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("snapshot_id", snapshotID.String()).
		Str("card_id", sourceID.String()).
		Bool("locked", result.Locked).
		Bool("source_updated", result.SourceUpdated).
		Int("propagated_to", result.PropagatedTo).
		Msg("snapshot card edited")
	return result, nil
}

// DeleteCustomCard removes the card from live decks, then hard-deletes it
// unless a snapshot still holds a copy, in which case it is soft-deleted.
func (s *CustomCardService) DeleteCustomCard(ctx context.Context, userID, cardID uuid.UUID) (*DeleteResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := s.ownedCard(ctx, tx, userID, cardID); err != nil {
		return nil, err
	}

	if _, err := s.cards.RemoveFromLiveDecks(ctx, tx, cardID); err != nil {
		return nil, fmt.Errorf("failed to remove card from decks: %w", err)
	}

	copies, err := s.cards.CountSnapshotReferences(ctx, tx, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to count snapshot copies: %w", err)
	}

	result := &DeleteResult{Type: DeleteHard, SnapshotCopies: copies}
	removed := false
	if copies == 0 {
		removed, err = s.cards.HardDeleteUnreferenced(ctx, tx, cardID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete custom card: %w", err)
		}
	}
	if !removed {
		if err := s.cards.SoftDelete(ctx, tx, cardID, s.clock.Now().UTC()); err != nil {
			return nil, staleErr(err, "custom card was deleted concurrently")
		}
		result.Type = DeleteSoft
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().Str("card_id", cardID.String()).Str("type", string(result.Type)).Msg("custom card deleted")
	return result, nil
}

// LockSnapshot stops propagation into a snapshot for good. Locking twice is fine.
func (s *CustomCardService) LockSnapshot(ctx context.Context, userID, snapshotID uuid.UUID) (*LockResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	snapshot, err := s.collections.GetSnapshot(ctx, tx, snapshotID)
	if err != nil {
		return nil, lookupErr(err, "snapshot", snapshotID)
	}

	allowed, err := canManageSnapshot(ctx, tx, s.tournaments, snapshot, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.NotFound("snapshot %s not found", snapshotID)
	}

	changed, err := s.collections.LockSnapshot(ctx, tx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if changed {
		log.Info().Str("snapshot_id", snapshotID.String()).Msg("snapshot locked")
	}
	return &LockResult{Locked: true, Changed: changed}, nil
}
