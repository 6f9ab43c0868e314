package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type CustomCardStore struct {
	db *sqlx.DB
}

const (
	createCustomCardQuery = `
		INSERT INTO custom_cards (id, created_by, name, card_type, attribute, monster_type, level, atk, def,
			description, image_url, version, created_at, updated_at)
		VALUES (:id, :created_by, :name, :card_type, :attribute, :monster_type, :level, :atk, :def,
			:description, :image_url, :version, :created_at, :updated_at)`
	getCustomCardQuery         = "SELECT * FROM custom_cards WHERE id = ?"
	getSnapshotCustomCardQuery = "SELECT * FROM snapshot_custom_cards WHERE id = ? AND snapshot_id = ?"
	countSnapshotRefsQuery     = "SELECT COUNT(*) FROM snapshot_custom_cards WHERE source_card_id = ?"
	softDeleteCustomCardQuery  = "UPDATE custom_cards SET created_by = NULL, deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL"
	// the NOT EXISTS guard and the RESTRICT foreign key both keep referenced cards alive
	hardDeleteCustomCardQuery = `
		DELETE FROM custom_cards
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM snapshot_custom_cards WHERE source_card_id = custom_cards.id)`
	removeFromLiveDecksQuery = "DELETE FROM custom_deck_cards WHERE custom_card_id = ?"
	unlockedCopiesCondition  = `
		source_card_id = ? AND id <> ?
		AND snapshot_id IN (SELECT id FROM custom_collection_snapshots WHERE sync_locked = 0)`
)

func NewCustomCardStore(db *sqlx.DB) *CustomCardStore {
	return &CustomCardStore{db: db}
}

func (s *CustomCardStore) CreateCustomCard(ctx context.Context, q sqlx.ExtContext, card *deck.CustomCard) error {
	_, err := sqlx.NamedExecContext(ctx, q, createCustomCardQuery, card)
	return err
}

func (s *CustomCardStore) GetCustomCard(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.CustomCard, error) {
	var card deck.CustomCard
	if err := sqlx.GetContext(ctx, q, &card, getCustomCardQuery, id); err != nil {
		return nil, err
	}
	return &card, nil
}

// UpdateCustomCard applies changes to a live card and bumps its version by one,
// returning the new version. ErrStaleWrite if the card was deleted meanwhile.
func (s *CustomCardStore) UpdateCustomCard(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, changes deck.CardChanges, now time.Time) (int, error) {
	if err := checkChanges(changes); err != nil {
		return 0, err
	}
	cols, args := changes.Assignments()
	query := "UPDATE custom_cards SET " + strings.Join(cols, ", ") +
		", version = version + 1, updated_at = ? WHERE id = ? AND deleted_at IS NULL RETURNING version"
	args = append(args, now, id)

	var version int
	err := sqlx.GetContext(ctx, q, &version, query, args...)
	if IsNotFound(err) {
		return 0, ErrStaleWrite
	}
	return version, err
}

// PropagateToSnapshots copies changes onto every snapshot copy of the source
// card whose snapshot is not sync-locked, skipping the copy with id except.
func (s *CustomCardStore) PropagateToSnapshots(ctx context.Context, q sqlx.ExtContext, sourceID uuid.UUID, changes deck.CardChanges, version int, now time.Time, except uuid.UUID) (int64, error) {
	if err := checkChanges(changes); err != nil {
		return 0, err
	}
	cols, args := changes.Assignments()
	query := "UPDATE snapshot_custom_cards SET " + strings.Join(cols, ", ") +
		", version_at_snapshot = ?, updated_at = ? WHERE" + unlockedCopiesCondition
	args = append(args, version, now, sourceID, except)
	return rowsAffected(q.ExecContext(ctx, query, args...))
}

func (s *CustomCardStore) GetSnapshotCustomCard(ctx context.Context, q sqlx.ExtContext, snapshotID, id uuid.UUID) (*deck.SnapshotCustomCard, error) {
	var card deck.SnapshotCustomCard
	if err := sqlx.GetContext(ctx, q, &card, getSnapshotCustomCardQuery, id, snapshotID); err != nil {
		return nil, err
	}
	return &card, nil
}

// UpdateSnapshotCustomCard edits one snapshot copy. A nil version leaves
// version_at_snapshot as it was.
func (s *CustomCardStore) UpdateSnapshotCustomCard(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, changes deck.CardChanges, version *int, now time.Time) error {
	if err := checkChanges(changes); err != nil {
		return err
	}
	cols, args := changes.Assignments()
	if version != nil {
		cols = append(cols, "version_at_snapshot = ?")
		args = append(args, *version)
	}
	query := "UPDATE snapshot_custom_cards SET " + strings.Join(cols, ", ") + ", updated_at = ? WHERE id = ?"
	args = append(args, now, id)
	return requireRow(q.ExecContext(ctx, query, args...))
}

func (s *CustomCardStore) CountSnapshotReferences(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, countSnapshotRefsQuery, id)
	return count, err
}

// HardDeleteUnreferenced removes the card only if no snapshot copy points at
// it, reporting whether a row was removed.
func (s *CustomCardStore) HardDeleteUnreferenced(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (bool, error) {
	n, err := rowsAffected(q.ExecContext(ctx, hardDeleteCustomCardQuery, id))
	if err != nil {
		// a snapshot reference that slipped past the guard trips the RESTRICT key
		if IsConstraintViolation(err) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func (s *CustomCardStore) SoftDelete(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, now time.Time) error {
	return requireRow(q.ExecContext(ctx, softDeleteCustomCardQuery, now, now, id))
}

func (s *CustomCardStore) RemoveFromLiveDecks(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (int64, error) {
	return rowsAffected(q.ExecContext(ctx, removeFromLiveDecksQuery, id))
}

var errNoChanges = errors.New("change set has no editable fields")

// checkChanges guards the dynamic SET clauses above against an empty allow-list result.
func checkChanges(changes deck.CardChanges) error {
	if changes.IsEmpty() {
		return errNoChanges
	}
	return nil
}
