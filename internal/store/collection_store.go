package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CollectionStore is the storage a deck collection and its snapshots need,
// independent of whether the collection may hold custom cards. Each variant
// owns its own table family and its own fixed set of queries.
type CollectionStore interface {
	Variant() deck.Variant

	CreateCollection(ctx context.Context, q sqlx.ExtContext, collection *deck.Collection) error
	GetCollection(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.Collection, error)
	CreateDeck(ctx context.Context, q sqlx.ExtContext, d *deck.Deck) error
	GetDeck(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.Deck, error)
	ListDecks(ctx context.Context, q sqlx.ExtContext, collectionID uuid.UUID) ([]deck.Deck, error)
	AddDeckCard(ctx context.Context, q sqlx.ExtContext, card *deck.DeckCard) error
	SetDeckCardQuantity(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, quantity int) error
	RemoveDeckCard(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) error
	ListCollectionDeckCards(ctx context.Context, q sqlx.ExtContext, collectionID uuid.UUID) ([]deck.DeckCard, error)

	GetSnapshot(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.Snapshot, error)
	NextSnapshotVersion(ctx context.Context, q sqlx.ExtContext, sourceCollectionID uuid.UUID) (int, error)
	CreateSnapshot(ctx context.Context, q sqlx.ExtContext, snapshot *deck.Snapshot) error
	CreateSnapshotDecks(ctx context.Context, q sqlx.ExtContext, decks []deck.SnapshotDeck) error
	CreateSnapshotDeckCards(ctx context.Context, q sqlx.ExtContext, cards []deck.SnapshotDeckCard) error
	ListSnapshotDecks(ctx context.Context, q sqlx.ExtContext, snapshotID uuid.UUID) ([]deck.SnapshotDeck, error)
	ListSnapshotDeckCards(ctx context.Context, q sqlx.ExtContext, snapshotID uuid.UUID) ([]deck.SnapshotDeckCard, error)
	// RecordSelection bumps times_selected, failing with ErrSelectionLimit at the cap.
	RecordSelection(ctx context.Context, q sqlx.ExtContext, snapshotDeckID uuid.UUID) error
}

type collectionQueries struct {
	createCollection    string
	getCollection       string
	createDeck          string
	getDeck             string
	listDecks           string
	addDeckCard         string
	setDeckCardQuantity string
	removeDeckCard      string
	listDeckCards       string

	getSnapshot           string
	nextSnapshotVersion   string
	createSnapshot        string
	createSnapshotDecks   string
	createSnapshotCards   string
	listSnapshotDecks     string
	listSnapshotDeckCards string
	recordSelection       string
}

// batchSize keeps multi-row inserts under sqlite's bound parameter limit.
const batchSize = 200

// collectionTables implements CollectionStore over one fixed query set.
type collectionTables struct {
	variant deck.Variant
	queries collectionQueries
}

func (s *collectionTables) Variant() deck.Variant {
	return s.variant
}

func (s *collectionTables) CreateCollection(ctx context.Context, q sqlx.ExtContext, collection *deck.Collection) error {
	_, err := sqlx.NamedExecContext(ctx, q, s.queries.createCollection, collection)
	return err
}

func (s *collectionTables) GetCollection(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.Collection, error) {
	var collection deck.Collection
	if err := sqlx.GetContext(ctx, q, &collection, s.queries.getCollection, id); err != nil {
		return nil, err
	}
	return &collection, nil
}

func (s *collectionTables) CreateDeck(ctx context.Context, q sqlx.ExtContext, d *deck.Deck) error {
	_, err := sqlx.NamedExecContext(ctx, q, s.queries.createDeck, d)
	return err
}

func (s *collectionTables) GetDeck(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.Deck, error) {
	var d deck.Deck
	if err := sqlx.GetContext(ctx, q, &d, s.queries.getDeck, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *collectionTables) ListDecks(ctx context.Context, q sqlx.ExtContext, collectionID uuid.UUID) ([]deck.Deck, error) {
	decks := []deck.Deck{}
	err := sqlx.SelectContext(ctx, q, &decks, s.queries.listDecks, collectionID)
	return decks, err
}

func (s *collectionTables) AddDeckCard(ctx context.Context, q sqlx.ExtContext, card *deck.DeckCard) error {
	_, err := sqlx.NamedExecContext(ctx, q, s.queries.addDeckCard, card)
	return err
}

func (s *collectionTables) SetDeckCardQuantity(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, quantity int) error {
	return requireRow(q.ExecContext(ctx, s.queries.setDeckCardQuantity, quantity, id))
}

func (s *collectionTables) RemoveDeckCard(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) error {
	return requireRow(q.ExecContext(ctx, s.queries.removeDeckCard, id))
}

func (s *collectionTables) ListCollectionDeckCards(ctx context.Context, q sqlx.ExtContext, collectionID uuid.UUID) ([]deck.DeckCard, error) {
	cards := []deck.DeckCard{}
	err := sqlx.SelectContext(ctx, q, &cards, s.queries.listDeckCards, collectionID)
	return cards, err
}

func (s *collectionTables) GetSnapshot(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*deck.Snapshot, error) {
	var snapshot deck.Snapshot
	if err := sqlx.GetContext(ctx, q, &snapshot, s.queries.getSnapshot, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *collectionTables) NextSnapshotVersion(ctx context.Context, q sqlx.ExtContext, sourceCollectionID uuid.UUID) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, q, &version, s.queries.nextSnapshotVersion, sourceCollectionID)
	return version, err
}

func (s *collectionTables) CreateSnapshot(ctx context.Context, q sqlx.ExtContext, snapshot *deck.Snapshot) error {
	_, err := sqlx.NamedExecContext(ctx, q, s.queries.createSnapshot, snapshot)
	return err
}

func (s *collectionTables) CreateSnapshotDecks(ctx context.Context, q sqlx.ExtContext, decks []deck.SnapshotDeck) error {
	return namedExecBatch(ctx, q, s.queries.createSnapshotDecks, decks)
}

func (s *collectionTables) CreateSnapshotDeckCards(ctx context.Context, q sqlx.ExtContext, cards []deck.SnapshotDeckCard) error {
	return namedExecBatch(ctx, q, s.queries.createSnapshotCards, cards)
}

func (s *collectionTables) ListSnapshotDecks(ctx context.Context, q sqlx.ExtContext, snapshotID uuid.UUID) ([]deck.SnapshotDeck, error) {
	decks := []deck.SnapshotDeck{}
	err := sqlx.SelectContext(ctx, q, &decks, s.queries.listSnapshotDecks, snapshotID)
	return decks, err
}

func (s *collectionTables) ListSnapshotDeckCards(ctx context.Context, q sqlx.ExtContext, snapshotID uuid.UUID) ([]deck.SnapshotDeckCard, error) {
	cards := []deck.SnapshotDeckCard{}
	err := sqlx.SelectContext(ctx, q, &cards, s.queries.listSnapshotDeckCards, snapshotID)
	return cards, err
}

func (s *collectionTables) RecordSelection(ctx context.Context, q sqlx.ExtContext, snapshotDeckID uuid.UUID) error {
	err := requireRow(q.ExecContext(ctx, s.queries.recordSelection, snapshotDeckID))
	if errors.Is(err, ErrStaleWrite) {
		return ErrSelectionLimit
	}
	return err
}

func namedExecBatch[T any](ctx context.Context, q sqlx.ExtContext, query string, rows []T) error {
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if _, err := sqlx.NamedExecContext(ctx, q, query, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// IsNotFound reports whether err is the driver's empty result.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
