package store

import (
	"context"

	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CustomCollectionStore works on collections whose decks may reference custom
// cards. Its snapshots carry their own copies of those cards and a sync lock.
type CustomCollectionStore struct {
	collectionTables
}

const (
	listReferencedCustomCardsQuery = `
		SELECT DISTINCT cc.*
		FROM custom_cards cc
		JOIN custom_deck_cards dc ON dc.custom_card_id = cc.id
		JOIN custom_decks d ON d.id = dc.deck_id
		WHERE d.collection_id = ? AND cc.deleted_at IS NULL
		ORDER BY cc.created_at ASC, cc.id ASC`
	createSnapshotCustomCardsQuery = `
		INSERT INTO snapshot_custom_cards (id, snapshot_id, source_card_id, name, card_type, attribute, monster_type,
			level, atk, def, description, image_url, version_at_snapshot, created_at, updated_at)
		VALUES (:id, :snapshot_id, :source_card_id, :name, :card_type, :attribute, :monster_type,
			:level, :atk, :def, :description, :image_url, :version_at_snapshot, :created_at, :updated_at)`
	listSnapshotCustomCardsQuery = "SELECT * FROM snapshot_custom_cards WHERE snapshot_id = ? ORDER BY created_at ASC, id ASC"
	lockSnapshotQuery            = "UPDATE custom_collection_snapshots SET sync_locked = 1 WHERE id = ? AND sync_locked = 0"
)

func NewCustomCollectionStore() *CustomCollectionStore {
	return &CustomCollectionStore{collectionTables{
		variant: deck.VariantCustom,
		queries: collectionQueries{
			createCollection: `INSERT INTO custom_collections (id, user_id, name, created_at)
				VALUES (:id, :user_id, :name, :created_at)`,
			getCollection: "SELECT * FROM custom_collections WHERE id = ?",
			createDeck: `INSERT INTO custom_decks (id, collection_id, name, max_selections, created_at)
				VALUES (:id, :collection_id, :name, :max_selections, :created_at)`,
			getDeck:   "SELECT * FROM custom_decks WHERE id = ?",
			listDecks: "SELECT * FROM custom_decks WHERE collection_id = ? ORDER BY created_at ASC, id ASC",
			addDeckCard: `INSERT INTO custom_deck_cards (id, deck_id, card_id, custom_card_id, quantity, section)
				VALUES (:id, :deck_id, :card_id, :custom_card_id, :quantity, :section)`,
			setDeckCardQuantity: "UPDATE custom_deck_cards SET quantity = ? WHERE id = ?",
			removeDeckCard:      "DELETE FROM custom_deck_cards WHERE id = ?",
			// deck cards pointing at a deleted custom card are not part of the collection any more
			listDeckCards: `SELECT dc.id, dc.deck_id, dc.card_id, dc.custom_card_id, dc.quantity, dc.section
				FROM custom_deck_cards dc
				JOIN custom_decks d ON d.id = dc.deck_id
				LEFT JOIN custom_cards cc ON cc.id = dc.custom_card_id
				WHERE d.collection_id = ? AND (dc.custom_card_id IS NULL OR cc.deleted_at IS NULL)
				ORDER BY dc.deck_id ASC, dc.section ASC, dc.id ASC`,

			getSnapshot:         "SELECT * FROM custom_collection_snapshots WHERE id = ?",
			nextSnapshotVersion: "SELECT COALESCE(MAX(version), 0) + 1 FROM custom_collection_snapshots WHERE source_collection_id = ?",
			createSnapshot: `INSERT INTO custom_collection_snapshots (id, source_collection_id, user_id, version, snapshot_type,
					tournament_id, series_id, parent_snapshot_id, sync_locked, created_at)
				VALUES (:id, :source_collection_id, :user_id, :version, :snapshot_type,
					:tournament_id, :series_id, :parent_snapshot_id, :sync_locked, :created_at)`,
			createSnapshotDecks: `INSERT INTO custom_snapshot_decks (id, snapshot_id, original_deck_id, name, max_selections, times_selected, created_at)
				VALUES (:id, :snapshot_id, :original_deck_id, :name, :max_selections, :times_selected, :created_at)`,
			createSnapshotCards: `INSERT INTO custom_snapshot_deck_cards (id, snapshot_deck_id, card_id, snapshot_custom_card_id, quantity, section)
				VALUES (:id, :snapshot_deck_id, :card_id, :snapshot_custom_card_id, :quantity, :section)`,
			listSnapshotDecks: "SELECT * FROM custom_snapshot_decks WHERE snapshot_id = ? ORDER BY created_at ASC, id ASC",
			listSnapshotDeckCards: `SELECT sdc.id, sdc.snapshot_deck_id, sdc.card_id, sdc.snapshot_custom_card_id, sdc.quantity, sdc.section
				FROM custom_snapshot_deck_cards sdc
				JOIN custom_snapshot_decks sd ON sd.id = sdc.snapshot_deck_id
				WHERE sd.snapshot_id = ?
				ORDER BY sdc.snapshot_deck_id ASC, sdc.section ASC, sdc.id ASC`,
			recordSelection: `UPDATE custom_snapshot_decks SET times_selected = times_selected + 1
				WHERE id = ? AND (max_selections IS NULL OR times_selected < max_selections)`,
		},
	}}
}

// ListReferencedCustomCards returns every live custom card used by at least
// one deck of the collection, each once.
func (s *CustomCollectionStore) ListReferencedCustomCards(ctx context.Context, q sqlx.ExtContext, collectionID uuid.UUID) ([]deck.CustomCard, error) {
	cards := []deck.CustomCard{}
	err := sqlx.SelectContext(ctx, q, &cards, listReferencedCustomCardsQuery, collectionID)
	return cards, err
}

func (s *CustomCollectionStore) CreateSnapshotCustomCards(ctx context.Context, q sqlx.ExtContext, cards []deck.SnapshotCustomCard) error {
	return namedExecBatch(ctx, q, createSnapshotCustomCardsQuery, cards)
}

func (s *CustomCollectionStore) ListSnapshotCustomCards(ctx context.Context, q sqlx.ExtContext, snapshotID uuid.UUID) ([]deck.SnapshotCustomCard, error) {
	cards := []deck.SnapshotCustomCard{}
	err := sqlx.SelectContext(ctx, q, &cards, listSnapshotCustomCardsQuery, snapshotID)
	return cards, err
}

// LockSnapshot sets sync_locked. It reports false when the snapshot was already locked.
func (s *CustomCollectionStore) LockSnapshot(ctx context.Context, q sqlx.ExtContext, snapshotID uuid.UUID) (bool, error) {
	n, err := rowsAffected(q.ExecContext(ctx, lockSnapshotQuery, snapshotID))
	return n > 0, err
}
