package store

import (
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
)

// StandardCollectionStore works on collections built from catalogue cards only.
type StandardCollectionStore struct {
	collectionTables
}

func NewStandardCollectionStore() *StandardCollectionStore {
	return &StandardCollectionStore{collectionTables{
		variant: deck.VariantStandard,
		queries: collectionQueries{
			createCollection: `INSERT INTO collections (id, user_id, name, created_at)
				VALUES (:id, :user_id, :name, :created_at)`,
			getCollection: "SELECT * FROM collections WHERE id = ?",
			createDeck: `INSERT INTO decks (id, collection_id, name, max_selections, created_at)
				VALUES (:id, :collection_id, :name, :max_selections, :created_at)`,
			getDeck:   "SELECT * FROM decks WHERE id = ?",
			listDecks: "SELECT * FROM decks WHERE collection_id = ? ORDER BY created_at ASC, id ASC",
			addDeckCard: `INSERT INTO deck_cards (id, deck_id, card_id, quantity, section)
				VALUES (:id, :deck_id, :card_id, :quantity, :section)`,
			setDeckCardQuantity: "UPDATE deck_cards SET quantity = ? WHERE id = ?",
			removeDeckCard:      "DELETE FROM deck_cards WHERE id = ?",
			listDeckCards: `SELECT dc.id, dc.deck_id, dc.card_id, dc.quantity, dc.section
				FROM deck_cards dc
				JOIN decks d ON d.id = dc.deck_id
				WHERE d.collection_id = ?
				ORDER BY dc.deck_id ASC, dc.section ASC, dc.id ASC`,

			getSnapshot:         "SELECT * FROM collection_snapshots WHERE id = ?",
			nextSnapshotVersion: "SELECT COALESCE(MAX(version), 0) + 1 FROM collection_snapshots WHERE source_collection_id = ?",
			createSnapshot: `INSERT INTO collection_snapshots (id, source_collection_id, user_id, version, snapshot_type,
					tournament_id, series_id, parent_snapshot_id, created_at)
				VALUES (:id, :source_collection_id, :user_id, :version, :snapshot_type,
					:tournament_id, :series_id, :parent_snapshot_id, :created_at)`,
			createSnapshotDecks: `INSERT INTO snapshot_decks (id, snapshot_id, original_deck_id, name, max_selections, times_selected, created_at)
				VALUES (:id, :snapshot_id, :original_deck_id, :name, :max_selections, :times_selected, :created_at)`,
			createSnapshotCards: `INSERT INTO snapshot_deck_cards (id, snapshot_deck_id, card_id, quantity, section)
				VALUES (:id, :snapshot_deck_id, :card_id, :quantity, :section)`,
			listSnapshotDecks: "SELECT * FROM snapshot_decks WHERE snapshot_id = ? ORDER BY created_at ASC, id ASC",
			listSnapshotDeckCards: `SELECT sdc.id, sdc.snapshot_deck_id, sdc.card_id, sdc.quantity, sdc.section
				FROM snapshot_deck_cards sdc
				JOIN snapshot_decks sd ON sd.id = sdc.snapshot_deck_id
				WHERE sd.snapshot_id = ?
				ORDER BY sdc.snapshot_deck_id ASC, sdc.section ASC, sdc.id ASC`,
			recordSelection: `UPDATE snapshot_decks SET times_selected = times_selected + 1
				WHERE id = ? AND (max_selections IS NULL OR times_selected < max_selections)`,
		},
	}}
}
