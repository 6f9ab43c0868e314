package deck

import (
	"time"

	"github.com/google/uuid"
)

type SnapshotType string

const (
	SnapshotSeries     SnapshotType = "series"
	SnapshotTournament SnapshotType = "tournament"
)

// SourceType says where a snapshot's source collection is resolved from.
type SourceType string

const (
	SourceCollection         SourceType = "collection"
	SourcePreviousTournament SourceType = "previous_tournament"
	SourceSeriesSnapshot     SourceType = "series_snapshot"
)

func (s SourceType) Chained() bool {
	return s == SourcePreviousTournament || s == SourceSeriesSnapshot
}

// Snapshot is a frozen copy of a collection. Only SyncLocked (custom
// collections) ever changes after creation.
type Snapshot struct {
	ID                 uuid.UUID    `db:"id" json:"id"`
	SourceCollectionID uuid.UUID    `db:"source_collection_id" json:"sourceCollectionId"`
	UserID             uuid.UUID    `db:"user_id" json:"userId"`
	Version            int          `db:"version" json:"version"`
	SnapshotType       SnapshotType `db:"snapshot_type" json:"snapshotType"`
	TournamentID       *uuid.UUID   `db:"tournament_id" json:"tournamentId"`
	SeriesID           *uuid.UUID   `db:"series_id" json:"seriesId"`
	ParentSnapshotID   *uuid.UUID   `db:"parent_snapshot_id" json:"parentSnapshotId"`
	SyncLocked         bool         `db:"sync_locked" json:"syncLocked"`
	CreatedAt          time.Time    `db:"created_at" json:"createdAt"`
}

type SnapshotDeck struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	SnapshotID     uuid.UUID  `db:"snapshot_id" json:"snapshotId"`
	OriginalDeckID *uuid.UUID `db:"original_deck_id" json:"originalDeckId"`
	Name           string     `db:"name" json:"name"`
	MaxSelections  *int       `db:"max_selections" json:"maxSelections"`
	TimesSelected  int        `db:"times_selected" json:"timesSelected"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

type SnapshotDeckCard struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	SnapshotDeckID       uuid.UUID  `db:"snapshot_deck_id" json:"snapshotDeckId"`
	CardID               *string    `db:"card_id" json:"cardId"`
	SnapshotCustomCardID *uuid.UUID `db:"snapshot_custom_card_id" json:"snapshotCustomCardId"`
	Quantity             int        `db:"quantity" json:"quantity"`
	Section              Section    `db:"section" json:"section"`
}
