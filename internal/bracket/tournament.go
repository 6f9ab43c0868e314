package bracket

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentOpen       TournamentStatus = "open"
	TournamentInProgress TournamentStatus = "in_progress"
	TournamentCompleted  TournamentStatus = "completed"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
// The only legal path is open -> in_progress -> completed.
func (s TournamentStatus) CanTransition(next TournamentStatus) bool {
	switch s {
	case TournamentOpen:
		return next == TournamentInProgress
	case TournamentInProgress:
		return next == TournamentCompleted
	}
	return false
}

type DeckMode string

const (
	// No decks are tracked for the tournament
	DeckModeNone DeckMode = "none"
	// Participants pick their own deck from the tournament collection
	DeckModePlayer DeckMode = "player"
	// The organizer assigns decks to participants
	DeckModeOrganizer DeckMode = "organizer"
)

type Tournament struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	OwnerID      uuid.UUID        `db:"owner_id" json:"ownerId"`
	Name         string           `db:"name" json:"name"`
	Status       TournamentStatus `db:"status" json:"status"`
	CurrentRound int              `db:"current_round" json:"currentRound"`
	TotalRounds  *int             `db:"total_rounds" json:"totalRounds"`

	DeckMode            DeckMode `db:"deck_mode" json:"deckMode"`
	AllowCustomCards    bool     `db:"allow_custom_cards" json:"allowCustomCards"`
	LockSnapshotOnStart bool     `db:"lock_snapshot_on_start" json:"lockSnapshotOnStart"`

	// Live collection frozen at start, and the snapshot it was frozen into
	CollectionID *uuid.UUID `db:"collection_id" json:"collectionId"`
	SeriesID     *uuid.UUID `db:"series_id" json:"seriesId"`
	SnapshotID   *uuid.UUID `db:"snapshot_id" json:"snapshotId"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
