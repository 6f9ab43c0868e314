package bracket

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a registered player joined with their user profile.
type Participant struct {
	TournamentID   uuid.UUID  `db:"tournament_id" json:"tournamentId"`
	UserID         uuid.UUID  `db:"user_id" json:"userId"`
	DisplayName    string     `db:"username" json:"displayName"`
	Tag            string     `db:"tag" json:"tag"`
	DeckID         *uuid.UUID `db:"deck_id" json:"deckId"`
	SnapshotDeckID *uuid.UUID `db:"snapshot_deck_id" json:"snapshotDeckId"`
	JoinedAt       time.Time  `db:"joined_at" json:"joinedAt"`
}
