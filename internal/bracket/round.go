package bracket

import (
	"time"

	"github.com/google/uuid"
)

type RoundStatus string

const (
	RoundInProgress RoundStatus = "in_progress"
	RoundCompleted  RoundStatus = "completed"
)

type Round struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	TournamentID uuid.UUID   `db:"tournament_id" json:"tournamentId"`
	RoundNumber  int         `db:"round_number" json:"roundNumber"`
	Status       RoundStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completedAt"`
}
