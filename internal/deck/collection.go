package deck

import (
	"time"

	"github.com/google/uuid"
)

type Section string

const (
	SectionMain  Section = "main"
	SectionExtra Section = "extra"
	SectionSide  Section = "side"
)

// MaxCopies is the cap on copies of one card across all sections of a deck.
const MaxCopies = 3

// Variant selects which table family a collection lives in.
type Variant string

const (
	VariantStandard Variant = "standard"
	VariantCustom   Variant = "custom"
)

func VariantFor(allowCustomCards bool) Variant {
	if allowCustomCards {
		return VariantCustom
	}
	return VariantStandard
}

type Collection struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Deck struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CollectionID  uuid.UUID `db:"collection_id" json:"collectionId"`
	Name          string    `db:"name" json:"name"`
	MaxSelections *int      `db:"max_selections" json:"maxSelections"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// DeckCard references either a catalogue card or, in custom collections, a custom card.
type DeckCard struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DeckID       uuid.UUID  `db:"deck_id" json:"deckId"`
	CardID       *string    `db:"card_id" json:"cardId"`
	CustomCardID *uuid.UUID `db:"custom_card_id" json:"customCardId"`
	Quantity     int        `db:"quantity" json:"quantity"`
	Section      Section    `db:"section" json:"section"`
}
