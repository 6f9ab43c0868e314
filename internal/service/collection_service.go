package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

// CollectionService maintains the live collections snapshots are taken from.
type CollectionService struct {
	db        *sqlx.DB
	snapshots *SnapshotService
	cards     *store.CustomCardStore
	clock     clockwork.Clock
}

func NewCollectionService(db *sqlx.DB, snapshots *SnapshotService, cards *store.CustomCardStore, clock clockwork.Clock) *CollectionService {
	return &CollectionService{db: db, snapshots: snapshots, cards: cards, clock: clock}
}

type AddDeckCardInput struct {
	CardID       *string      `json:"cardId,omitempty"`
	CustomCardID *uuid.UUID   `json:"customCardId,omitempty"`
	Quantity     int          `json:"quantity"`
	Section      deck.Section `json:"section"`
}

func (in AddDeckCardInput) validate(variant deck.Variant) error {
	if (in.CardID == nil) == (in.CustomCardID == nil) {
		return apperr.Validation("exactly one of cardId and customCardId is required")
	}
	if in.CustomCardID != nil && variant != deck.VariantCustom {
		return apperr.Validation("custom cards only go into custom collections")
	}
	if in.CardID != nil && strings.TrimSpace(*in.CardID) == "" {
		return apperr.Validation("cardId cannot be empty")
	}
	switch in.Section {
	case deck.SectionMain, deck.SectionExtra, deck.SectionSide:
	default:
		return apperr.Validation("unknown section %q", in.Section)
	}
	return nil
}

func (s *CollectionService) CreateCollection(ctx context.Context, userID uuid.UUID, name string, custom bool) (*deck.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("collection name is required")
	}

	collection := &deck.Collection{ID: uuid.New(), UserID: userID, Name: name, CreatedAt: s.clock.Now().UTC()}
	if err := s.snapshots.collections(deck.VariantFor(custom)).CreateCollection(ctx, s.db, collection); err != nil {
		if store.IsConstraintViolation(err) {
			return nil, apperr.NotFound("user %s not found", userID)
		}
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return collection, nil
}

func (s *CollectionService) CreateDeck(ctx context.Context, userID, collectionID uuid.UUID, custom bool, name string, maxSelections *int) (*deck.Deck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("deck name is required")
	}
	if maxSelections != nil && *maxSelections < 1 {
		return nil, apperr.Validation("maxSelections must be at least 1")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	collections := s.snapshots.collections(deck.VariantFor(custom))
	if err := ownCollection(ctx, tx, collections, userID, collectionID); err != nil {
		return nil, err
	}

	d := &deck.Deck{ID: uuid.New(), CollectionID: collectionID, Name: name, MaxSelections: maxSelections, CreatedAt: s.clock.Now().UTC()}
	if err := collections.CreateDeck(ctx, tx, d); err != nil {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}
	return d, tx.Commit()
}

// AddDeckCard puts a card into a deck. A card may appear at most three times
// across all sections of one deck.
func (s *CollectionService) AddDeckCard(ctx context.Context, userID, deckID uuid.UUID, custom bool, in AddDeckCardInput) (*deck.DeckCard, error) {
	collections := s.snapshots.collections(deck.VariantFor(custom))
	if err := in.validate(collections.Variant()); err != nil {
		return nil, err
	}
	if in.Quantity < 1 || in.Quantity > deck.MaxCopies {
		return nil, apperr.Integrity("quantity must be between 1 and %d, got %d", deck.MaxCopies, in.Quantity)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d, err := collections.GetDeck(ctx, tx, deckID)
	if err != nil {
		return nil, lookupErr(err, "deck", deckID)
	}
	if err := ownCollection(ctx, tx, collections, userID, d.CollectionID); err != nil {
		return nil, apperr.NotFound("deck %s not found", deckID)
	}

	if in.CustomCardID != nil {
		card, err := s.cards.GetCustomCard(ctx, tx, *in.CustomCardID)
		if err != nil {
			return nil, lookupErr(err, "custom card", *in.CustomCardID)
		}
		if card.DeletedAt != nil {
			return nil, apperr.NotFound("custom card %s not found", *in.CustomCardID)
		}
	}

	card := &deck.DeckCard{
		ID:           uuid.New(),
		DeckID:       deckID,
		CardID:       in.CardID,
		CustomCardID: in.CustomCardID,
		Quantity:     in.Quantity,
		Section:      in.Section,
	}
	if err := collections.AddDeckCard(ctx, tx, card); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Integrity("card is already in the %s section of deck %s", in.Section, deckID)
		}
		if store.IsConstraintViolation(err) {
			return nil, apperr.Wrap(apperr.KindIntegrity, err, "deck would hold more than 3 copies of the card")
		}
		return nil, fmt.Errorf("failed to add deck card: %w", err)
	}
	return card, tx.Commit()
}

func ownCollection(ctx context.Context, q sqlx.ExtContext, collections store.CollectionStore, userID, collectionID uuid.UUID) error {
	collection, err := collections.GetCollection(ctx, q, collectionID)
	if err != nil {
		return lookupErr(err, "collection", collectionID)
	}
	if collection.UserID != userID {
		return apperr.NotFound("collection %s not found", collectionID)
	}
	return nil
}
