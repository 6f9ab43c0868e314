package service

import (
	"context"
	"sync"
	"testing"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/deck"
	"github.com/AdamBeresnev/duel-organizer/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// customFixture is one user's custom card sitting in a single-deck custom collection.
type customFixture struct {
	ownerID      uuid.UUID
	card         *deck.CustomCard
	collectionID uuid.UUID
}

func (e *testEnv) newCustomFixture(t *testing.T) customFixture {
	t.Helper()
	ownerID := e.createUser(t, "designer")
	card, err := e.cardService.CreateCustomCard(context.Background(), ownerID, deck.CardFields{
		Name:     "Meteor Wyrm",
		CardType: "Monster",
		Level:    utils.Ptr(7),
		Atk:      utils.Ptr(1000),
		Def:      utils.Ptr(1500),
	})
	require.NoError(t, err)
	require.Equal(t, 1, card.Version)

	collectionID := e.createCollection(t, e.custom, ownerID)
	deckID := e.createDeck(t, e.custom, collectionID, "Wyrms", nil)
	e.addCustomCard(t, deckID, card.ID)
	return customFixture{ownerID: ownerID, card: card, collectionID: collectionID}
}

// snapshotCopy freezes the fixture collection and returns the snapshot id and the card's copy in it.
func (e *testEnv) snapshotCopy(t *testing.T, f customFixture) (uuid.UUID, deck.SnapshotCustomCard) {
	t.Helper()
	ctx := context.Background()
	result, err := e.snapshotService.CreateSnapshot(ctx, seriesSnapshot(f.ownerID, f.collectionID, true))
	require.NoError(t, err)

	view, err := e.snapshotService.GetSnapshot(ctx, f.ownerID, result.SnapshotID, true)
	require.NoError(t, err)
	require.Len(t, view.CustomCards, 1)
	return result.SnapshotID, view.CustomCards[0]
}

func (e *testEnv) copyOf(t *testing.T, snapshotID, copyID uuid.UUID) *deck.SnapshotCustomCard {
	t.Helper()
	copied, err := e.cards.GetSnapshotCustomCard(context.Background(), e.db, snapshotID, copyID)
	require.NoError(t, err)
	return copied
}

func TestLockedSnapshotStopsFollowingSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)

	snapshotID, copied := env.snapshotCopy(t, f)
	assert.Equal(t, 1, copied.VersionAtSnapshot)

	edit, err := env.cardService.EditCustomCard(ctx, f.ownerID, f.card.ID, deck.CardChanges{Atk: utils.Ptr(2000)})
	require.NoError(t, err)
	assert.Equal(t, 2, edit.Card.Version)
	assert.Equal(t, 1, edit.PropagatedTo)
	assert.Equal(t, 2000, *edit.Card.Atk)
	assert.Equal(t, "Meteor Wyrm", edit.Card.Name)

	stored, err := env.cardService.GetCustomCard(ctx, f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, edit.Card.CardFields, stored.CardFields, "the returned card matches what was written")

	followed := env.copyOf(t, snapshotID, copied.ID)
	assert.Equal(t, 2000, *followed.Atk)
	assert.Equal(t, 2, followed.VersionAtSnapshot)
	assert.Equal(t, 1500, *followed.Def, "untouched fields stay as they were")

	lock, err := env.cardService.LockSnapshot(ctx, f.ownerID, snapshotID)
	require.NoError(t, err)
	assert.True(t, lock.Changed)

	edit, err = env.cardService.EditCustomCard(ctx, f.ownerID, f.card.ID, deck.CardChanges{Atk: utils.Ptr(3000)})
	require.NoError(t, err)
	assert.Equal(t, 3, edit.Card.Version)
	assert.Equal(t, 3000, *edit.Card.Atk)
	assert.Equal(t, 0, edit.PropagatedTo)

	frozen := env.copyOf(t, snapshotID, copied.ID)
	assert.Equal(t, 2000, *frozen.Atk)
	assert.Equal(t, 2, frozen.VersionAtSnapshot)
}

func TestEditCustomCardReachesOnlyUnlockedCopies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)

	first, firstCopy := env.snapshotCopy(t, f)
	second, secondCopy := env.snapshotCopy(t, f)
	locked, lockedCopy := env.snapshotCopy(t, f)
	_, err := env.cardService.LockSnapshot(ctx, f.ownerID, locked)
	require.NoError(t, err)

	for want := 2; want <= 4; want++ {
		edit, err := env.cardService.EditCustomCard(ctx, f.ownerID, f.card.ID, deck.CardChanges{Level: utils.Ptr(want)})
		require.NoError(t, err)
		assert.Equal(t, want, edit.Card.Version, "every edit bumps the version by one")
		assert.Equal(t, 2, edit.PropagatedTo)
	}

	assert.Equal(t, 4, env.copyOf(t, first, firstCopy.ID).VersionAtSnapshot)
	assert.Equal(t, 4, env.copyOf(t, second, secondCopy.ID).VersionAtSnapshot)
	assert.Equal(t, 1, env.copyOf(t, locked, lockedCopy.ID).VersionAtSnapshot)
	assert.Equal(t, 7, *env.copyOf(t, locked, lockedCopy.ID).Level)
}

func TestEditCustomCardRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)
	stranger := env.createUser(t, "stranger")

	_, err := env.cardService.EditCustomCard(ctx, f.ownerID, f.card.ID, deck.CardChanges{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = env.cardService.EditCustomCard(ctx, stranger, f.card.ID, deck.CardChanges{Atk: utils.Ptr(1)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = env.cardService.EditCustomCard(ctx, f.ownerID, uuid.New(), deck.CardChanges{Atk: utils.Ptr(1)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	card, err := env.cardService.GetCustomCard(ctx, f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, card.Version)

	_, err = env.cardService.CreateCustomCard(ctx, f.ownerID, deck.CardFields{Name: "No Type"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestEditSnapshotCustomCardOnUnlockedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)

	edited, editedCopy := env.snapshotCopy(t, f)
	sibling, siblingCopy := env.snapshotCopy(t, f)

	result, err := env.cardService.EditSnapshotCustomCard(ctx, f.ownerID, edited, editedCopy.ID,
		deck.CardChanges{Name: utils.Ptr("Meteor Black Wyrm")}, SnapshotCardEditOptions{})
	require.NoError(t, err)
	assert.False(t, result.Locked)
	assert.True(t, result.SourceUpdated)
	assert.Equal(t, 1, result.PropagatedTo)
	assert.Equal(t, "Meteor Black Wyrm", result.Card.Name)
	assert.Equal(t, 2, result.Card.VersionAtSnapshot)

	source, err := env.cardService.GetCustomCard(ctx, f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Meteor Black Wyrm", source.Name)
	assert.Equal(t, 2, source.Version)

	other := env.copyOf(t, sibling, siblingCopy.ID)
	assert.Equal(t, "Meteor Black Wyrm", other.Name)
	assert.Equal(t, 2, other.VersionAtSnapshot)
}

func TestEditSnapshotCustomCardOnLockedSnapshot(t *testing.T) {
	testCases := []struct {
		name          string
		toSource      bool
		sourceName    string
		sourceVersion int
	}{
		{name: "copy only", toSource: false, sourceName: "Meteor Wyrm", sourceVersion: 1},
		{name: "copy and source", toSource: true, sourceName: "Locked Rename", sourceVersion: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			f := env.newCustomFixture(t)

			locked, lockedCopy := env.snapshotCopy(t, f)
			sibling, siblingCopy := env.snapshotCopy(t, f)
			_, err := env.cardService.LockSnapshot(ctx, f.ownerID, locked)
			require.NoError(t, err)

			result, err := env.cardService.EditSnapshotCustomCard(ctx, f.ownerID, locked, lockedCopy.ID,
				deck.CardChanges{Name: utils.Ptr("Locked Rename")}, SnapshotCardEditOptions{PropagateToSource: tc.toSource})
			require.NoError(t, err)
			assert.True(t, result.Locked)
			assert.Equal(t, tc.toSource, result.SourceUpdated)
			assert.Equal(t, 0, result.PropagatedTo)
			assert.Equal(t, "Locked Rename", result.Card.Name)
			assert.Equal(t, 1, result.Card.VersionAtSnapshot, "a locked copy keeps its snapshot version")

			source, err := env.cardService.GetCustomCard(ctx, f.card.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.sourceName, source.Name)
			assert.Equal(t, tc.sourceVersion, source.Version)

			other := env.copyOf(t, sibling, siblingCopy.ID)
			assert.Equal(t, "Meteor Wyrm", other.Name)
			assert.Equal(t, 1, other.VersionAtSnapshot)
		})
	}
}

func TestEditSnapshotCustomCardLookups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)
	snapshotID, copied := env.snapshotCopy(t, f)
	otherSnapshot, _ := env.snapshotCopy(t, f)
	stranger := env.createUser(t, "stranger")
	changes := deck.CardChanges{Atk: utils.Ptr(10)}

	_, err := env.cardService.EditSnapshotCustomCard(ctx, stranger, snapshotID, copied.ID, changes, SnapshotCardEditOptions{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = env.cardService.EditSnapshotCustomCard(ctx, f.ownerID, otherSnapshot, copied.ID, changes, SnapshotCardEditOptions{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "the copy belongs to a different snapshot")

	_, err = env.cardService.EditSnapshotCustomCard(ctx, f.ownerID, uuid.New(), copied.ID, changes, SnapshotCardEditOptions{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteCustomCard(t *testing.T) {
	t.Run("unreferenced card is removed", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		f := env.newCustomFixture(t)

		result, err := env.cardService.DeleteCustomCard(ctx, f.ownerID, f.card.ID)
		require.NoError(t, err)
		assert.Equal(t, DeleteHard, result.Type)
		assert.Zero(t, result.SnapshotCopies)

		_, err = env.cardService.GetCustomCard(ctx, f.card.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		cards, err := env.custom.ListCollectionDeckCards(ctx, env.db, f.collectionID)
		require.NoError(t, err)
		assert.Empty(t, cards)
	})

	t.Run("card held by a snapshot is soft deleted", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		f := env.newCustomFixture(t)
		snapshotID, copied := env.snapshotCopy(t, f)

		result, err := env.cardService.DeleteCustomCard(ctx, f.ownerID, f.card.ID)
		require.NoError(t, err)
		assert.Equal(t, DeleteSoft, result.Type)
		assert.Equal(t, 1, result.SnapshotCopies)

		card, err := env.cardService.GetCustomCard(ctx, f.card.ID)
		require.NoError(t, err)
		assert.NotNil(t, card.DeletedAt)

		cards, err := env.custom.ListCollectionDeckCards(ctx, env.db, f.collectionID)
		require.NoError(t, err)
		assert.Empty(t, cards, "live decks drop the card either way")

		kept := env.copyOf(t, snapshotID, copied.ID)
		assert.Equal(t, f.card.ID, *kept.SourceCardID)

		_, err = env.cardService.EditCustomCard(ctx, f.ownerID, f.card.ID, deck.CardChanges{Atk: utils.Ptr(1)})
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "deleted cards cannot be edited")

		_, err = env.cardService.DeleteCustomCard(ctx, f.ownerID, f.card.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("only the creator deletes", func(t *testing.T) {
		env := newTestEnv(t)
		f := env.newCustomFixture(t)
		stranger := env.createUser(t, "stranger")

		_, err := env.cardService.DeleteCustomCard(context.Background(), stranger, f.card.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestLockSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)
	stranger := env.createUser(t, "stranger")

	seriesID, _ := env.snapshotCopy(t, f)

	_, err := env.cardService.LockSnapshot(ctx, stranger, seriesID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	first, err := env.cardService.LockSnapshot(ctx, f.ownerID, seriesID)
	require.NoError(t, err)
	assert.Equal(t, LockResult{Locked: true, Changed: true}, *first)

	again, err := env.cardService.LockSnapshot(ctx, f.ownerID, seriesID)
	require.NoError(t, err)
	assert.Equal(t, LockResult{Locked: true, Changed: false}, *again)

	// the organizer of the tournament a snapshot was taken for may lock it too
	organizer := env.createUser(t, "organizer")
	tournament, err := env.tournamentService.CreateTournament(ctx, organizer, CreateTournamentInput{Name: "Cup"})
	require.NoError(t, err)
	forTournament, err := env.snapshotService.CreateSnapshot(ctx, CreateSnapshotInput{
		UserID:       f.ownerID,
		Custom:       true,
		SourceType:   deck.SourceCollection,
		CollectionID: &f.collectionID,
		SnapshotType: deck.SnapshotTournament,
		TournamentID: &tournament.ID,
	})
	require.NoError(t, err)

	lock, err := env.cardService.LockSnapshot(ctx, organizer, forTournament.SnapshotID)
	require.NoError(t, err)
	assert.True(t, lock.Changed)

	_, err = env.cardService.LockSnapshot(ctx, f.ownerID, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestConcurrentCardEditsKeepEveryVersion(t *testing.T) {
	env := newFileTestEnv(t)
	ctx := context.Background()
	f := env.newCustomFixture(t)
	snapshotID, copied := env.snapshotCopy(t, f)

	const editors = 20
	var wg sync.WaitGroup
	errs := make([]error, editors)
	for i := 0; i < editors; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.cardService.EditCustomCard(ctx, f.ownerID, f.card.ID, deck.CardChanges{Atk: utils.Ptr(1000 + i)})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	card, err := env.cardService.GetCustomCard(ctx, f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+editors, card.Version)

	followed := env.copyOf(t, snapshotID, copied.ID)
	assert.Equal(t, card.Version, followed.VersionAtSnapshot)
	assert.Equal(t, *card.Atk, *followed.Atk, "the copy ends on the last committed edit")
}
