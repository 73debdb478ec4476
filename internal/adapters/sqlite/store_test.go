package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "offers.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func seedItemAndUser(t *testing.T, store *Store) (item.Item, shared.User) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	user := shared.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateUser(ctx, user))

	it := item.New("Bicycle", "Road bike", decimal.RequireFromString("50.00"), now)
	require.NoError(t, store.CreateItem(ctx, it))
	return it, user
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", zerolog.Nop())
	require.Error(t, err)
}

func TestOpenTwiceKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offers.db")

	first, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	it, _ := seedItemAndUser(t, first)
	require.NoError(t, first.Close())

	second, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetItem(context.Background(), it.ID)
	require.NoError(t, err)
	require.Equal(t, "Bicycle", got.Name)
}

func TestItemsAndUsers(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	it, user := seedItemAndUser(t, store)

	gotItem, err := store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, it.ID, gotItem.ID)
	require.True(t, gotItem.Price.Equal(decimal.RequireFromString("50")))
	require.True(t, gotItem.CurrentPrice.Equal(gotItem.Price))
	require.True(t, gotItem.Available)

	gotUser, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", gotUser.Username)

	err = store.CreateUser(ctx, shared.User{ID: uuid.New(), Username: "alice"})
	require.ErrorIs(t, err, shared.ErrUsernameTaken)

	_, err = store.GetItem(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrItemNotFound)
	_, err = store.GetUser(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrUserNotFound)
	_, err = store.GetOffer(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrOfferNotFound)
}

func TestListUsers(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	_, alice := seedItemAndUser(t, store)

	later := time.Now().UTC().Add(time.Second)
	bob := shared.User{ID: uuid.New(), Username: "bob", CreatedAt: later, UpdatedAt: later}
	require.NoError(t, store.CreateUser(ctx, bob))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, alice.ID, users[0].ID)
	require.Equal(t, "alice@example.com", users[0].Email)
	require.Equal(t, bob.ID, users[1].ID)
}

func TestFindAndUpdateItemDetails(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	it, user := seedItemAndUser(t, store)

	found, err := store.FindItemByName(ctx, "bICYCLE")
	require.NoError(t, err)
	require.Equal(t, it.ID, found.ID)

	_, err = store.FindItemByName(ctx, "Bicycl")
	require.ErrorIs(t, err, shared.ErrItemNotFound, "names match whole, not by prefix")

	placed := offer.New(it.ID, user.ID, decimal.RequireFromString("75.00"), "", time.Now().UTC())
	require.NoError(t, store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		if err := tx.InsertOffer(ctx, placed); err != nil {
			return err
		}
		return tx.UpdateItemCurrentPrice(ctx, it.WithCurrentPrice(placed.Amount, time.Now().UTC()))
	}))

	// A stale snapshot still carries the old current price; only the text columns are written.
	require.NoError(t, store.UpdateItemDetails(ctx, it.WithDetails("Gravel bike", "Road bike, new tyres", time.Now().UTC())))

	got, err := store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, "Gravel bike", got.Name)
	require.Equal(t, "Road bike, new tyres", got.Description)
	require.True(t, got.CurrentPrice.Equal(decimal.RequireFromString("75.00")))
	require.True(t, got.Price.Equal(decimal.RequireFromString("50.00")))

	found, err = store.FindItemByName(ctx, "gravel bike")
	require.NoError(t, err)
	require.Equal(t, it.ID, found.ID)

	ghost := item.New("Ghost", "", decimal.RequireFromString("1.00"), time.Now().UTC())
	require.ErrorIs(t, store.UpdateItemDetails(ctx, ghost), shared.ErrItemNotFound)
}

func TestListItemsAvailableOnly(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	sold, _ := seedItemAndUser(t, store)

	open := item.New("Lamp", "", decimal.RequireFromString("10.00"), time.Now().UTC().Add(time.Second))
	require.NoError(t, store.CreateItem(ctx, open))

	err := store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		current, err := tx.GetItem(ctx, sold.ID)
		if err != nil {
			return err
		}
		return tx.UpdateItemAvailability(ctx, current.Sold(time.Now().UTC()))
	})
	require.NoError(t, err)

	all, err := store.ListItems(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, open.ID, all[0].ID)

	available, err := store.ListItems(ctx, true)
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, open.ID, available[0].ID)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	it, user := seedItemAndUser(t, store)

	placed := offer.New(it.ID, user.ID, decimal.RequireFromString("60.00"), "hello", time.Now().UTC())
	err := store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		current, err := tx.GetItem(ctx, it.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertOffer(ctx, placed); err != nil {
			return err
		}
		return tx.UpdateItemCurrentPrice(ctx, current.WithCurrentPrice(placed.Amount, time.Now().UTC()))
	})
	require.NoError(t, err)

	rolledBack := offer.New(it.ID, user.ID, decimal.RequireFromString("70.00"), "", time.Now().UTC())
	boom := errors.New("boom")
	err = store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		if err := tx.InsertOffer(ctx, rolledBack); err != nil {
			return err
		}
		current, err := tx.GetItem(ctx, it.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateItemCurrentPrice(ctx, current.WithCurrentPrice(rolledBack.Amount, time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentPrice.Equal(decimal.RequireFromString("60.00")))

	_, err = store.GetOffer(ctx, rolledBack.ID)
	require.ErrorIs(t, err, shared.ErrOfferNotFound)

	stored, err := store.GetOffer(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", stored.Message)
	require.Equal(t, offer.StatusPending, stored.Status)
}

func TestListOffers(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	it, user := seedItemAndUser(t, store)
	base := time.Now().UTC()

	low := offer.New(it.ID, user.ID, decimal.RequireFromString("60.00"), "", base)
	high := offer.New(it.ID, user.ID, decimal.RequireFromString("100.00"), "", base.Add(time.Second))
	err := store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		if err := tx.InsertOffer(ctx, low); err != nil {
			return err
		}
		if err := tx.InsertOffer(ctx, high); err != nil {
			return err
		}
		outbid, err := offer.Transition(low, offer.StatusOutbid, base.Add(time.Second))
		if err != nil {
			return err
		}
		return tx.UpdateOfferStatus(ctx, outbid)
	})
	require.NoError(t, err)

	byItem, err := store.ListOffersForItem(ctx, it.ID, nil)
	require.NoError(t, err)
	require.Len(t, byItem, 2)
	require.Equal(t, high.ID, byItem[0].ID, "100.00 sorts above 60.00")

	pending := offer.StatusPending
	onlyPending, err := store.ListOffersForItem(ctx, it.ID, &pending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	require.Equal(t, high.ID, onlyPending[0].ID)

	byUser, err := store.ListOffersForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	require.Equal(t, high.ID, byUser[0].ID)

	everything, err := store.ListOffers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, everything, 2)
	require.Equal(t, high.ID, everything[0].ID, "newest first")

	outbidStatus := offer.StatusOutbid
	onlyOutbid, err := store.ListOffers(ctx, &outbidStatus)
	require.NoError(t, err)
	require.Len(t, onlyOutbid, 1)
	require.Equal(t, low.ID, onlyOutbid[0].ID)

	err = store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
		return tx.UpdateOfferStatus(ctx, offer.Offer{ID: uuid.New(), Status: offer.StatusRejected})
	})
	require.ErrorIs(t, err, shared.ErrOfferNotFound)
}

func TestTransactionTimesOutWaitingForConnection(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithTransaction(ctx, func(ctx context.Context, tx outbound.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := store.WithTransaction(timeoutCtx, func(ctx context.Context, tx outbound.Tx) error {
		return nil
	})
	require.ErrorIs(t, err, shared.ErrStoreTimeout)
	require.Equal(t, shared.KindStoreTimeout, shared.KindOf(err))

	close(release)
	require.NoError(t, <-done)
}
