package cart_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/lock"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

type flakySubstrate struct {
	*cache.Memory
	failLoad atomic.Bool
	failSave atomic.Bool
}

func (f *flakySubstrate) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failLoad.Load() {
		return nil, false, errors.New("substrate unavailable")
	}
	return f.Memory.Load(ctx, key)
}

func (f *flakySubstrate) Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if f.failSave.Load() {
		return errors.New("quota exceeded")
	}
	return f.Memory.Save(ctx, key, blob, ttl)
}

func newStore(sub cache.Substrate) *cart.Store {
	var seq atomic.Int64
	return &cart.Store{
		Substrate: sub,
		Locker:    lock.NewLocal(),
		TTL:       time.Hour,
		NewID: func() (string, error) {
			return fmt.Sprintf("item-%d", seq.Add(1)), nil
		},
		Now:    func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
		Logger: zerolog.Nop(),
	}
}

func sampleItem(t *testing.T, length float64) cart.LineItem {
	t.Helper()
	calc := pricing.NewCalculator(nil)
	dims := pricing.Dimensions{Length: length, Width: 30, Thickness: 3}
	return cart.NewLineItem(calc, configurator.Namer{}, dims, configurator.NewState(), "eur")
}

func withPrice(item cart.LineItem, price string) cart.LineItem {
	item.Price = decimal.RequireFromString(price)
	return item
}

func TestNewLineItemSnapshot(t *testing.T) {
	item := sampleItem(t, 80)
	require.Equal(t, "216.00", item.Price.StringFixed(2))
	require.Equal(t, "iiii", item.EdgeCode)
	require.Equal(t, "31-iiii. Tabletop 80x30x3 cm, all straight edges", item.ProductName)
	require.Equal(t, "eur", item.Currency)
}

func TestAddThenRemoveRestoresCart(t *testing.T) {
	store := newStore(cache.NewMemory())
	ctx := context.Background()

	_, err := store.Add(ctx, "s1", sampleItem(t, 80))
	require.NoError(t, err)
	before, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, before.Len())

	after, err := store.Add(ctx, "s1", sampleItem(t, 120))
	require.NoError(t, err)
	require.Equal(t, 2, after.Len())
	added := after.Items()[1]
	require.Equal(t, "item-2", added.ID)
	require.False(t, added.CreatedAt.IsZero())

	restored, err := store.Remove(ctx, "s1", added.ID)
	require.NoError(t, err)
	require.Equal(t, before.Items(), restored.Items())
	require.True(t, before.Total().Equal(restored.Total()))

	reloaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	require.Equal(t, "item-1", reloaded.Items()[0].ID)
}

func TestRemoveMissingIDIsNoop(t *testing.T) {
	store := newStore(cache.NewMemory())
	ctx := context.Background()
	_, err := store.Add(ctx, "s1", sampleItem(t, 80))
	require.NoError(t, err)

	c, err := store.Remove(ctx, "s1", "does-not-exist")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestTotalIsExactSum(t *testing.T) {
	store := newStore(cache.NewMemory())
	ctx := context.Background()

	empty, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, empty.Total().IsZero())

	for _, p := range []string{"0.10", "0.20", "174.69"} {
		_, err := store.Add(ctx, "s1", withPrice(sampleItem(t, 80), p))
		require.NoError(t, err)
	}
	c, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "174.99", c.Total().StringFixed(2))
	require.True(t, c.Total().Equal(decimal.RequireFromString("174.99")))
}

func TestAddRejectsNonPositivePrice(t *testing.T) {
	store := newStore(cache.NewMemory())
	ctx := context.Background()
	_, err := store.Add(ctx, "s1", sampleItem(t, 80))
	require.NoError(t, err)

	for _, p := range []string{"0", "-5"} {
		c, err := store.Add(ctx, "s1", withPrice(sampleItem(t, 80), p))
		require.True(t, common.IsKind(err, common.KindInvalidPrice), "price %s", p)
		require.Equal(t, 1, c.Len())
	}
	c, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestLoadFailureYieldsEmptyCartWithWarning(t *testing.T) {
	sub := &flakySubstrate{Memory: cache.NewMemory()}
	var logs bytes.Buffer
	store := newStore(sub)
	store.Logger = zerolog.New(&logs)
	ctx := context.Background()

	_, err := store.Add(ctx, "other", sampleItem(t, 80))
	require.NoError(t, err)

	sub.failLoad.Store(true)
	c, err := store.Load(ctx, "s1")
	require.True(t, c.IsEmpty())
	require.True(t, common.IsKind(err, common.KindPersistence))
	require.Contains(t, logs.String(), "cart load failed")

	c, err = store.Add(ctx, "s2", sampleItem(t, 90))
	require.ErrorIs(t, err, cart.ErrUnavailable)
	require.True(t, common.IsKind(err, common.KindPersistence))
	require.True(t, c.IsEmpty())

	sub.failLoad.Store(false)
	other, err := store.Load(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, 1, other.Len())
	s2, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	require.True(t, s2.IsEmpty())
}

func TestLoadFailureNeverOverwritesStoredCart(t *testing.T) {
	sub := &flakySubstrate{Memory: cache.NewMemory()}
	store := newStore(sub)
	ctx := context.Background()

	_, err := store.Add(ctx, "s1", sampleItem(t, 80))
	require.NoError(t, err)
	_, err = store.Add(ctx, "s1", sampleItem(t, 90))
	require.NoError(t, err)

	sub.failLoad.Store(true)
	c, err := store.Remove(ctx, "s1", "no-such-id")
	require.ErrorIs(t, err, cart.ErrUnavailable)
	require.True(t, c.IsEmpty())
	_, err = store.Remove(ctx, "s1", "item-1")
	require.ErrorIs(t, err, cart.ErrUnavailable)
	_, err = store.Add(ctx, "s1", sampleItem(t, 100))
	require.ErrorIs(t, err, cart.ErrUnavailable)

	sub.failLoad.Store(false)
	c, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
}

func TestRemoveAbsentItemWritesNothing(t *testing.T) {
	sub := &flakySubstrate{Memory: cache.NewMemory()}
	store := newStore(sub)
	ctx := context.Background()

	_, err := store.Add(ctx, "s1", sampleItem(t, 80))
	require.NoError(t, err)

	sub.failSave.Store(true)
	c, err := store.Remove(ctx, "s1", "no-such-id")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestCorruptBlobIsReplacedOnMutation(t *testing.T) {
	mem := cache.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, cache.KeyCart("s1"), []byte(`{"items":"nope"}`), 0))
	store := newStore(mem)

	c, err := store.Add(ctx, "s1", sampleItem(t, 80))
	require.True(t, common.IsKind(err, common.KindPersistence))
	require.NotErrorIs(t, err, cart.ErrUnavailable)
	require.Equal(t, 1, c.Len())

	c, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestCorruptBlobYieldsEmptyCart(t *testing.T) {
	mem := cache.NewMemory()
	require.NoError(t, mem.Save(context.Background(), cache.KeyCart("s1"), []byte(`{"items":"nope"}`), 0))
	store := newStore(mem)
	c, err := store.Load(context.Background(), "s1")
	require.True(t, c.IsEmpty())
	require.True(t, common.IsKind(err, common.KindPersistence))
}

func TestSaveFailureReturnsUpdatedCartWithWarning(t *testing.T) {
	sub := &flakySubstrate{Memory: cache.NewMemory()}
	sub.failSave.Store(true)
	store := newStore(sub)

	c, err := store.Add(context.Background(), "s1", sampleItem(t, 80))
	require.True(t, common.IsKind(err, common.KindPersistence))
	require.Equal(t, 1, c.Len())
}

func TestConcurrentAddsAreSerialised(t *testing.T) {
	store := newStore(cache.NewMemory())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Add(ctx, "s1", sampleItem(t, 80))
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	c, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 25, c.Len())
}

func TestLockFailureIsInternal(t *testing.T) {
	store := newStore(cache.NewMemory())
	store.Locker = lock.Redis{}
	_, err := store.Add(context.Background(), "s1", sampleItem(t, 80))
	require.True(t, common.IsKind(err, common.KindInternal))
	require.True(t, common.IsAppError(err))
}
