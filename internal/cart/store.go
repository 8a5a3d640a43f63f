package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/lock"
	"github.com/noah-isme/yevea-countertop/internal/obs"
)

// ErrUnavailable marks a mutation that was not applied because the stored
// cart could not be read.
var ErrUnavailable = errors.New("cart: stored cart unavailable")

// Store owns every session's cart. Mutations for one session are serialised
// through Locker when one is configured.
type Store struct {
	Substrate cache.Substrate
	Locker    lock.Locker
	TTL       time.Duration
	LockTTL   time.Duration
	NewID     func() (string, error)
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) newID() (string, error) {
	if s.NewID != nil {
		return s.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Load returns the session's cart. A corrupt blob or an unreachable substrate
// yields an empty cart and a persistence warning; it never fails the request.
func (s *Store) Load(ctx context.Context, sessionID string) (Cart, error) {
	var c Cart
	found, err := cache.GetJSON(ctx, s.Substrate, cache.KeyCart(sessionID), &c)
	if err != nil {
		s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("cart load failed, starting empty")
		obs.ObservePersistenceWarning("cart_load")
		return Cart{}, common.PersistenceWarning(common.MsgLoadCart, err)
	}
	if !found {
		return Cart{}, nil
	}
	return c, nil
}

// Add validates item, assigns it an id and appends it. A price that is not
// strictly positive is rejected and the cart is left unchanged.
func (s *Store) Add(ctx context.Context, sessionID string, item LineItem) (Cart, error) {
	if !item.Price.IsPositive() {
		current, _ := s.Load(ctx, sessionID)
		return current, common.InvalidPriceError(fmt.Errorf("price %s is not positive", item.Price))
	}
	var (
		result  Cart
		warning error
	)
	applied, err := s.mutate(ctx, sessionID, func(current Cart) (Cart, bool, error) {
		id, err := s.newID()
		if err != nil {
			return current, false, fmt.Errorf("generate line item id: %w", err)
		}
		item.ID = id
		item.CreatedAt = s.now().UTC()
		return current.with(item), true, nil
	}, &result, &warning)
	if err != nil {
		return result, err
	}
	if applied && obs.CartItemsAdded != nil {
		obs.CartItemsAdded.Inc()
	}
	return result, warning
}

// Remove deletes the line item with id. A missing id is a no-op and writes nothing.
func (s *Store) Remove(ctx context.Context, sessionID, id string) (Cart, error) {
	var (
		result  Cart
		warning error
		removed bool
	)
	_, err := s.mutate(ctx, sessionID, func(current Cart) (Cart, bool, error) {
		next, ok := current.without(id)
		removed = ok
		return next, ok, nil
	}, &result, &warning)
	if err != nil {
		return result, err
	}
	if removed && obs.CartItemsRemoved != nil {
		obs.CartItemsRemoved.Inc()
	}
	return result, warning
}

// mutate loads, transforms and saves the cart under the session lock. When
// the stored cart cannot be read the mutation is skipped so it is never
// overwritten; only a corrupt blob is replaced. An unchanged cart is not
// saved. Load and save failures are reported through warning, not err, and
// the first return reports whether fn ran.
func (s *Store) mutate(ctx context.Context, sessionID string, fn func(Cart) (Cart, bool, error), result *Cart, warning *error) (bool, error) {
	applied := false
	run := func(ctx context.Context) error {
		current, loadErr := s.Load(ctx, sessionID)
		if loadErr != nil && !errors.Is(loadErr, cache.ErrCorrupt) {
			*result = current
			*warning = common.PersistenceWarning(common.MsgCartOffline, fmt.Errorf("%w: %w", ErrUnavailable, loadErr))
			return nil
		}
		next, changed, err := fn(current)
		if err != nil {
			*result = current
			return err
		}
		applied = true
		*result = next
		*warning = loadErr
		if !changed {
			return nil
		}
		if err := cache.SetJSON(ctx, s.Substrate, cache.KeyCart(sessionID), next, s.ttl()); err != nil {
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("cart save failed")
			obs.ObservePersistenceWarning("cart_save")
			*warning = common.PersistenceWarning(common.MsgSaveCart, err)
		}
		return nil
	}
	if s.Locker == nil {
		return applied, run(ctx)
	}
	lockTTL := s.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	err := s.Locker.WithLock(ctx, cache.KeyCartLock(sessionID), lockTTL, run)
	if err != nil && !common.IsAppError(err) {
		s.Logger.Error().Err(err).Str("session_id", sessionID).Msg("cart mutation failed")
		return applied, common.NewAppError(common.KindInternal, common.MsgInternal, fmt.Errorf("cart mutation: %w", err))
	}
	return applied, err
}
