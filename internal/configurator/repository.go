package configurator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/lock"
)

// Repository persists each session's configuration state. Updates for one
// session are serialised through Locker when one is configured.
type Repository struct {
	Store        cache.Substrate
	Locker       lock.Locker
	TTL          time.Duration
	LockTTL      time.Duration
	OtherDefault string
	Logger       zerolog.Logger
}

// Load returns the session's state. A missing, corrupt or unreachable blob
// yields NewState and, for failures, a persistence warning.
func (r *Repository) Load(ctx context.Context, sessionID string) (State, error) {
	state := r.defaults()
	var stored State
	found, err := cache.GetJSON(ctx, r.Store, cache.KeyConfig(sessionID), &stored)
	if err != nil {
		r.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("configuration load failed, using defaults")
		return state, common.PersistenceWarning("", err)
	}
	if !found {
		return state, nil
	}
	state.Edges = stored.Edges.normalize()
	state.Usage = stored.Usage
	if state.Usage.Category == "" {
		state.Usage.Category = Tabletop
	}
	return state, nil
}

// Save stores the session's state.
func (r *Repository) Save(ctx context.Context, sessionID string, state State) error {
	if err := cache.SetJSON(ctx, r.Store, cache.KeyConfig(sessionID), state, r.TTL); err != nil {
		r.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("configuration save failed")
		return common.PersistenceWarning("", err)
	}
	return nil
}

// Update loads the state, applies fn and saves the result under the session lock.
func (r *Repository) Update(ctx context.Context, sessionID string, fn func(*State)) (State, error) {
	var (
		state  State
		result error
	)
	run := func(ctx context.Context) error {
		var loadErr error
		state, loadErr = r.Load(ctx, sessionID)
		fn(&state)
		if err := r.Save(ctx, sessionID, state); err != nil {
			result = err
			return nil
		}
		result = loadErr
		return nil
	}
	if r.Locker == nil {
		_ = run(ctx)
		return state, result
	}
	lockTTL := r.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	if err := r.Locker.WithLock(ctx, cache.KeyConfigLock(sessionID), lockTTL, run); err != nil {
		r.Logger.Error().Err(err).Str("session_id", sessionID).Msg("configuration update failed")
		return r.defaults(), common.NewAppError(common.KindInternal, common.MsgInternal, fmt.Errorf("configuration update: %w", err))
	}
	return state, result
}

func (r *Repository) defaults() State {
	return NewState().WithOtherDefault(r.OtherDefault)
}
