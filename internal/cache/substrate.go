package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt marks a stored blob that could not be decoded. Callers may
// overwrite it; any other load error means the stored value is unknown.
var ErrCorrupt = errors.New("cache: corrupt blob")

// Substrate stores one opaque blob per key with a lifetime.
type Substrate interface {
	// Load returns the blob stored at key and whether it existed.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON unmarshals the blob at key into dst. It reports whether the key existed.
func GetJSON(ctx context.Context, s Substrate, key string, dst any) (bool, error) {
	if s == nil || key == "" {
		return false, nil
	}
	data, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it at key for ttl.
func SetJSON(ctx context.Context, s Substrate, key string, v any, ttl time.Duration) error {
	if s == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(ctx, key, data, ttl)
}
