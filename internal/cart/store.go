package cart

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrConflict is returned when an optimistic update kept losing races.
var ErrConflict = errors.New("cart update conflict")

// SnapshotStore persists cart snapshots per owner. Update runs load,
// restore, mutate and save as one unit; fn may be invoked more than once
// by optimistic stores and must only act on the cart it is given.
type SnapshotStore interface {
	Ping(ctx context.Context) error
	Load(ctx context.Context, owner string) ([]byte, error)
	Save(ctx context.Context, owner string, snapshot []byte) error
	Delete(ctx context.Context, owner string) error
	Update(ctx context.Context, owner string, fn func(*Cart) error) (*Cart, error)
}

// Get loads and restores the owner's cart. A missing or unreadable
// snapshot yields an empty cart.
func Get(ctx context.Context, s SnapshotStore, log *zap.Logger, owner string) (*Cart, error) {
	raw, err := s.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return restoreOrEmpty(log, owner, raw), nil
}

func restoreOrEmpty(log *zap.Logger, owner string, raw []byte) *Cart {
	if len(raw) == 0 {
		return New()
	}
	c, err := Restore(raw)
	if err != nil {
		if log != nil {
			log.Warn("discarding unreadable cart snapshot", zap.String("owner", owner), zap.Error(err))
		}
		return New()
	}
	return c
}

// mutate applies fn to the restored cart and returns the new snapshot.
// A nil snapshot means the cart is empty and the key should be removed.
func mutate(log *zap.Logger, owner string, raw []byte, fn func(*Cart) error) (*Cart, []byte, error) {
	c := restoreOrEmpty(log, owner, raw)
	if err := fn(c); err != nil {
		return nil, nil, err
	}
	if c.Len() == 0 {
		return c, nil, nil
	}
	snap, err := c.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	return c, snap, nil
}
