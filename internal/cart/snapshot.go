package cart

import (
	"encoding/json"
	"errors"
	"fmt"
)

const snapshotVersion = 1

var ErrCorruptSnapshot = errors.New("corrupt cart snapshot")

type snapshot struct {
	Version int    `json:"v"`
	Lines   []Line `json:"lines"`
}

// Snapshot serializes the cart. Callers treat the bytes as opaque.
func (c *Cart) Snapshot() ([]byte, error) {
	lines := c.lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(snapshot{Version: snapshotVersion, Lines: lines})
}

// Restore rebuilds a cart from a snapshot. Lines with a non-positive
// quantity are dropped and lines sharing a key are merged. On error the
// returned cart is empty and usable.
func Restore(raw []byte) (*Cart, error) {
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return New(), fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if s.Version != snapshotVersion {
		return New(), fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, s.Version)
	}

	c := New()
	for _, l := range s.Lines {
		if l.Quantity <= 0 || l.ProductID == "" {
			continue
		}
		k := l.Key()
		if i, ok := c.index[k]; ok {
			c.lines[i].Quantity = min(c.lines[i].Quantity+l.Quantity, MaxLineQuantity)
			continue
		}
		l.Quantity = min(l.Quantity, MaxLineQuantity)
		l.Variants = copyVariants(l.Variants)
		c.index[k] = len(c.lines)
		c.lines = append(c.lines, l)
	}
	if err := c.recompute(); err != nil {
		return New(), fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return c, nil
}
