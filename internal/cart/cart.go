// Package cart holds a shopping cart as a mapping from (product, variant
// selection) to a line, with totals kept consistent after every mutation.
//
// A Cart is not safe for concurrent use; stores serialize writers per owner.
package cart

import (
	"errors"
	"math"
	"net/url"
	"sort"
	"strings"
)

// MaxLineQuantity bounds a single line so totals cannot overflow.
const MaxLineQuantity = 10000

var (
	ErrBadQuantity   = errors.New("quantity must be between 1 and 10000")
	ErrBadProduct    = errors.New("product id required")
	ErrTotalOverflow = errors.New("cart total overflow")
)

// Item is the product data captured into a line when it is added.
type Item struct {
	ProductID  string
	Name       string
	PriceCents int64
	ImageURL   string
}

type Line struct {
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	PriceCents int64             `json:"price_cents"`
	ImageURL   string            `json:"image_url,omitempty"`
	Quantity   int               `json:"quantity"`
	Variants   map[string]string `json:"variants,omitempty"`
}

// Key identifies a line: the product id plus the variant selection in a
// canonical, order-independent form.
type Key string

func KeyOf(productID string, variants map[string]string) Key {
	if len(variants) == 0 {
		return Key(url.QueryEscape(productID))
	}

	names := make([]string, 0, len(variants))
	for k := range variants {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(url.QueryEscape(productID))
	b.WriteByte('|')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(variants[k]))
	}
	return Key(b.String())
}

func (l Line) Key() Key { return KeyOf(l.ProductID, l.Variants) }

func (l Line) SubtotalCents() int64 { return l.PriceCents * int64(l.Quantity) }

type Cart struct {
	lines []Line
	index map[Key]int

	totalItems      int
	totalPriceCents int64
}

func New() *Cart {
	return &Cart{index: map[Key]int{}}
}

// Add merges quantity into the line with the same key, or appends a new line.
func (c *Cart) Add(it Item, quantity int, variants map[string]string) error {
	if strings.TrimSpace(it.ProductID) == "" {
		return ErrBadProduct
	}
	if quantity <= 0 || quantity > MaxLineQuantity {
		return ErrBadQuantity
	}

	k := KeyOf(it.ProductID, variants)
	if i, ok := c.index[k]; ok {
		next := c.lines[i].Quantity + quantity
		if next > MaxLineQuantity {
			return ErrBadQuantity
		}
		prev := c.lines[i].Quantity
		c.lines[i].Quantity = next
		if err := c.recompute(); err != nil {
			c.lines[i].Quantity = prev
			_ = c.recompute()
			return err
		}
		return nil
	}

	c.lines = append(c.lines, Line{
		ProductID:  it.ProductID,
		Name:       it.Name,
		PriceCents: it.PriceCents,
		ImageURL:   it.ImageURL,
		Quantity:   quantity,
		Variants:   copyVariants(variants),
	})
	if err := c.reindex(); err != nil {
		c.lines = c.lines[:len(c.lines)-1]
		_ = c.reindex()
		return err
	}
	return nil
}

// Remove drops every line of the product. It reports whether anything was removed.
func (c *Cart) Remove(productID string) bool {
	return c.filter(func(l Line) bool { return l.ProductID != productID })
}

func (c *Cart) RemoveLine(k Key) bool {
	return c.filter(func(l Line) bool { return l.Key() != k })
}

// UpdateQuantity sets the quantity of every line of the product. A quantity
// of zero or less removes the product.
func (c *Cart) UpdateQuantity(productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return c.Remove(productID), nil
	}
	if quantity > MaxLineQuantity {
		return false, ErrBadQuantity
	}

	prev := make(map[int]int)
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			prev[i] = c.lines[i].Quantity
			c.lines[i].Quantity = quantity
		}
	}
	if len(prev) == 0 {
		return false, nil
	}
	if err := c.recompute(); err != nil {
		for i, q := range prev {
			c.lines[i].Quantity = q
		}
		_ = c.recompute()
		return false, err
	}
	return true, nil
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = map[Key]int{}
	c.totalItems = 0
	c.totalPriceCents = 0
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		l.Variants = copyVariants(l.Variants)
		out[i] = l
	}
	return out
}

func (c *Cart) Len() int { return len(c.lines) }

// Quantity is the total quantity of a product across its variant lines.
func (c *Cart) Quantity(productID string) int {
	n := 0
	for _, l := range c.lines {
		if l.ProductID == productID {
			n += l.Quantity
		}
	}
	return n
}

func (c *Cart) LineCount(productID string) int {
	n := 0
	for _, l := range c.lines {
		if l.ProductID == productID {
			n++
		}
	}
	return n
}

func (c *Cart) TotalItems() int { return c.totalItems }

func (c *Cart) TotalPriceCents() int64 { return c.totalPriceCents }

type ViewLine struct {
	Key Key `json:"key"`
	Line
	SubtotalCents int64 `json:"subtotal_cents"`
}

type View struct {
	Items           []ViewLine `json:"items"`
	TotalItems      int        `json:"total_items"`
	TotalPriceCents int64      `json:"total_price_cents"`
}

func (c *Cart) View() View {
	v := View{
		Items:           make([]ViewLine, 0, len(c.lines)),
		TotalItems:      c.totalItems,
		TotalPriceCents: c.totalPriceCents,
	}
	for _, l := range c.Lines() {
		v.Items = append(v.Items, ViewLine{Key: l.Key(), Line: l, SubtotalCents: l.SubtotalCents()})
	}
	return v
}

func (c *Cart) filter(keep func(Line) bool) bool {
	n := 0
	for _, l := range c.lines {
		if keep(l) {
			c.lines[n] = l
			n++
		}
	}
	removed := n != len(c.lines)
	clear(c.lines[n:])
	c.lines = c.lines[:n]
	_ = c.reindex()
	return removed
}

func (c *Cart) reindex() error {
	c.index = make(map[Key]int, len(c.lines))
	for i, l := range c.lines {
		c.index[l.Key()] = i
	}
	return c.recompute()
}

func (c *Cart) recompute() error {
	var (
		items int
		total int64
	)
	for _, l := range c.lines {
		items += l.Quantity
		if l.PriceCents < 0 {
			return ErrTotalOverflow
		}
		if l.PriceCents > 0 && int64(l.Quantity) > math.MaxInt64/l.PriceCents {
			return ErrTotalOverflow
		}
		sub := l.SubtotalCents()
		if total > math.MaxInt64-sub {
			return ErrTotalOverflow
		}
		total += sub
	}
	c.totalItems = items
	c.totalPriceCents = total
	return nil
}

func copyVariants(v map[string]string) map[string]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
