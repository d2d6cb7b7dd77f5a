package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Variant struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	Stock       int       `json:"stock"`
	Featured    bool      `json:"featured"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url,omitempty"`
}

var (
	ErrInvalidProduct   = errors.New("invalid product")
	ErrInvalidSelection = errors.New("invalid variant selection")
)

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: price_cents must be >= 0", ErrInvalidProduct)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalidProduct)
	}
	return validateVariants(p.Variants)
}

func validateVariants(vs []Variant) error {
	seen := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		if strings.TrimSpace(v.ID) == "" || strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("%w: variant id and name required", ErrInvalidProduct)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("%w: duplicate variant %q", ErrInvalidProduct, v.ID)
		}
		seen[v.ID] = struct{}{}
		if len(v.Options) == 0 {
			return fmt.Errorf("%w: variant %q has no options", ErrInvalidProduct, v.ID)
		}
	}
	return nil
}

// ValidateSelection checks a cart variant selection (variant id -> option)
// against the product definition. A partial selection is allowed.
func (p Product) ValidateSelection(sel map[string]string) error {
	for vid, opt := range sel {
		v, ok := p.variant(vid)
		if !ok {
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidSelection, vid)
		}
		if !contains(v.Options, opt) {
			return fmt.Errorf("%w: %q is not an option of %q", ErrInvalidSelection, opt, vid)
		}
	}
	return nil
}

func (p Product) variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// ProductPatch is a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	PriceCents  *int64     `json:"price_cents,omitempty"`
	Category    *string    `json:"category,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	Stock       *int       `json:"stock,omitempty"`
	Featured    *bool      `json:"featured,omitempty"`
	Variants    *[]Variant `json:"variants,omitempty"`
}

func (p ProductPatch) Apply(prod Product) Product {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.PriceCents != nil {
		prod.PriceCents = *p.PriceCents
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.ImageURL != nil {
		prod.ImageURL = *p.ImageURL
	}
	if p.Stock != nil {
		prod.Stock = *p.Stock
	}
	if p.Featured != nil {
		prod.Featured = *p.Featured
	}
	if p.Variants != nil {
		prod.Variants = append([]Variant(nil), (*p.Variants)...)
	}
	return prod
}

func (p ProductPatch) Empty() bool {
	return p == ProductPatch{}
}

// SeedProducts is the demo catalog used by in-memory stores. It mirrors the
// seed migration.
func SeedProducts(now time.Time) []Product {
	return []Product{
		{
			ID: "p1", Name: "Keyboard", Description: "Mechanical keyboard", PriceCents: 4990,
			Category: "peripherals", Stock: 100, Featured: true,
			CreatedAt: now.Add(-2 * time.Minute), UpdatedAt: now,
		},
		{
			ID: "p2", Name: "Mouse", Description: "Wireless mouse", PriceCents: 1990,
			Category: "peripherals", Stock: 100,
			CreatedAt: now.Add(-1 * time.Minute), UpdatedAt: now,
		},
		{
			ID: "p3", Name: "T-Shirt", Description: "Cotton tee", PriceCents: 1500,
			Category: "apparel", Stock: 50, Featured: true,
			Variants: []Variant{
				{ID: "size", Name: "Size", Options: []string{"S", "M", "L"}},
				{ID: "color", Name: "Color", Options: []string{"black", "white"}},
			},
			CreatedAt: now, UpdatedAt: now,
		},
	}
}

func SeedCategories() []Category {
	return []Category{
		{ID: "c_peripherals", Name: "Peripherals", Slug: "peripherals"},
		{ID: "c_apparel", Name: "Apparel", Slug: "apparel"},
	}
}

// Slugify lowercases s and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
