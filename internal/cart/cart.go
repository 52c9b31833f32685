// Package cart holds the in-memory working set a cashier builds up
// before settlement. Carts are transient: nothing here touches storage.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/J-Enyeribe/TheChase/internal/domain"
)

// Serving preferences. Two lines for the same product with different
// preferences are distinct lines and are never merged.
const (
	PrefStandard = "Standard"
	PrefWarm     = "Warm"
	PrefCold     = "Cold"
	PrefMixer    = "Mixer"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	ErrLineNotFound    = errors.New("cart: line not found")
)

// Line is one (product, preference) entry. Prices are snapshotted from
// the product at add time, one amount per currency.
type Line struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Preference   string          `json:"preference"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPriceKSH decimal.Decimal `json:"unit_price_ksh"`
	UnitPriceUGX decimal.Decimal `json:"unit_price_ugx"`
}

// UnitPrice returns the snapshotted price for the given currency.
func (l Line) UnitPrice(currency domain.Currency) decimal.Decimal {
	if currency == domain.CurrencyUGX {
		return l.UnitPriceUGX
	}
	return l.UnitPriceKSH
}

// LineTotal is quantity times the unit price in the given currency.
func (l Line) LineTotal(currency domain.Currency) decimal.Decimal {
	return l.UnitPrice(currency).Mul(l.Quantity)
}

// Cart keys lines by (SKU, preference) and preserves insertion order.
// It is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

func normalizePref(pref string) string {
	switch pref {
	case PrefWarm, PrefCold, PrefMixer:
		return pref
	}
	return PrefStandard
}

// Add puts quantity units of a product in the cart under the given
// preference. If a line with the same (SKU, preference) already exists
// the quantities merge; otherwise a new line is appended.
func (c *Cart) Add(product domain.Product, preference string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, quantity)
	}
	preference = normalizePref(preference)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].SKU == product.SKU && c.lines[i].Preference == preference {
			c.lines[i].Quantity = c.lines[i].Quantity.Add(quantity)
			return nil
		}
	}
	c.lines = append(c.lines, Line{
		SKU:          product.SKU,
		Name:         product.Name,
		Preference:   preference,
		Quantity:     quantity,
		UnitPriceKSH: product.UnitPriceKSH,
		UnitPriceUGX: product.UnitPriceUGX,
	})
	return nil
}

// SetPreference reassigns an existing line to a new preference. If the
// target (SKU, preference) already exists the two lines consolidate into
// one with their quantities summed.
func (c *Cart) SetPreference(sku, from, to string) error {
	from = normalizePref(from)
	to = normalizePref(to)

	c.mu.Lock()
	defer c.mu.Unlock()
	src := -1
	for i := range c.lines {
		if c.lines[i].SKU == sku && c.lines[i].Preference == from {
			src = i
			break
		}
	}
	if src < 0 {
		return fmt.Errorf("%w: %s (%s)", ErrLineNotFound, sku, from)
	}
	if from == to {
		return nil
	}
	for i := range c.lines {
		if i != src && c.lines[i].SKU == sku && c.lines[i].Preference == to {
			c.lines[i].Quantity = c.lines[i].Quantity.Add(c.lines[src].Quantity)
			c.lines = append(c.lines[:src], c.lines[src+1:]...)
			return nil
		}
	}
	c.lines[src].Preference = to
	return nil
}

// SetQuantity replaces the quantity on an existing line.
func (c *Cart) SetQuantity(sku, preference string, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, quantity)
	}
	preference = normalizePref(preference)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].SKU == sku && c.lines[i].Preference == preference {
			c.lines[i].Quantity = quantity
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s)", ErrLineNotFound, sku, preference)
}

// Remove drops the (SKU, preference) line entirely.
func (c *Cart) Remove(sku, preference string) error {
	preference = normalizePref(preference)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].SKU == sku && c.lines[i].Preference == preference {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s)", ErrLineNotFound, sku, preference)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Total sums line totals in the given currency.
func (c *Cart) Total(currency domain.Currency) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.UnitPrice(currency).Mul(l.Quantity))
	}
	return total
}
