package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/J-Enyeribe/TheChase/internal/domain"
)

func testProduct(sku, name string, ksh, ugx int64) domain.Product {
	return domain.Product{
		SKU:          sku,
		Name:         name,
		UnitPriceKSH: decimal.NewFromInt(ksh),
		UnitPriceUGX: decimal.NewFromInt(ugx),
		Active:       true,
	}
}

func TestAddMergesSameProductAndPreference(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	if err := c.Add(beer, PrefCold, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(beer, PrefCold, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if !lines[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("quantity = %s, want 2", lines[0].Quantity)
	}
}

func TestAddKeepsDistinctPreferencesApart(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	if err := c.Add(beer, PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(beer, PrefWarm, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if got := len(c.Lines()); got != 2 {
		t.Fatalf("lines = %d, want 2", got)
	}
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	for _, q := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-1)} {
		if err := c.Add(beer, PrefStandard, q); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("Add(%s) error = %v, want ErrInvalidQuantity", q, err)
		}
	}
	if !c.Empty() {
		t.Fatal("cart should stay empty after rejected adds")
	}
}

func TestUnknownPreferenceFallsBackToStandard(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	if err := c.Add(beer, "Frozen", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := c.Lines()[0].Preference; got != PrefStandard {
		t.Fatalf("preference = %q, want %q", got, PrefStandard)
	}
}

func TestSetPreferenceConsolidates(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	if err := c.Add(beer, PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(beer, PrefWarm, decimal.NewFromInt(3)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetPreference("SKU-001", PrefWarm, PrefCold); err != nil {
		t.Fatalf("set preference: %v", err)
	}

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1 after consolidation", len(lines))
	}
	if !lines[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("quantity = %s, want 5", lines[0].Quantity)
	}
	if lines[0].Preference != PrefCold {
		t.Fatalf("preference = %q, want %q", lines[0].Preference, PrefCold)
	}
}

func TestSetPreferenceMovesWhenNoTargetLine(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	if err := c.Add(beer, PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetPreference("SKU-001", PrefCold, PrefMixer); err != nil {
		t.Fatalf("set preference: %v", err)
	}

	lines := c.Lines()
	if len(lines) != 1 || lines[0].Preference != PrefMixer {
		t.Fatalf("lines = %+v, want single mixer line", lines)
	}
}

func TestSetPreferenceUnknownLine(t *testing.T) {
	c := New()
	if err := c.SetPreference("SKU-404", PrefCold, PrefWarm); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("error = %v, want ErrLineNotFound", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)
	soda := testProduct("SKU-002", "Soda 300ml", 80, 2500)

	if err := c.Add(beer, PrefCold, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(soda, PrefStandard, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := c.Remove("SKU-001", PrefCold); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(c.Lines()); got != 1 {
		t.Fatalf("lines = %d, want 1 after remove", got)
	}
	if err := c.Remove("SKU-001", PrefCold); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("second remove error = %v, want ErrLineNotFound", err)
	}

	c.Clear()
	if !c.Empty() {
		t.Fatal("cart should be empty after Clear")
	}
}

func TestTotalPerCurrency(t *testing.T) {
	c := New()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)
	soda := testProduct("SKU-002", "Soda 300ml", 80, 2500)

	if err := c.Add(beer, PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(soda, PrefStandard, decimal.NewFromInt(3)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if got := c.Total(domain.CurrencyKSH); !got.Equal(decimal.NewFromInt(840)) {
		t.Fatalf("KSH total = %s, want 840", got)
	}
	if got := c.Total(domain.CurrencyUGX); !got.Equal(decimal.NewFromInt(25500)) {
		t.Fatalf("UGX total = %s, want 25500", got)
	}
}

func TestFractionalQuantityTotals(t *testing.T) {
	c := New()
	nuts := testProduct("SKU-010", "Roast Nuts (kg)", 1200, 36000)

	half := decimal.RequireFromString("0.500")
	if err := c.Add(nuts, PrefStandard, half); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := c.Total(domain.CurrencyKSH); !got.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("KSH total = %s, want 600", got)
	}
}

func TestRegistryIsolatesUsers(t *testing.T) {
	r := NewRegistry()
	beer := testProduct("SKU-001", "Lager 500ml", 300, 9000)

	if err := r.For(1).Add(beer, PrefCold, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !r.For(2).Empty() {
		t.Fatal("second user's cart should be empty")
	}
	if r.For(1).Empty() {
		t.Fatal("first user's cart should persist across For calls")
	}

	r.Drop(1)
	if !r.For(1).Empty() {
		t.Fatal("dropped cart should come back empty")
	}
}
