package settlement

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/J-Enyeribe/TheChase/internal/cart"
	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/store"
	"github.com/J-Enyeribe/TheChase/internal/store/memory"
)

const seededCashierID = 2

func seededProduct(t *testing.T, repo *memory.Store, sku string) domain.Product {
	t.Helper()
	p, err := repo.GetProductBySKU(context.Background(), sku)
	if err != nil {
		t.Fatalf("seeded product %s: %v", sku, err)
	}
	return *p
}

func stockOf(t *testing.T, repo *memory.Store, sku string) decimal.Decimal {
	t.Helper()
	inv, err := repo.GetInventory(context.Background(), sku)
	if err != nil {
		t.Fatalf("inventory %s: %v", sku, err)
	}
	return inv.QuantityOnHand
}

func TestSettleHappyPath(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	lager := seededProduct(t, repo, "SKU-LAGER-01")
	c := cart.New()
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	order := result.Order
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Fatalf("order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusCleared {
		t.Fatalf("order status = %s, want cleared", order.Status)
	}
	if order.PlacedByID != seededCashierID || order.ServedByID != seededCashierID || order.ClearedByID != seededCashierID {
		t.Fatalf("lifecycle actors = %d/%d/%d, want all %d", order.PlacedByID, order.ServedByID, order.ClearedByID, seededCashierID)
	}
	want := decimal.NewFromInt(600)
	if !order.Subtotal.Equal(want) || !order.GrandTotal.Equal(want) {
		t.Fatalf("subtotal/grand = %s/%s, want %s", order.Subtotal, order.GrandTotal, want)
	}
	if len(order.Items) != 1 {
		t.Fatalf("order items = %d, want 1", len(order.Items))
	}

	tx := result.Transaction
	if !strings.HasPrefix(tx.ReceiptNumber, "TXN-") {
		t.Fatalf("receipt number %q", tx.ReceiptNumber)
	}
	if tx.Status != domain.TxStatusCompleted {
		t.Fatalf("tx status = %s, want completed", tx.Status)
	}
	if tx.OrderID != order.ID {
		t.Fatalf("tx order id = %d, want %d", tx.OrderID, order.ID)
	}
	if !tx.GrandTotal.Equal(order.GrandTotal) {
		t.Fatalf("tx grand = %s, order grand = %s", tx.GrandTotal, order.GrandTotal)
	}

	if got := stockOf(t, repo, "SKU-LAGER-01"); !got.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("stock after sale = %s, want 98", got)
	}
	if !c.Empty() {
		t.Fatal("cart should be cleared after settlement")
	}

	moves, err := repo.ListMovements(ctx, "SKU-LAGER-01", 1)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("movements = %d, want 1", len(moves))
	}
	m := moves[0]
	if m.Type != domain.MovementSale {
		t.Fatalf("movement type = %s, want sale", m.Type)
	}
	if !m.QuantityBefore.Equal(decimal.NewFromInt(100)) || !m.QuantityAfter.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("movement before/after = %s/%s, want 100/98", m.QuantityBefore, m.QuantityAfter)
	}
	if m.SourceRef != order.OrderNumber {
		t.Fatalf("movement source = %q, want %q", m.SourceRef, order.OrderNumber)
	}
}

func TestSettleEmptyCart(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)

	_, err := engine.Settle(context.Background(), cart.New(), domain.CurrencyKSH, seededCashierID, Options{})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("error = %v, want ErrEmptyCart", err)
	}
}

func TestSettleNoCashier(t *testing.T) {
	repo := memory.New()
	engine := NewEngine(repo)
	c := cart.New()
	if err := c.Add(domain.Product{SKU: "X", Name: "X", UnitPriceKSH: decimal.NewFromInt(10)}, cart.PrefStandard, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := engine.Settle(context.Background(), c, domain.CurrencyKSH, 0, Options{}); !errors.Is(err, ErrNoCashierAvailable) {
		t.Fatalf("error = %v, want ErrNoCashierAvailable", err)
	}
}

func TestSettleInactiveCashierRejected(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	cashier, err := repo.GetUserByID(ctx, seededCashierID)
	if err != nil {
		t.Fatalf("seeded cashier: %v", err)
	}
	cashier.Active = false
	if _, err := repo.UpdateUser(ctx, *cashier); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	engine := NewEngine(repo)
	c := cart.New()
	lager := seededProduct(t, repo, "SKU-LAGER-01")
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{}); !errors.Is(err, ErrNoCashierAvailable) {
		t.Fatalf("error = %v, want ErrNoCashierAvailable", err)
	}
}

func TestSettleFallbackToFirstActiveCashier(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	c := cart.New()
	lager := seededProduct(t, repo, "SKU-LAGER-01")
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := engine.Settle(context.Background(), c, domain.CurrencyKSH, 0, Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Transaction.CashierID != seededCashierID {
		t.Fatalf("cashier = %d, want %d", result.Transaction.CashierID, seededCashierID)
	}
}

func TestSettleKeepsPreferenceLinesApart(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	lager := seededProduct(t, repo, "SKU-LAGER-01")
	c := cart.New()
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(3)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(lager, cart.PrefWarm, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(result.Order.Items) != 2 {
		t.Fatalf("order items = %d, want 2", len(result.Order.Items))
	}
	if got := stockOf(t, repo, "SKU-LAGER-01"); !got.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("stock = %s, want 95 after combined decrement", got)
	}
}

func TestSettleAtomicOnInsufficientStock(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	soda := seededProduct(t, repo, "SKU-SODA-01")
	lager := seededProduct(t, repo, "SKU-LAGER-01")
	c := cart.New()
	if err := c.Add(soda, cart.PrefStandard, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("error = %v, want ErrInsufficientStock", err)
	}

	// Nothing persisted, stock untouched, cart intact.
	if got := stockOf(t, repo, "SKU-SODA-01"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("soda stock = %s, want 100", got)
	}
	if got := stockOf(t, repo, "SKU-LAGER-01"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("lager stock = %s, want 100", got)
	}
	txs, err := repo.ListTransactions(ctx, store.ReportPeriod{}, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("transactions = %d, want 0", len(txs))
	}
	moves, err := repo.ListMovements(ctx, "", 0)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(moves) != 0 {
		t.Fatalf("movements = %d, want 0", len(moves))
	}
	if c.Empty() {
		t.Fatal("cart must survive a failed settlement")
	}
}

func TestSettleMissingInventoryFailsWhole(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	ghost, err := repo.CreateProduct(ctx, domain.Product{
		SKU:          "SKU-GHOST-01",
		Name:         "Untracked Special",
		UnitPriceKSH: decimal.NewFromInt(500),
		UnitPriceUGX: decimal.NewFromInt(15000),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	engine := NewEngine(repo)
	soda := seededProduct(t, repo, "SKU-SODA-01")
	c := cart.New()
	if err := c.Add(soda, cart.PrefStandard, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(*ghost, cart.PrefStandard, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{}); !errors.Is(err, store.ErrMissingInventory) {
		t.Fatalf("error = %v, want ErrMissingInventory", err)
	}
	if got := stockOf(t, repo, "SKU-SODA-01"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("soda stock = %s, want 100", got)
	}
}

func TestSettleUsesSingleCurrencyPrices(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	lager := seededProduct(t, repo, "SKU-LAGER-01")
	c := cart.New()
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := engine.Settle(ctx, c, domain.CurrencyUGX, seededCashierID, Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Order.Currency != domain.CurrencyUGX {
		t.Fatalf("currency = %s, want UGX", result.Order.Currency)
	}
	want := decimal.NewFromInt(18000)
	if !result.Order.GrandTotal.Equal(want) {
		t.Fatalf("grand = %s, want %s", result.Order.GrandTotal, want)
	}
	for _, item := range result.Order.Items {
		if !item.UnitPrice.Equal(decimal.NewFromInt(9000)) {
			t.Fatalf("unit price = %s, want UGX list price 9000", item.UnitPrice)
		}
	}
}

func TestSettleTaxAndDiscount(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	lager := seededProduct(t, repo, "SKU-LAGER-01")
	c := cart.New()
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{
		TaxRate:  decimal.RequireFromString("0.16"),
		Discount: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.Order.Subtotal.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("subtotal = %s, want 600", result.Order.Subtotal)
	}
	if !result.Order.TaxTotal.Equal(decimal.NewFromInt(96)) {
		t.Fatalf("tax = %s, want 96", result.Order.TaxTotal)
	}
	if !result.Order.GrandTotal.Equal(decimal.NewFromInt(646)) {
		t.Fatalf("grand = %s, want 646", result.Order.GrandTotal)
	}
}

func TestSettleNegativeOptionsClampedToZero(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	lager := seededProduct(t, repo, "SKU-LAGER-01")
	c := cart.New()
	if err := c.Add(lager, cart.PrefCold, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{
		TaxRate:  decimal.NewFromInt(-1),
		Discount: decimal.NewFromInt(-100),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.Order.TaxTotal.Equal(decimal.Zero) {
		t.Fatalf("tax = %s, want 0", result.Order.TaxTotal)
	}
	if !result.Order.Discount.Equal(decimal.Zero) {
		t.Fatalf("discount = %s, want 0", result.Order.Discount)
	}
	if !result.Order.GrandTotal.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("grand = %s, want subtotal 600", result.Order.GrandTotal)
	}
}

func TestSettleTotalsMatchItemSum(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo)
	ctx := context.Background()

	c := cart.New()
	for _, add := range []struct {
		sku  string
		pref string
		qty  int64
	}{
		{"SKU-LAGER-01", cart.PrefCold, 2},
		{"SKU-SODA-01", cart.PrefStandard, 3},
		{"SKU-SAMOSA-01", cart.PrefWarm, 4},
	} {
		p := seededProduct(t, repo, add.sku)
		if err := c.Add(p, add.pref, decimal.NewFromInt(add.qty)); err != nil {
			t.Fatalf("add %s: %v", add.sku, err)
		}
	}

	result, err := engine.Settle(ctx, c, domain.CurrencyKSH, seededCashierID, Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	sum := decimal.Zero
	for _, item := range result.Order.Items {
		if !item.LineTotal.Equal(item.UnitPrice.Mul(item.Quantity)) {
			t.Fatalf("line %s total %s != %s * %s", item.SKU, item.LineTotal, item.UnitPrice, item.Quantity)
		}
		sum = sum.Add(item.LineTotal)
	}
	if !result.Order.Subtotal.Equal(sum) {
		t.Fatalf("subtotal %s != item sum %s", result.Order.Subtotal, sum)
	}
	if len(result.Transaction.Items) != len(result.Order.Items) {
		t.Fatalf("transaction mirrors %d items, order has %d", len(result.Transaction.Items), len(result.Order.Items))
	}
}
