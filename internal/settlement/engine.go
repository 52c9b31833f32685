// Package settlement turns a cart into a persisted order, receipt and
// stock decrement in one atomic write.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/J-Enyeribe/TheChase/internal/cart"
	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/ref"
	"github.com/J-Enyeribe/TheChase/internal/store"
)

var (
	ErrEmptyCart          = errors.New("settlement: cart is empty")
	ErrNoCashierAvailable = errors.New("settlement: no cashier available")
)

// Options carry the adjustments applied on top of the cart subtotal.
// Zero values mean no tax and no discount.
type Options struct {
	TaxRate  decimal.Decimal
	Discount decimal.Decimal
}

// Result is what the caller gets back after a successful settlement.
type Result struct {
	Order       domain.Order       `json:"order"`
	Transaction domain.Transaction `json:"transaction"`
}

type Engine struct {
	repo store.Repository
	now  func() time.Time
}

func NewEngine(repo store.Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// resolveCashier validates an explicit cashier or falls back to the
// first active cashier-role account when none is named.
func (e *Engine) resolveCashier(ctx context.Context, cashierID int64) (*domain.User, error) {
	if cashierID != 0 {
		u, err := e.repo.GetUserByID(ctx, cashierID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNoCashierAvailable
			}
			return nil, err
		}
		if !u.Active {
			return nil, ErrNoCashierAvailable
		}
		return u, nil
	}
	u, err := e.repo.FirstActiveByRole(ctx, domain.RoleCashier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoCashierAvailable
		}
		return nil, err
	}
	return u, nil
}

// Settle writes the order, its mirroring transaction, and one stock
// movement per cart line, and decrements inventory, all in a single
// atomic unit. Counter sales are settled at the till, so the order is
// born cleared and the cashier stands in for all three lifecycle
// actors. On any failure nothing is persisted and the cart is left
// untouched; on success the cart is cleared.
func (e *Engine) Settle(ctx context.Context, c *cart.Cart, currency domain.Currency, cashierID int64, opts Options) (*Result, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	cashier, err := e.resolveCashier(ctx, cashierID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	subtotal := decimal.Zero
	orderItems := make([]domain.OrderItem, 0, len(lines))
	txItems := make([]domain.TransactionItem, 0, len(lines))
	for _, l := range lines {
		unit := l.UnitPrice(currency)
		lineTotal := unit.Mul(l.Quantity)
		subtotal = subtotal.Add(lineTotal)
		name := l.Name
		if l.Preference != cart.PrefStandard {
			name = fmt.Sprintf("%s (%s)", l.Name, l.Preference)
		}
		orderItems = append(orderItems, domain.OrderItem{
			SKU:       l.SKU,
			Name:      name,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
		txItems = append(txItems, domain.TransactionItem{
			SKU:       l.SKU,
			Name:      name,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
	}

	taxRate := opts.TaxRate
	if taxRate.Sign() < 0 {
		taxRate = decimal.Zero
	}
	taxTotal := subtotal.Mul(taxRate).Round(2)
	discount := opts.Discount
	if discount.Sign() < 0 {
		discount = decimal.Zero
	}
	grand := subtotal.Add(taxTotal).Sub(discount)
	if grand.Sign() < 0 {
		grand = decimal.Zero
	}

	orderNumber := ref.New(ref.PrefixOrder)
	receiptNumber := ref.New(ref.PrefixReceipt)

	order := domain.Order{
		OrderNumber: orderNumber,
		Currency:    currency,
		Status:      domain.OrderStatusCleared,
		PlacedAt:    now,
		PlacedByID:  cashier.ID,
		ServedAt:    now,
		ServedByID:  cashier.ID,
		ClearedAt:   now,
		ClearedByID: cashier.ID,
		Subtotal:    subtotal,
		TaxTotal:    taxTotal,
		Discount:    discount,
		GrandTotal:  grand,
		Items:       orderItems,
	}
	tx := domain.Transaction{
		ReceiptNumber: receiptNumber,
		CashierID:     cashier.ID,
		Currency:      currency,
		Status:        domain.TxStatusCompleted,
		Subtotal:      subtotal,
		TaxTotal:      taxTotal,
		Discount:      discount,
		GrandTotal:    grand,
		CreatedAt:     now,
		Items:         txItems,
	}

	// One movement per cart line. QuantityBefore/After are filled in by
	// the store inside the same transaction that takes the stock lock.
	movements := make([]domain.StockMovement, 0, len(lines))
	for _, l := range lines {
		movements = append(movements, domain.StockMovement{
			Reference:      ref.New(ref.PrefixMovement),
			SKU:            l.SKU,
			UserID:         cashier.ID,
			Type:           domain.MovementSale,
			QuantityChange: l.Quantity.Neg(),
			SourceRef:      orderNumber,
			CreatedAt:      now,
		})
	}

	saved, err := e.repo.CreateSettlement(ctx, store.Settlement{
		Order:       order,
		Transaction: tx,
		Movements:   movements,
	})
	if err != nil {
		return nil, err
	}

	c.Clear()
	return &Result{Order: saved.Order, Transaction: saved.Transaction}, nil
}
