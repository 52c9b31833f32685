package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a closed enumeration. The deployment trades in exactly two
// currencies; product prices are listed independently per currency and are
// never derived from one another by an exchange rate.
type Currency string

const (
	CurrencyKSH Currency = "KSH"
	CurrencyUGX Currency = "UGX"
)

// ParseCurrency normalizes user/API input to a canonical Currency value.
// "KES" is accepted as a legacy alias of KSH and is never stored.
func ParseCurrency(raw string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "KSH", "KES":
		return CurrencyKSH, nil
	case "UGX":
		return CurrencyUGX, nil
	}
	return "", fmt.Errorf("unsupported currency %q", raw)
}

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleCashier UserRole = "cashier"
	RoleWaiter  UserRole = "waiter"
)

type OrderStatus string

const (
	OrderStatusPlaced  OrderStatus = "placed"
	OrderStatusServed  OrderStatus = "served"
	OrderStatusCleared OrderStatus = "cleared"
)

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusVoided    TransactionStatus = "voided"
	TxStatusRefunded  TransactionStatus = "refunded"
)

type MovementType string

const (
	MovementSale        MovementType = "sale"
	MovementPurchase    MovementType = "purchase"
	MovementAdjustment  MovementType = "adjustment"
	MovementReturnIn    MovementType = "return_in"
	MovementVoidRestock MovementType = "void_restock"
)

type PurchaseOrderStatus string

const (
	POStatusDraft    PurchaseOrderStatus = "draft"
	POStatusSent     PurchaseOrderStatus = "sent"
	POStatusReceived PurchaseOrderStatus = "received"
)

type User struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      UserRole  `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Supplier struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product carries one independent list price per currency. Both are
// snapshotted into cart lines at add time; settlement never re-reads them.
type Product struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	CategoryID    int64           `json:"category_id,omitempty"`
	SupplierID    int64           `json:"supplier_id,omitempty"`
	UnitPriceKSH  decimal.Decimal `json:"unit_price_ksh"`
	UnitPriceUGX  decimal.Decimal `json:"unit_price_ugx"`
	CostPriceKSH  decimal.Decimal `json:"cost_price_ksh"`
	UnitOfMeasure string          `json:"unit_of_measure,omitempty"`
	Barcode       string          `json:"barcode,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// UnitPrice returns the list price for the given currency.
func (p Product) UnitPrice(currency Currency) decimal.Decimal {
	if currency == CurrencyUGX {
		return p.UnitPriceUGX
	}
	return p.UnitPriceKSH
}

// Inventory is one-to-one with Product. Quantities are fixed-point with
// three decimal places so weighed goods can carry fractional units.
type Inventory struct {
	SKU             string          `json:"sku"`
	QuantityOnHand  decimal.Decimal `json:"quantity_on_hand"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	Location        string          `json:"location,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Order struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	Currency    Currency        `json:"currency"`
	Status      OrderStatus     `json:"status"`
	PlacedAt    time.Time       `json:"placed_at"`
	PlacedByID  int64           `json:"placed_by_id"`
	ServedAt    time.Time       `json:"served_at"`
	ServedByID  int64           `json:"served_by_id"`
	ClearedAt   time.Time       `json:"cleared_at"`
	ClearedByID int64           `json:"cleared_by_id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	Discount    decimal.Decimal `json:"discount_total"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Items       []OrderItem     `json:"items,omitempty"`
}

// OrderItem snapshots product, quantity and unit price as of settlement
// time; it is never recomputed from the live Product afterwards.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Transaction struct {
	ID            int64             `json:"id"`
	ReceiptNumber string            `json:"receipt_number"`
	OrderID       int64             `json:"order_id"`
	CashierID     int64             `json:"cashier_id"`
	Currency      Currency          `json:"currency"`
	Status        TransactionStatus `json:"status"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	TaxTotal      decimal.Decimal   `json:"tax_total"`
	Discount      decimal.Decimal   `json:"discount_total"`
	GrandTotal    decimal.Decimal   `json:"grand_total"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []TransactionItem `json:"items,omitempty"`
}

// TransactionItem is an independent copy of the order line so later voids
// or refunds never have to mutate the original Order.
type TransactionItem struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// StockMovement is the immutable audit row written for every inventory
// change. QuantityBefore/After make each decrement traceable to the
// causing order or purchase-order reference.
type StockMovement struct {
	ID             int64           `json:"id"`
	Reference      string          `json:"reference"`
	SKU            string          `json:"sku"`
	UserID         int64           `json:"user_id,omitempty"`
	Type           MovementType    `json:"movement_type"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	SourceRef      string          `json:"source_ref,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type PurchaseOrder struct {
	ID           int64               `json:"id"`
	PONumber     string              `json:"po_number"`
	SupplierID   int64               `json:"supplier_id"`
	Status       PurchaseOrderStatus `json:"status"`
	TotalCost    decimal.Decimal     `json:"total_cost"`
	Notes        string              `json:"notes,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ReceivedAt   time.Time           `json:"received_at,omitempty"`
	ReceivedByID int64               `json:"received_by_id,omitempty"`
	Items        []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	SKU              string          `json:"sku"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

// Actor identifies the authenticated staff member on a request context.
type Actor struct {
	UserID int64
	Email  string
	Role   UserRole
}
