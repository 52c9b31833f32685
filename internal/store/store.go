package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/J-Enyeribe/TheChase/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMissingInventory  = errors.New("no inventory record")
	ErrInvalidState      = errors.New("invalid state")
)

// Settlement is the atomic unit the checkout writes: the order with its
// lines, the mirroring transaction, and one stock movement per decrement.
// Implementations persist all of it or none of it.
type Settlement struct {
	Order       domain.Order
	Transaction domain.Transaction
	Movements   []domain.StockMovement
}

type ReportPeriod struct {
	From time.Time
	To   time.Time
}

// SalesReport aggregates completed transactions for one currency.
type SalesReport struct {
	Currency         domain.Currency `json:"currency"`
	TransactionCount int             `json:"transaction_count"`
	GrossSales       decimal.Decimal `json:"gross_sales"`
	TaxCollected     decimal.Decimal `json:"tax_collected"`
	DiscountGiven    decimal.Decimal `json:"discount_given"`
	NetSales         decimal.Decimal `json:"net_sales"`
}

// ProductSales is one row of the top-products report: units sold and
// revenue for a SKU across completed transactions in one currency.
type ProductSales struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	QuantitySold decimal.Decimal `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type Repository interface {
	// Users.
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	FirstActiveByRole(ctx context.Context, role domain.UserRole) (*domain.User, error)

	// Catalog.
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// Inventory.
	GetInventory(ctx context.Context, sku string) (*domain.Inventory, error)
	ListInventory(ctx context.Context) ([]domain.Inventory, error)
	UpsertInventory(ctx context.Context, inv domain.Inventory) (*domain.Inventory, error)
	AdjustStock(ctx context.Context, sku string, delta decimal.Decimal, movement domain.StockMovement) (*domain.Inventory, error)
	ListMovements(ctx context.Context, sku string, limit int) ([]domain.StockMovement, error)

	// Settlement.
	CreateSettlement(ctx context.Context, settlement Settlement) (*Settlement, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, period ReportPeriod, limit int) ([]domain.Order, error)
	GetTransactionByReceipt(ctx context.Context, receiptNumber string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, period ReportPeriod, limit int) ([]domain.Transaction, error)
	VoidTransaction(ctx context.Context, receiptNumber string, byUserID int64, reason string, at time.Time) (*domain.Transaction, error)

	// Purchasing.
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByNumber(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error)
	SendPurchaseOrder(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, poNumber string, byUserID int64, at time.Time) (*domain.PurchaseOrder, error)

	// Reporting.
	SalesReport(ctx context.Context, currency domain.Currency, period ReportPeriod) (*SalesReport, error)
	TopProducts(ctx context.Context, currency domain.Currency, period ReportPeriod, limit int) ([]ProductSales, error)
	LowStock(ctx context.Context) ([]domain.Inventory, error)
}
