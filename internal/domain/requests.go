package domain

import "github.com/shopspring/decimal"

type ProductCreateRequest struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	CategoryID    int64           `json:"category_id"`
	SupplierID    int64           `json:"supplier_id"`
	UnitPriceKSH  decimal.Decimal `json:"unit_price_ksh"`
	UnitPriceUGX  decimal.Decimal `json:"unit_price_ugx"`
	CostPriceKSH  decimal.Decimal `json:"cost_price_ksh"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	Barcode       string          `json:"barcode"`
	InitialStock  decimal.Decimal `json:"initial_stock"`
	ReorderPoint  decimal.Decimal `json:"reorder_point"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	CategoryID   *int64           `json:"category_id"`
	SupplierID   *int64           `json:"supplier_id"`
	UnitPriceKSH *decimal.Decimal `json:"unit_price_ksh"`
	UnitPriceUGX *decimal.Decimal `json:"unit_price_ugx"`
	CostPriceKSH *decimal.Decimal `json:"cost_price_ksh"`
	Active       *bool            `json:"active"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SupplierCreateRequest struct {
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

type StockAdjustRequest struct {
	SKU    string          `json:"sku"`
	Change decimal.Decimal `json:"change"`
	Type   MovementType    `json:"movement_type"`
	Notes  string          `json:"notes"`
}

type CartAddRequest struct {
	SKU        string          `json:"sku"`
	Preference string          `json:"preference"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type CartPreferenceRequest struct {
	SKU  string `json:"sku"`
	From string `json:"from"`
	To   string `json:"to"`
}

type CartQuantityRequest struct {
	SKU        string          `json:"sku"`
	Preference string          `json:"preference"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type CartRemoveRequest struct {
	SKU        string `json:"sku"`
	Preference string `json:"preference"`
}

type CheckoutRequest struct {
	Currency  string          `json:"currency"`
	CashierID int64           `json:"cashier_id"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Discount  decimal.Decimal `json:"discount"`
}

type VoidTransactionRequest struct {
	ReceiptNumber string `json:"receipt_number"`
	Reason        string `json:"reason"`
}

type PurchaseOrderItemRequest struct {
	SKU             string          `json:"sku"`
	QuantityOrdered decimal.Decimal `json:"quantity_ordered"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID int64                      `json:"supplier_id"`
	Notes      string                     `json:"notes"`
	Items      []PurchaseOrderItemRequest `json:"items"`
}

type UserCreateRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}
