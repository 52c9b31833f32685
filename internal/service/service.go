package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/J-Enyeribe/TheChase/internal/cache"
	"github.com/J-Enyeribe/TheChase/internal/cart"
	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/ref"
	"github.com/J-Enyeribe/TheChase/internal/settlement"
	"github.com/J-Enyeribe/TheChase/internal/store"
)

var ErrForbidden = errors.New("insufficient role")

// CartView is the cart as shown at the till: its lines plus running
// totals in both trading currencies.
type CartView struct {
	Lines    []cart.Line     `json:"lines"`
	TotalKSH decimal.Decimal `json:"total_ksh"`
	TotalUGX decimal.Decimal `json:"total_ugx"`
}

type Service struct {
	repo       store.Repository
	carts      *cart.Registry
	engine     *settlement.Engine
	catalog    cache.CatalogCache
	catalogTTL time.Duration
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = 30 * time.Second
	}
	return &Service{
		repo:       repo,
		carts:      cart.NewRegistry(),
		engine:     settlement.NewEngine(repo),
		catalog:    catalog,
		catalogTTL: catalogTTL,
	}
}

const (
	catalogKeyActive = "catalog:products:active"
	catalogKeyAll    = "catalog:products:all"
)

func requireRole(ctx context.Context, roles ...domain.UserRole) (domain.Actor, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: need one of %v", ErrForbidden, roles)
}

// Catalog.

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	key := catalogKeyAll
	if activeOnly {
		key = catalogKeyActive
	}
	if cached, hit, err := s.catalog.Get(ctx, key); err == nil && hit {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	}
	products, err := s.repo.ListProducts(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, key, products, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed: %v", err)
	}
	return products, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx, catalogKeyActive, catalogKeyAll); err != nil {
		log.Printf("[service] WARN: catalog cache invalidate failed: %v", err)
	}
}

func (s *Service) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	return s.repo.GetProductBySKU(ctx, strings.ToUpper(strings.TrimSpace(sku)))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return nil, store.ErrInvalidState
	}
	if req.UnitPriceKSH.Sign() < 0 || req.UnitPriceUGX.Sign() < 0 || req.InitialStock.Sign() < 0 {
		return nil, store.ErrInvalidState
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		SupplierID:    req.SupplierID,
		UnitPriceKSH:  req.UnitPriceKSH,
		UnitPriceUGX:  req.UnitPriceUGX,
		CostPriceKSH:  req.CostPriceKSH,
		UnitOfMeasure: req.UnitOfMeasure,
		Barcode:       req.Barcode,
		Active:        true,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.UpsertInventory(ctx, domain.Inventory{
		SKU:          created.SKU,
		ReorderPoint: req.ReorderPoint,
	}); err != nil {
		return nil, err
	}
	// Opening stock goes through a movement so the audit trail starts at zero.
	if req.InitialStock.Sign() > 0 {
		if _, err := s.repo.AdjustStock(ctx, created.SKU, req.InitialStock, domain.StockMovement{
			Reference: ref.New(ref.PrefixMovement),
			UserID:    actor.UserID,
			Type:      domain.MovementAdjustment,
			Notes:     "opening stock",
		}); err != nil {
			return nil, err
		}
		log.Printf("[service] product %s created with opening stock %s by user %d", created.SKU, req.InitialStock, actor.UserID)
	}
	s.invalidateCatalog(ctx)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidState
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.SupplierID != nil {
		updated.SupplierID = *req.SupplierID
	}
	if req.UnitPriceKSH != nil {
		if req.UnitPriceKSH.Sign() < 0 {
			return nil, store.ErrInvalidState
		}
		updated.UnitPriceKSH = *req.UnitPriceKSH
	}
	if req.UnitPriceUGX != nil {
		if req.UnitPriceUGX.Sign() < 0 {
			return nil, store.ErrInvalidState
		}
		updated.UnitPriceUGX = *req.UnitPriceUGX
	}
	if req.CostPriceKSH != nil {
		updated.CostPriceKSH = *req.CostPriceKSH
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog(ctx)
	return saved, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (*domain.Category, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, store.ErrInvalidState
	}
	return s.repo.CreateCategory(ctx, domain.Category{Name: req.Name, Description: req.Description})
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, store.ErrInvalidState
	}
	return s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:        req.Name,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Email:       req.Email,
	})
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// Inventory.

func (s *Service) ListInventory(ctx context.Context) ([]domain.Inventory, error) {
	return s.repo.ListInventory(ctx)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (*domain.Inventory, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.SKU == "" || req.Change.IsZero() {
		return nil, store.ErrInvalidState
	}
	movementType := req.Type
	if movementType == "" {
		movementType = domain.MovementAdjustment
	}
	return s.repo.AdjustStock(ctx, req.SKU, req.Change, domain.StockMovement{
		Reference: ref.New(ref.PrefixMovement),
		UserID:    actor.UserID,
		Type:      movementType,
		Notes:     req.Notes,
	})
}

func (s *Service) ListMovements(ctx context.Context, sku string, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, strings.ToUpper(strings.TrimSpace(sku)), limit)
}

func (s *Service) LowStock(ctx context.Context) ([]domain.Inventory, error) {
	return s.repo.LowStock(ctx)
}

// Cart operations act on the calling user's own cart.

func (s *Service) ViewCart(ctx context.Context) (*CartView, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	c := s.carts.For(actor.UserID)
	return &CartView{
		Lines:    c.Lines(),
		TotalKSH: c.Total(domain.CurrencyKSH),
		TotalUGX: c.Total(domain.CurrencyUGX),
	}, nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.CartAddRequest) (*CartView, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %s is inactive", store.ErrInvalidState, sku)
	}
	if err := s.carts.For(actor.UserID).Add(*product, req.Preference, req.Quantity); err != nil {
		return nil, err
	}
	return s.ViewCart(ctx)
}

func (s *Service) SetCartPreference(ctx context.Context, req domain.CartPreferenceRequest) (*CartView, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if err := s.carts.For(actor.UserID).SetPreference(sku, req.From, req.To); err != nil {
		return nil, err
	}
	return s.ViewCart(ctx)
}

func (s *Service) SetCartQuantity(ctx context.Context, req domain.CartQuantityRequest) (*CartView, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if err := s.carts.For(actor.UserID).SetQuantity(sku, req.Preference, req.Quantity); err != nil {
		return nil, err
	}
	return s.ViewCart(ctx)
}

func (s *Service) RemoveFromCart(ctx context.Context, req domain.CartRemoveRequest) (*CartView, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if err := s.carts.For(actor.UserID).Remove(sku, req.Preference); err != nil {
		return nil, err
	}
	return s.ViewCart(ctx)
}

func (s *Service) ClearCart(ctx context.Context) error {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	s.carts.For(actor.UserID).Clear()
	return nil
}

// Checkout settles the caller's cart. The cashier on the receipt
// defaults to the caller when the request names nobody.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*settlement.Result, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidState, err)
	}
	cashierID := req.CashierID
	if cashierID == 0 && actor.Role == domain.RoleCashier {
		cashierID = actor.UserID
	}
	result, err := s.engine.Settle(ctx, s.carts.For(actor.UserID), currency, cashierID, settlement.Options{
		TaxRate:  req.TaxRate,
		Discount: req.Discount,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog(ctx)
	log.Printf("[service] settled order %s receipt %s total %s %s", result.Order.OrderNumber, result.Transaction.ReceiptNumber, result.Order.GrandTotal, result.Order.Currency)
	return result, nil
}

// Orders and receipts.

func (s *Service) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.repo.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(orderNumber)))
}

func (s *Service) ListOrders(ctx context.Context, period store.ReportPeriod, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, period, limit)
}

func (s *Service) GetReceipt(ctx context.Context, receiptNumber string) (*domain.Transaction, error) {
	return s.repo.GetTransactionByReceipt(ctx, strings.ToUpper(strings.TrimSpace(receiptNumber)))
}

func (s *Service) ListTransactions(ctx context.Context, period store.ReportPeriod, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListTransactions(ctx, period, limit)
}

// VoidTransaction restocks every line of a completed receipt and marks
// it voided. Manager or admin only.
func (s *Service) VoidTransaction(ctx context.Context, req domain.VoidTransactionRequest) (*domain.Transaction, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	receipt := strings.ToUpper(strings.TrimSpace(req.ReceiptNumber))
	if receipt == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, store.ErrInvalidState
	}
	voided, err := s.repo.VoidTransaction(ctx, receipt, actor.UserID, req.Reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	log.Printf("[service] voided receipt %s by user %d: %s", receipt, actor.UserID, req.Reason)
	return voided, nil
}

// Purchasing.

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (*domain.PurchaseOrder, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	if req.SupplierID == 0 || len(req.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" || item.QuantityOrdered.Sign() <= 0 || item.UnitCost.Sign() < 0 {
			return nil, store.ErrInvalidState
		}
		items = append(items, domain.PurchaseOrderItem{
			SKU:             sku,
			QuantityOrdered: item.QuantityOrdered,
			UnitCost:        item.UnitCost,
		})
	}
	return s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: req.SupplierID,
		Status:     domain.POStatusDraft,
		Notes:      req.Notes,
		Items:      items,
	})
}

func (s *Service) GetPurchaseOrder(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	return s.repo.GetPurchaseOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(poNumber)))
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListPurchaseOrders(ctx, domain.PurchaseOrderStatus(status), limit)
}

func (s *Service) SendPurchaseOrder(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.SendPurchaseOrder(ctx, strings.ToUpper(strings.TrimSpace(poNumber)))
}

func (s *Service) ReceivePurchaseOrder(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	return s.repo.ReceivePurchaseOrder(ctx, strings.ToUpper(strings.TrimSpace(poNumber)), actor.UserID, time.Now().UTC())
}

// Staff.

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (*domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		return nil, store.ErrInvalidState
	}
	role := domain.UserRole(req.Role)
	switch role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier, domain.RoleWaiter:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalidState, req.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, domain.User{
		FullName: strings.TrimSpace(req.FullName),
		Email:    req.Email,
		Password: string(hash),
		Role:     role,
		Active:   true,
	})
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (*domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *existing
	if req.FullName != nil {
		updated.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			return nil, store.ErrInvalidState
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		updated.Password = string(hash)
	}
	if req.Role != nil {
		role := domain.UserRole(*req.Role)
		switch role {
		case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier, domain.RoleWaiter:
		default:
			return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalidState, *req.Role)
		}
		updated.Role = role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	return s.repo.UpdateUser(ctx, updated)
}

// Reporting.

func (s *Service) SalesReport(ctx context.Context, rawCurrency string, period store.ReportPeriod) (*store.SalesReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	currency, err := domain.ParseCurrency(rawCurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidState, err)
	}
	return s.repo.SalesReport(ctx, currency, period)
}

func (s *Service) TopProducts(ctx context.Context, rawCurrency string, period store.ReportPeriod, limit int) ([]store.ProductSales, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	currency, err := domain.ParseCurrency(rawCurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidState, err)
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.repo.TopProducts(ctx, currency, period, limit)
}
