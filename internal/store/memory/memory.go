// Package memory is the in-process Repository used for dev mode and
// tests. It mirrors the postgres store's semantics, including the
// all-or-nothing settlement write.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/ref"
	"github.com/J-Enyeribe/TheChase/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	nextID         int64
	usersByID      map[int64]domain.User
	categoriesByID map[int64]domain.Category
	suppliersByID  map[int64]domain.Supplier
	productsBySKU  map[string]domain.Product
	inventoryBySKU map[string]domain.Inventory
	ordersByNumber map[string]domain.Order
	txByReceipt    map[string]domain.Transaction
	movements      []domain.StockMovement
	posByNumber    map[string]domain.PurchaseOrder
}

func New() *Store {
	return &Store{
		nextID:         1,
		usersByID:      make(map[int64]domain.User),
		categoriesByID: make(map[int64]domain.Category),
		suppliersByID:  make(map[int64]domain.Supplier),
		productsBySKU:  make(map[string]domain.Product),
		inventoryBySKU: make(map[string]domain.Inventory),
		ordersByNumber: make(map[string]domain.Order),
		txByReceipt:    make(map[string]domain.Transaction),
		movements:      make([]domain.StockMovement, 0, 128),
		posByNumber:    make(map[string]domain.PurchaseOrder),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small bar catalog, stock,
// and staff accounts for dev/demo mode. Seed passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults
// are used with a warning when unset.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	for _, u := range []struct {
		name     string
		email    string
		password string
		role     domain.UserRole
	}{
		{"Site Admin", "admin@thechase.local", adminPwd, domain.RoleAdmin},
		{"Till One", "cashier@thechase.local", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		s.usersByID[s.nextID] = domain.User{
			ID:        s.nextID,
			FullName:  u.name,
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
		s.nextID++
	}

	drinks := domain.Category{ID: s.nextID, Name: "Drinks", CreatedAt: now}
	s.categoriesByID[drinks.ID] = drinks
	s.nextID++
	food := domain.Category{ID: s.nextID, Name: "Food", CreatedAt: now}
	s.categoriesByID[food.ID] = food
	s.nextID++

	supplier := domain.Supplier{ID: s.nextID, Name: "Lakeview Distributors", Active: true, CreatedAt: now}
	s.suppliersByID[supplier.ID] = supplier
	s.nextID++

	products := []domain.Product{
		{SKU: "SKU-LAGER-01", Name: "Lager 500ml", CategoryID: drinks.ID, SupplierID: supplier.ID, UnitPriceKSH: decimal.NewFromInt(300), UnitPriceUGX: decimal.NewFromInt(9000), CostPriceKSH: decimal.NewFromInt(210), UnitOfMeasure: "bottle", Active: true, CreatedAt: now},
		{SKU: "SKU-STOUT-01", Name: "Stout 500ml", CategoryID: drinks.ID, SupplierID: supplier.ID, UnitPriceKSH: decimal.NewFromInt(350), UnitPriceUGX: decimal.NewFromInt(10500), CostPriceKSH: decimal.NewFromInt(245), UnitOfMeasure: "bottle", Active: true, CreatedAt: now},
		{SKU: "SKU-SODA-01", Name: "Soda 300ml", CategoryID: drinks.ID, SupplierID: supplier.ID, UnitPriceKSH: decimal.NewFromInt(80), UnitPriceUGX: decimal.NewFromInt(2500), CostPriceKSH: decimal.NewFromInt(45), UnitOfMeasure: "bottle", Active: true, CreatedAt: now},
		{SKU: "SKU-WATER-01", Name: "Still Water 500ml", CategoryID: drinks.ID, SupplierID: supplier.ID, UnitPriceKSH: decimal.NewFromInt(60), UnitPriceUGX: decimal.NewFromInt(2000), CostPriceKSH: decimal.NewFromInt(30), UnitOfMeasure: "bottle", Active: true, CreatedAt: now},
		{SKU: "SKU-NUTS-01", Name: "Roast Nuts (kg)", CategoryID: food.ID, SupplierID: supplier.ID, UnitPriceKSH: decimal.NewFromInt(1200), UnitPriceUGX: decimal.NewFromInt(36000), CostPriceKSH: decimal.NewFromInt(800), UnitOfMeasure: "kg", Active: true, CreatedAt: now},
		{SKU: "SKU-SAMOSA-01", Name: "Beef Samosa", CategoryID: food.ID, SupplierID: supplier.ID, UnitPriceKSH: decimal.NewFromInt(100), UnitPriceUGX: decimal.NewFromInt(3000), CostPriceKSH: decimal.NewFromInt(60), UnitOfMeasure: "piece", Active: true, CreatedAt: now},
	}
	for _, p := range products {
		s.productsBySKU[p.SKU] = p
		s.inventoryBySKU[p.SKU] = domain.Inventory{
			SKU:             p.SKU,
			QuantityOnHand:  decimal.NewFromInt(100),
			ReorderPoint:    decimal.NewFromInt(20),
			ReorderQuantity: decimal.NewFromInt(60),
			Location:        "main-bar",
			UpdatedAt:       now,
		}
	}
	return s
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

// Users.

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Email == "" || user.Password == "" {
		return nil, store.ErrInvalidState
	}
	for _, u := range s.usersByID {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, store.ErrConflict
		}
	}
	user.ID = s.allocID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByID {
		if strings.EqualFold(u.Email, email) {
			copyUser := u
			return &copyUser, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyUser := u
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return int(a.ID - b.ID)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if user.Password == "" {
		user.Password = existing.Password
	}
	user.CreatedAt = existing.CreatedAt
	s.usersByID[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) FirstActiveByRole(_ context.Context, role domain.UserRole) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.User
	for _, u := range s.usersByID {
		if u.Role != role || !u.Active {
			continue
		}
		if found == nil || u.ID < found.ID {
			copyUser := u
			found = &copyUser
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

// Catalog.

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidState
	}
	for _, c := range s.categoriesByID {
		if strings.EqualFold(c.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	category.ID = s.allocID()
	category.CreatedAt = time.Now().UTC()
	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidState
	}
	supplier.ID = s.allocID()
	supplier.Active = true
	supplier.CreatedAt = time.Now().UTC()
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidState
	}
	if product.UnitPriceKSH.Sign() < 0 || product.UnitPriceUGX.Sign() < 0 {
		return nil, store.ErrInvalidState
	}
	if _, exists := s.productsBySKU[product.SKU]; exists {
		return nil, store.ErrConflict
	}
	product.Active = true
	product.CreatedAt = time.Now().UTC()
	s.productsBySKU[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsBySKU[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsBySKU))
	for _, p := range s.productsBySKU {
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsBySKU[product.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.UnitPriceKSH.Sign() < 0 || product.UnitPriceUGX.Sign() < 0 {
		return nil, store.ErrInvalidState
	}
	product.CreatedAt = existing.CreatedAt
	s.productsBySKU[product.SKU] = product
	updated := product
	return &updated, nil
}

// Inventory.

func (s *Store) GetInventory(_ context.Context, sku string) (*domain.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.inventoryBySKU[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyInv := inv
	return &copyInv, nil
}

func (s *Store) ListInventory(_ context.Context) ([]domain.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Inventory, 0, len(s.inventoryBySKU))
	for _, inv := range s.inventoryBySKU {
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b domain.Inventory) int {
		return cmpString(a.SKU, b.SKU)
	})
	return out, nil
}

func (s *Store) UpsertInventory(_ context.Context, inv domain.Inventory) (*domain.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.SKU == "" || inv.QuantityOnHand.Sign() < 0 {
		return nil, store.ErrInvalidState
	}
	if _, exists := s.productsBySKU[inv.SKU]; !exists {
		return nil, store.ErrNotFound
	}
	inv.UpdatedAt = time.Now().UTC()
	s.inventoryBySKU[inv.SKU] = inv
	updated := inv
	return &updated, nil
}

// applyMovement mutates stock and appends the audit row. Caller holds
// the write lock.
func (s *Store) applyMovement(sku string, delta decimal.Decimal, movement domain.StockMovement) (*domain.Inventory, error) {
	inv, ok := s.inventoryBySKU[sku]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrMissingInventory, sku)
	}
	after := inv.QuantityOnHand.Add(delta)
	if after.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s has %s, change %s", store.ErrInsufficientStock, sku, inv.QuantityOnHand, delta)
	}
	movement.ID = s.allocID()
	movement.SKU = sku
	movement.QuantityChange = delta
	movement.QuantityBefore = inv.QuantityOnHand
	movement.QuantityAfter = after
	if movement.Reference == "" {
		movement.Reference = ref.New(ref.PrefixMovement)
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	inv.QuantityOnHand = after
	inv.UpdatedAt = movement.CreatedAt
	s.inventoryBySKU[sku] = inv
	s.movements = append(s.movements, movement)
	copyInv := inv
	return &copyInv, nil
}

func (s *Store) AdjustStock(_ context.Context, sku string, delta decimal.Decimal, movement domain.StockMovement) (*domain.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMovement(sku, delta, movement)
}

func (s *Store) ListMovements(_ context.Context, sku string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0; i-- {
		if sku != "" && s.movements[i].SKU != sku {
			continue
		}
		result = append(result, s.movements[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Settlement.

func (s *Store) CreateSettlement(_ context.Context, settlement store.Settlement) (*store.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(settlement.Order.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	if _, exists := s.ordersByNumber[settlement.Order.OrderNumber]; exists {
		return nil, store.ErrConflict
	}
	if _, exists := s.txByReceipt[settlement.Transaction.ReceiptNumber]; exists {
		return nil, store.ErrConflict
	}

	// Validate every decrement before touching anything so a failed
	// line leaves stock, orders and receipts untouched.
	after := make(map[string]decimal.Decimal, len(settlement.Movements))
	for _, m := range settlement.Movements {
		inv, ok := s.inventoryBySKU[m.SKU]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrMissingInventory, m.SKU)
		}
		base, seen := after[m.SKU]
		if !seen {
			base = inv.QuantityOnHand
		}
		next := base.Add(m.QuantityChange)
		if next.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s has %s, change %s", store.ErrInsufficientStock, m.SKU, base, m.QuantityChange)
		}
		after[m.SKU] = next
	}

	order := settlement.Order
	order.ID = s.allocID()
	for i := range order.Items {
		order.Items[i].ID = s.allocID()
		order.Items[i].OrderID = order.ID
	}

	tx := settlement.Transaction
	tx.ID = s.allocID()
	tx.OrderID = order.ID
	for i := range tx.Items {
		tx.Items[i].ID = s.allocID()
		tx.Items[i].TransactionID = tx.ID
	}

	movements := make([]domain.StockMovement, 0, len(settlement.Movements))
	for _, m := range settlement.Movements {
		if _, err := s.applyMovement(m.SKU, m.QuantityChange, m); err != nil {
			// Unreachable after the validation pass above.
			return nil, err
		}
		movements = append(movements, s.movements[len(s.movements)-1])
	}

	s.ordersByNumber[order.OrderNumber] = order
	s.txByReceipt[tx.ReceiptNumber] = tx

	return &store.Settlement{Order: order, Transaction: tx, Movements: movements}, nil
}

func (s *Store) GetOrderByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByNumber[orderNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyOrder := order
	copyOrder.Items = slices.Clone(order.Items)
	return &copyOrder, nil
}

func (s *Store) ListOrders(_ context.Context, period store.ReportPeriod, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ordersByNumber))
	for _, o := range s.ordersByNumber {
		if !inPeriod(o.PlacedAt, period) {
			continue
		}
		orders = append(orders, o)
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.PlacedAt.Equal(b.PlacedAt) {
			return int(b.ID - a.ID)
		}
		if a.PlacedAt.After(b.PlacedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) GetTransactionByReceipt(_ context.Context, receiptNumber string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txByReceipt[receiptNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyTx := tx
	copyTx.Items = slices.Clone(tx.Items)
	return &copyTx, nil
}

func (s *Store) ListTransactions(_ context.Context, period store.ReportPeriod, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.txByReceipt))
	for _, tx := range s.txByReceipt {
		if !inPeriod(tx.CreatedAt, period) {
			continue
		}
		txs = append(txs, tx)
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return int(b.ID - a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) VoidTransaction(_ context.Context, receiptNumber string, byUserID int64, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txByReceipt[receiptNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: transaction is %s", store.ErrInvalidState, tx.Status)
	}

	for _, item := range tx.Items {
		if _, exists := s.inventoryBySKU[item.SKU]; !exists {
			return nil, fmt.Errorf("%w: %s", store.ErrMissingInventory, item.SKU)
		}
	}
	for _, item := range tx.Items {
		if _, err := s.applyMovement(item.SKU, item.Quantity, domain.StockMovement{
			UserID:    byUserID,
			Type:      domain.MovementVoidRestock,
			SourceRef: receiptNumber,
			Notes:     reason,
			CreatedAt: at,
		}); err != nil {
			return nil, err
		}
	}

	tx.Status = domain.TxStatusVoided
	s.txByReceipt[receiptNumber] = tx
	copyTx := tx
	copyTx.Items = slices.Clone(tx.Items)
	return &copyTx, nil
}

// Purchasing.

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == 0 || len(po.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	if _, exists := s.suppliersByID[po.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, item := range po.Items {
		if _, exists := s.productsBySKU[item.SKU]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.SKU)
		}
		if item.QuantityOrdered.Sign() <= 0 {
			return nil, store.ErrInvalidState
		}
	}

	po.ID = s.allocID()
	if po.PONumber == "" {
		po.PONumber = ref.New(ref.PrefixPurchase)
	}
	if po.Status == "" {
		po.Status = domain.POStatusDraft
	}
	po.CreatedAt = time.Now().UTC()
	total := decimal.Zero
	for i := range po.Items {
		po.Items[i].ID = s.allocID()
		po.Items[i].PurchaseOrderID = po.ID
		po.Items[i].LineTotal = po.Items[i].UnitCost.Mul(po.Items[i].QuantityOrdered)
		total = total.Add(po.Items[i].LineTotal)
	}
	po.TotalCost = total
	s.posByNumber[po.PONumber] = po
	created := po
	created.Items = slices.Clone(po.Items)
	return &created, nil
}

func (s *Store) GetPurchaseOrderByNumber(_ context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.posByNumber[poNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyPO := po
	copyPO.Items = slices.Clone(po.Items)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PurchaseOrder, 0, len(s.posByNumber))
	for _, po := range s.posByNumber {
		if status != "" && po.Status != status {
			continue
		}
		out = append(out, po)
	}
	slices.SortFunc(out, func(a, b domain.PurchaseOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return int(b.ID - a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SendPurchaseOrder(_ context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.posByNumber[poNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusDraft {
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidState, po.Status)
	}
	po.Status = domain.POStatusSent
	s.posByNumber[poNumber] = po
	copyPO := po
	copyPO.Items = slices.Clone(po.Items)
	return &copyPO, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, poNumber string, byUserID int64, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.posByNumber[poNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status == domain.POStatusReceived {
		return nil, fmt.Errorf("%w: already received", store.ErrInvalidState)
	}

	for i := range po.Items {
		item := po.Items[i]
		inv, exists := s.inventoryBySKU[item.SKU]
		if !exists {
			inv = domain.Inventory{SKU: item.SKU}
			s.inventoryBySKU[item.SKU] = inv
		}
		if _, err := s.applyMovement(item.SKU, item.QuantityOrdered, domain.StockMovement{
			UserID:    byUserID,
			Type:      domain.MovementPurchase,
			SourceRef: po.PONumber,
			CreatedAt: at,
		}); err != nil {
			return nil, err
		}
		po.Items[i].QuantityReceived = item.QuantityOrdered
	}

	po.Status = domain.POStatusReceived
	po.ReceivedAt = at
	po.ReceivedByID = byUserID
	s.posByNumber[poNumber] = po
	copyPO := po
	copyPO.Items = slices.Clone(po.Items)
	return &copyPO, nil
}

// Reporting.

func inPeriod(t time.Time, p store.ReportPeriod) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

func (s *Store) SalesReport(_ context.Context, currency domain.Currency, period store.ReportPeriod) (*store.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := store.SalesReport{
		Currency:      currency,
		GrossSales:    decimal.Zero,
		TaxCollected:  decimal.Zero,
		DiscountGiven: decimal.Zero,
		NetSales:      decimal.Zero,
	}
	for _, tx := range s.txByReceipt {
		if tx.Currency != currency || tx.Status != domain.TxStatusCompleted {
			continue
		}
		if !inPeriod(tx.CreatedAt, period) {
			continue
		}
		report.TransactionCount++
		report.GrossSales = report.GrossSales.Add(tx.Subtotal)
		report.TaxCollected = report.TaxCollected.Add(tx.TaxTotal)
		report.DiscountGiven = report.DiscountGiven.Add(tx.Discount)
		report.NetSales = report.NetSales.Add(tx.GrandTotal)
	}
	return &report, nil
}

func (s *Store) TopProducts(_ context.Context, currency domain.Currency, period store.ReportPeriod, limit int) ([]store.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySKU := make(map[string]*store.ProductSales)
	for _, tx := range s.txByReceipt {
		if tx.Currency != currency || tx.Status != domain.TxStatusCompleted {
			continue
		}
		if !inPeriod(tx.CreatedAt, period) {
			continue
		}
		for _, item := range tx.Items {
			row, ok := bySKU[item.SKU]
			if !ok {
				row = &store.ProductSales{
					SKU:          item.SKU,
					Name:         item.Name,
					QuantitySold: decimal.Zero,
					Revenue:      decimal.Zero,
				}
				bySKU[item.SKU] = row
			}
			row.QuantitySold = row.QuantitySold.Add(item.Quantity)
			row.Revenue = row.Revenue.Add(item.LineTotal)
		}
	}

	out := make([]store.ProductSales, 0, len(bySKU))
	for _, row := range bySKU {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b store.ProductSales) int {
		if c := b.QuantitySold.Cmp(a.QuantitySold); c != 0 {
			return c
		}
		return cmpString(a.SKU, b.SKU)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LowStock(_ context.Context) ([]domain.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Inventory, 0)
	for _, inv := range s.inventoryBySKU {
		if inv.QuantityOnHand.Cmp(inv.ReorderPoint) <= 0 {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b domain.Inventory) int {
		return cmpString(a.SKU, b.SKU)
	})
	return out, nil
}
