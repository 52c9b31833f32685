package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/ref"
	"github.com/J-Enyeribe/TheChase/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Users.

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Email == "" || user.Password == "" {
		return nil, store.ErrInvalidState
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (full_name, email, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id, created_at
	`, user.FullName, user.Email, user.Password, user.Role, user.Active).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, role, active, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, role, active, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, email, password_hash, role, active, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET full_name = $2, password_hash = $3, role = $4, active = $5
		WHERE id = $1
	`, user.ID, user.FullName, user.Password, user.Role, user.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *Store) FirstActiveByRole(ctx context.Context, role domain.UserRole) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, role, active, created_at
		FROM users
		WHERE role = $1 AND active = true
		ORDER BY id
		LIMIT 1
	`, role))
}

// Catalog.

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidState
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, created_at)
		VALUES ($1,$2,now())
		RETURNING id, created_at
	`, category.Name, category.Description).Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidState
	}
	supplier.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact_name, phone, email, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id, created_at
	`, supplier.Name, supplier.ContactName, supplier.Phone, supplier.Email, supplier.Active).Scan(&supplier.ID, &supplier.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_name, phone, email, active, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.ContactName, &sup.Phone, &sup.Email, &sup.Active, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

const productColumns = `sku, name, description, category_id, supplier_id,
	unit_price_ksh, unit_price_ugx, cost_price_ksh, unit_of_measure, barcode, active, created_at`

func scanProduct(scanner interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var categoryID, supplierID sql.NullInt64
	err := scanner.Scan(&p.SKU, &p.Name, &p.Description, &categoryID, &supplierID,
		&p.UnitPriceKSH, &p.UnitPriceUGX, &p.CostPriceKSH, &p.UnitOfMeasure, &p.Barcode, &p.Active, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CategoryID = categoryID.Int64
	p.SupplierID = supplierID.Int64
	return p, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidState
	}
	if product.UnitPriceKSH.Sign() < 0 || product.UnitPriceUGX.Sign() < 0 {
		return nil, store.ErrInvalidState
	}
	product.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, description, category_id, supplier_id,
			unit_price_ksh, unit_price_ugx, cost_price_ksh, unit_of_measure, barcode, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		RETURNING created_at
	`, product.SKU, product.Name, product.Description, nullableID(product.CategoryID), nullableID(product.SupplierID),
		product.UnitPriceKSH, product.UnitPriceUGX, product.CostPriceKSH, product.UnitOfMeasure, product.Barcode, product.Active).Scan(&product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1
	`, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY name`
	if activeOnly {
		query = `SELECT ` + productColumns + ` FROM products WHERE active = true ORDER BY name`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.UnitPriceKSH.Sign() < 0 || product.UnitPriceUGX.Sign() < 0 {
		return nil, store.ErrInvalidState
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category_id = $4, supplier_id = $5,
			unit_price_ksh = $6, unit_price_ugx = $7, cost_price_ksh = $8,
			unit_of_measure = $9, barcode = $10, active = $11
		WHERE sku = $1
	`, product.SKU, product.Name, product.Description, nullableID(product.CategoryID), nullableID(product.SupplierID),
		product.UnitPriceKSH, product.UnitPriceUGX, product.CostPriceKSH, product.UnitOfMeasure, product.Barcode, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductBySKU(ctx, product.SKU)
}

// Inventory.

func (s *Store) GetInventory(ctx context.Context, sku string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, quantity_on_hand, reorder_point, reorder_quantity, location, updated_at
		FROM inventory
		WHERE sku = $1
	`, sku).Scan(&inv.SKU, &inv.QuantityOnHand, &inv.ReorderPoint, &inv.ReorderQuantity, &inv.Location, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.Inventory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, quantity_on_hand, reorder_point, reorder_quantity, location, updated_at
		FROM inventory
		ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Inventory, 0, 64)
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.SKU, &inv.QuantityOnHand, &inv.ReorderPoint, &inv.ReorderQuantity, &inv.Location, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) UpsertInventory(ctx context.Context, inv domain.Inventory) (*domain.Inventory, error) {
	if inv.SKU == "" || inv.QuantityOnHand.Sign() < 0 {
		return nil, store.ErrInvalidState
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory (sku, quantity_on_hand, reorder_point, reorder_quantity, location, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (sku) DO UPDATE
		SET quantity_on_hand = EXCLUDED.quantity_on_hand,
			reorder_point = EXCLUDED.reorder_point,
			reorder_quantity = EXCLUDED.reorder_quantity,
			location = EXCLUDED.location,
			updated_at = now()
		RETURNING updated_at
	`, inv.SKU, inv.QuantityOnHand, inv.ReorderPoint, inv.ReorderQuantity, inv.Location).Scan(&inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// applyMovementTx locks the inventory row, applies the delta, and writes
// the audit row. Callers own the enclosing transaction. The returned
// movement carries the persisted ID, reference and before/after quantities.
func applyMovementTx(ctx context.Context, tx *sql.Tx, sku string, delta decimal.Decimal, movement domain.StockMovement) (*domain.Inventory, *domain.StockMovement, error) {
	var inv domain.Inventory
	err := tx.QueryRowContext(ctx, `
		SELECT sku, quantity_on_hand, reorder_point, reorder_quantity, location, updated_at
		FROM inventory
		WHERE sku = $1
		FOR UPDATE
	`, sku).Scan(&inv.SKU, &inv.QuantityOnHand, &inv.ReorderPoint, &inv.ReorderQuantity, &inv.Location, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrMissingInventory, sku)
	}
	if err != nil {
		return nil, nil, err
	}

	after := inv.QuantityOnHand.Add(delta)
	if after.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: %s has %s, change %s", store.ErrInsufficientStock, sku, inv.QuantityOnHand, delta)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity_on_hand = $2, updated_at = now()
		WHERE sku = $1
	`, sku, after); err != nil {
		return nil, nil, err
	}

	movement.SKU = sku
	movement.QuantityChange = delta
	movement.QuantityBefore = inv.QuantityOnHand
	movement.QuantityAfter = after
	if movement.Reference == "" {
		movement.Reference = ref.New(ref.PrefixMovement)
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO stock_movements (reference, sku, user_id, movement_type,
			quantity_change, quantity_before, quantity_after, source_ref, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		RETURNING id, created_at
	`, movement.Reference, sku, nullableID(movement.UserID), movement.Type,
		delta, inv.QuantityOnHand, after, movement.SourceRef, movement.Notes).Scan(&movement.ID, &movement.CreatedAt); err != nil {
		return nil, nil, err
	}

	inv.QuantityOnHand = after
	return &inv, &movement, nil
}

func (s *Store) AdjustStock(ctx context.Context, sku string, delta decimal.Decimal, movement domain.StockMovement) (*domain.Inventory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	inv, _, err := applyMovementTx(ctx, tx, sku, delta, movement)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListMovements(ctx context.Context, sku string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	query := `
		SELECT id, reference, sku, COALESCE(user_id, 0), movement_type,
			quantity_change, quantity_before, quantity_after, source_ref, notes, created_at
		FROM stock_movements
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	args := []any{limit}
	if sku != "" {
		query = `
		SELECT id, reference, sku, COALESCE(user_id, 0), movement_type,
			quantity_change, quantity_before, quantity_after, source_ref, notes, created_at
		FROM stock_movements
		WHERE sku = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
		args = append(args, sku)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.Reference, &m.SKU, &m.UserID, &m.Type,
			&m.QuantityChange, &m.QuantityBefore, &m.QuantityAfter, &m.SourceRef, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// Settlement.

// CreateSettlement persists the order, its transaction and every stock
// decrement in one serializable database transaction. Inventory rows
// are locked per SKU; any shortfall aborts the whole write.
func (s *Store) CreateSettlement(ctx context.Context, settlement store.Settlement) (*store.Settlement, error) {
	if len(settlement.Order.Items) == 0 {
		return nil, store.ErrInvalidState
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	order := settlement.Order
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, currency, status,
			placed_at, placed_by, served_at, served_by, cleared_at, cleared_by,
			subtotal, tax_total, discount_total, grand_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, order.OrderNumber, order.Currency, order.Status,
		order.PlacedAt, order.PlacedByID, order.ServedAt, order.ServedByID, order.ClearedAt, order.ClearedByID,
		order.Subtotal, order.TaxTotal, order.Discount, order.GrandTotal).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, sku, name, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, item.OrderID, item.SKU, item.Name, item.Quantity, item.UnitPrice, item.LineTotal).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
	}

	tx := settlement.Transaction
	tx.OrderID = order.ID
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO transactions (receipt_number, order_id, cashier_id, currency, status,
			subtotal, tax_total, discount_total, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, tx.ReceiptNumber, tx.OrderID, tx.CashierID, tx.Currency, tx.Status,
		tx.Subtotal, tx.TaxTotal, tx.Discount, tx.GrandTotal, tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i := range tx.Items {
		item := &tx.Items[i]
		item.TransactionID = tx.ID
		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO transaction_items (transaction_id, sku, name, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, item.TransactionID, item.SKU, item.Name, item.Quantity, item.UnitPrice, item.LineTotal).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
	}

	movements := make([]domain.StockMovement, 0, len(settlement.Movements))
	for _, m := range settlement.Movements {
		_, applied, err := applyMovementTx(ctx, pgTx, m.SKU, m.QuantityChange, m)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *applied)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &store.Settlement{Order: order, Transaction: tx, Movements: movements}, nil
}

const orderColumns = `id, order_number, currency, status,
	placed_at, placed_by, served_at, served_by, cleared_at, cleared_by,
	subtotal, tax_total, discount_total, grand_total`

func scanOrder(scanner interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	err := scanner.Scan(&o.ID, &o.OrderNumber, &o.Currency, &o.Status,
		&o.PlacedAt, &o.PlacedByID, &o.ServedAt, &o.ServedByID, &o.ClearedAt, &o.ClearedByID,
		&o.Subtotal, &o.TaxTotal, &o.Discount, &o.GrandTotal)
	return o, err
}

func (s *Store) orderItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, sku, name, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.SKU, &item.Name, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_number = $1
	`, orderNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	order.Items, err = s.orderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, period store.ReportPeriod, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}
	from, to := periodBounds(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE placed_at >= $1 AND placed_at < $2
		ORDER BY placed_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const transactionColumns = `id, receipt_number, order_id, cashier_id, currency, status,
	subtotal, tax_total, discount_total, grand_total, created_at`

func scanTransaction(scanner interface{ Scan(...any) error }) (domain.Transaction, error) {
	var t domain.Transaction
	err := scanner.Scan(&t.ID, &t.ReceiptNumber, &t.OrderID, &t.CashierID, &t.Currency, &t.Status,
		&t.Subtotal, &t.TaxTotal, &t.Discount, &t.GrandTotal, &t.CreatedAt)
	return t, err
}

func (s *Store) transactionItems(ctx context.Context, transactionID int64) ([]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, sku, name, quantity, unit_price, line_total
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.SKU, &item.Name, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetTransactionByReceipt(ctx context.Context, receiptNumber string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE receipt_number = $1
	`, receiptNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tx.Items, err = s.transactionItems(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, period store.ReportPeriod, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	from, to := periodBounds(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *Store) VoidTransaction(ctx context.Context, receiptNumber string, byUserID int64, reason string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx, err := scanTransaction(pgTx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE receipt_number = $1
		FOR UPDATE
	`, receiptNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: transaction is %s", store.ErrInvalidState, tx.Status)
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT sku, quantity
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, tx.ID)
	if err != nil {
		return nil, err
	}
	type restock struct {
		sku string
		qty decimal.Decimal
	}
	restocks := make([]restock, 0, 8)
	for itemRows.Next() {
		var r restock
		if err := itemRows.Scan(&r.sku, &r.qty); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		restocks = append(restocks, r)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, r := range restocks {
		if _, _, err := applyMovementTx(ctx, pgTx, r.sku, r.qty, domain.StockMovement{
			UserID:    byUserID,
			Type:      domain.MovementVoidRestock,
			SourceRef: receiptNumber,
			Notes:     reason,
			CreatedAt: at,
		}); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2
		WHERE id = $1
	`, tx.ID, domain.TxStatusVoided); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTransactionByReceipt(ctx, receiptNumber)
}

// Purchasing.

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == 0 || len(po.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	total := decimal.Zero
	for i := range po.Items {
		if po.Items[i].QuantityOrdered.Sign() <= 0 {
			return nil, store.ErrInvalidState
		}
		po.Items[i].LineTotal = po.Items[i].UnitCost.Mul(po.Items[i].QuantityOrdered)
		total = total.Add(po.Items[i].LineTotal)
	}
	po.TotalCost = total
	if po.PONumber == "" {
		po.PONumber = ref.New(ref.PrefixPurchase)
	}
	if po.Status == "" {
		po.Status = domain.POStatusDraft
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO purchase_orders (po_number, supplier_id, status, total_cost, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id, created_at
	`, po.PONumber, po.SupplierID, po.Status, po.TotalCost, po.Notes).Scan(&po.ID, &po.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i := range po.Items {
		item := &po.Items[i]
		item.PurchaseOrderID = po.ID
		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, sku, quantity_ordered, quantity_received, unit_cost, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, item.PurchaseOrderID, item.SKU, item.QuantityOrdered, item.QuantityReceived, item.UnitCost, item.LineTotal).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &po, nil
}

const poColumns = `id, po_number, supplier_id, status, total_cost, notes, created_at,
	COALESCE(received_at, 'epoch'::timestamptz), COALESCE(received_by, 0)`

func scanPurchaseOrder(scanner interface{ Scan(...any) error }) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := scanner.Scan(&po.ID, &po.PONumber, &po.SupplierID, &po.Status, &po.TotalCost, &po.Notes, &po.CreatedAt,
		&po.ReceivedAt, &po.ReceivedByID)
	return po, err
}

func (s *Store) purchaseOrderItems(ctx context.Context, poID int64) ([]domain.PurchaseOrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_order_id, sku, quantity_ordered, quantity_received, unit_cost, line_total
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.SKU, &item.QuantityOrdered, &item.QuantityReceived, &item.UnitCost, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetPurchaseOrderByNumber(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT `+poColumns+`
		FROM purchase_orders
		WHERE po_number = $1
	`, poNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	po.Items, err = s.purchaseOrderItems(ctx, po.ID)
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	query := `SELECT ` + poColumns + ` FROM purchase_orders ORDER BY created_at DESC, id DESC LIMIT $1`
	args := []any{limit}
	if status != "" {
		query = `SELECT ` + poColumns + ` FROM purchase_orders WHERE status = $2 ORDER BY created_at DESC, id DESC LIMIT $1`
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (s *Store) SendPurchaseOrder(ctx context.Context, poNumber string) (*domain.PurchaseOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2
		WHERE po_number = $1 AND status = $3
	`, poNumber, domain.POStatusSent, domain.POStatusDraft)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		po, err := s.GetPurchaseOrderByNumber(ctx, poNumber)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidState, po.Status)
	}
	return s.GetPurchaseOrderByNumber(ctx, poNumber)
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, poNumber string, byUserID int64, at time.Time) (*domain.PurchaseOrder, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	po, err := scanPurchaseOrder(pgTx.QueryRowContext(ctx, `
		SELECT `+poColumns+`
		FROM purchase_orders
		WHERE po_number = $1
		FOR UPDATE
	`, poNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if po.Status == domain.POStatusReceived {
		return nil, fmt.Errorf("%w: already received", store.ErrInvalidState)
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT id, sku, quantity_ordered
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, po.ID)
	if err != nil {
		return nil, err
	}
	type receipt struct {
		id  int64
		sku string
		qty decimal.Decimal
	}
	receipts := make([]receipt, 0, 8)
	for itemRows.Next() {
		var r receipt
		if err := itemRows.Scan(&r.id, &r.sku, &r.qty); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, r := range receipts {
		// Products ordered for the first time may have no inventory row yet.
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO inventory (sku, quantity_on_hand, reorder_point, reorder_quantity, location, updated_at)
			VALUES ($1, 0, 0, 0, '', now())
			ON CONFLICT (sku) DO NOTHING
		`, r.sku); err != nil {
			return nil, err
		}
		if _, _, err := applyMovementTx(ctx, pgTx, r.sku, r.qty, domain.StockMovement{
			UserID:    byUserID,
			Type:      domain.MovementPurchase,
			SourceRef: po.PONumber,
			CreatedAt: at,
		}); err != nil {
			return nil, err
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_order_items
			SET quantity_received = quantity_ordered
			WHERE id = $1
		`, r.id); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_at = $3, received_by = $4
		WHERE id = $1
	`, po.ID, domain.POStatusReceived, at, nullableID(byUserID)); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseOrderByNumber(ctx, poNumber)
}

// Reporting.

func periodBounds(period store.ReportPeriod) (time.Time, time.Time) {
	from := period.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := period.To
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	return from, to
}

func (s *Store) SalesReport(ctx context.Context, currency domain.Currency, period store.ReportPeriod) (*store.SalesReport, error) {
	from, to := periodBounds(period)
	report := store.SalesReport{Currency: currency}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(subtotal), 0),
			COALESCE(SUM(tax_total), 0),
			COALESCE(SUM(discount_total), 0),
			COALESCE(SUM(grand_total), 0)
		FROM transactions
		WHERE currency = $1 AND status = $2 AND created_at >= $3 AND created_at < $4
	`, currency, domain.TxStatusCompleted, from, to).Scan(
		&report.TransactionCount, &report.GrossSales, &report.TaxCollected, &report.DiscountGiven, &report.NetSales)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Store) TopProducts(ctx context.Context, currency domain.Currency, period store.ReportPeriod, limit int) ([]store.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}
	from, to := periodBounds(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ti.sku, MIN(ti.name), SUM(ti.quantity), SUM(ti.line_total)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.currency = $1 AND t.status = $2 AND t.created_at >= $3 AND t.created_at < $4
		GROUP BY ti.sku
		ORDER BY SUM(ti.quantity) DESC, ti.sku
		LIMIT $5
	`, currency, domain.TxStatusCompleted, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.ProductSales, 0, limit)
	for rows.Next() {
		var row store.ProductSales
		if err := rows.Scan(&row.SKU, &row.Name, &row.QuantitySold, &row.Revenue); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) LowStock(ctx context.Context) ([]domain.Inventory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, quantity_on_hand, reorder_point, reorder_quantity, location, updated_at
		FROM inventory
		WHERE quantity_on_hand <= reorder_point
		ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Inventory, 0, 16)
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.SKU, &inv.QuantityOnHand, &inv.ReorderPoint, &inv.ReorderQuantity, &inv.Location, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
