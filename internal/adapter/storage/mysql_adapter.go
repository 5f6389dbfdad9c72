package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rl1809/marketplace/internal/core/domain"
)

//go:embed schema/mysql.sql
var mysqlSchema string

type productRow struct {
	ID              string    `db:"id"`
	Title           string    `db:"title"`
	Description     string    `db:"description"`
	Category        string    `db:"category"`
	Price           int64     `db:"price"`
	OfferPercentage int       `db:"offer_percentage"`
	OriginalPrice   int64     `db:"original_price"`
	Quantity        int       `db:"quantity"`
	Image           string    `db:"image"`
	Model3D         string    `db:"model_3d"`
	SellerID        string    `db:"seller_id"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type orderRow struct {
	ID               string         `db:"id"`
	BuyerID          string         `db:"buyer_id"`
	TotalAmount      int64          `db:"total_amount"`
	CommissionAmount int64          `db:"commission_amount"`
	Status           string         `db:"status"`
	DeliveryStatus   string         `db:"delivery_status"`
	DacCode          string         `db:"dac_code"`
	DacExpiresAt     sql.NullTime   `db:"dac_expires_at"`
	ShippingAddress  sql.NullString `db:"shipping_address"`
	DeliveredAt      sql.NullTime   `db:"delivered_at"`
	CreatedAt        time.Time      `db:"created_at"`
}

type orderItemRow struct {
	OrderID   string `db:"order_id"`
	LineNo    int    `db:"line_no"`
	ProductID string `db:"product_id"`
	SellerID  string `db:"seller_id"`
	Title     string `db:"title"`
	UnitPrice int64  `db:"unit_price"`
	Quantity  int    `db:"quantity"`
}

type userRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     string         `db:"email"`
	Phone     string         `db:"phone"`
	Role      string         `db:"role"`
	Addresses sql.NullString `db:"addresses"`
}

const productColumns = `id, title, description, category, price, offer_percentage, original_price,
	quantity, image, model_3d, seller_id, status, created_at, updated_at`

const orderColumns = `id, buyer_id, total_amount, commission_amount, status, delivery_status,
	dac_code, dac_expires_at, shipping_address, delivered_at, created_at`

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates missing tables. Statements are run one by one so the DSN
// does not need multiStatements.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :title, :description, :category, :price, :offer_percentage, :original_price,
			:quantity, :image, :model_3d, :seller_id, :status, :created_at, :updated_at)`,
		toProductRow(p),
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := m.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	p := row.toDomain()
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.SellerID != "" {
		conditions = append(conditions, "seller_id = :seller_id")
		args["seller_id"] = f.SellerID
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = string(f.Status)
	}
	if f.InStockOnly {
		conditions = append(conditions, "quantity > 0")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if f.NewestFirst {
		query += " ORDER BY created_at DESC, id"
	} else {
		query += " ORDER BY created_at ASC, id"
	}

	nstmt, err := m.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare list products: %w", err)
	}
	defer nstmt.Close()

	var rows []productRow
	if err := nstmt.SelectContext(ctx, &rows, args); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (m *MySQLAdapter) SetProductStatus(ctx context.Context, id string, status domain.ApprovalStatus) (bool, error) {
	// RowsAffected counts changed rows only, so existence is checked separately.
	if _, err := m.db.ExecContext(ctx, `
		UPDATE products SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	); err != nil {
		return false, fmt.Errorf("update product status: %w", err)
	}

	var n int
	if err := m.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM products WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check product: %w", err)
	}
	return n > 0, nil
}

func (m *MySQLAdapter) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	return decrementStock(ctx, m.db, id, quantity)
}

// PlaceOrder decrements every line conditionally and inserts the order in one
// transaction. Any line that cannot be covered rolls the whole order back.
func (m *MySQLAdapter) PlaceOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, l := range order.Lines {
		ok, err := decrementStock(ctx, tx, l.ProductID, l.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, l.ProductID)
		}
	}

	row, err := toOrderRow(order)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :buyer_id, :total_amount, :commission_amount, :status, :delivery_status,
			:dac_code, :dac_expires_at, :shipping_address, :delivered_at, :created_at)`,
		row,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	items := toOrderItemRows(order)
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO order_items (order_id, line_no, product_id, seller_id, title, unit_price, quantity)
		VALUES (:order_id, :line_no, :product_id, :seller_id, :title, :unit_price, :quantity)`,
		items,
	); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	err := m.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	orders, err := m.attachItems(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	conditions := []string{}
	args := []interface{}{}

	if f.BuyerID != "" {
		conditions = append(conditions, "buyer_id = ?")
		args = append(args, f.BuyerID)
	}
	if f.SellerID != "" {
		conditions = append(conditions, "id IN (SELECT order_id FROM order_items WHERE seller_id = ?)")
		args = append(args, f.SellerID)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	var rows []orderRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Order{}, nil
	}
	return m.attachItems(ctx, rows)
}

func (m *MySQLAdapter) MarkDelivered(ctx context.Context, id, hash string, at time.Time) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE orders SET delivery_status = ?, delivered_at = ?
		WHERE id = ? AND delivery_status = ? AND dac_code = ?`,
		string(domain.DeliveryDelivered), at, id, string(domain.DeliveryNotDelivered), hash,
	)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) ReplaceDeliveryCode(ctx context.Context, id, hash string, expiresAt *time.Time) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE orders SET dac_code = ?, dac_expires_at = ?
		WHERE id = ? AND delivery_status = ?`,
		hash, nullTime(expiresAt), id, string(domain.DeliveryNotDelivered),
	)
	if err != nil {
		return false, fmt.Errorf("replace delivery code: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := m.db.GetContext(ctx, &row, `SELECT id, name, email, phone, role, addresses FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	u := domain.User{ID: row.ID, Name: row.Name, Email: row.Email, Phone: row.Phone, Role: domain.Role(row.Role)}
	if row.Addresses.Valid && row.Addresses.String != "" {
		if err := json.Unmarshal([]byte(row.Addresses.String), &u.Addresses); err != nil {
			return nil, fmt.Errorf("decode addresses: %w", err)
		}
	}
	return &u, nil
}

// UpsertUser writes a user record. Users are owned by the auth service; this
// exists for seeding and tests.
func (m *MySQLAdapter) UpsertUser(ctx context.Context, u domain.User) error {
	addrs, err := json.Marshal(u.Addresses)
	if err != nil {
		return fmt.Errorf("encode addresses: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, role, addresses) VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), email = VALUES(email), phone = VALUES(phone),
			role = VALUES(role), addresses = VALUES(addresses)`,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role), string(addrs),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) attachItems(ctx context.Context, rows []orderRow) ([]domain.Order, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	query, args, err := sqlx.In(`
		SELECT order_id, line_no, product_id, seller_id, title, unit_price, quantity
		FROM order_items WHERE order_id IN (?) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, err
	}

	var items []orderItemRow
	if err := m.db.SelectContext(ctx, &items, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}

	byOrder := make(map[string][]domain.LineItem, len(rows))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], domain.LineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			SellerID:  it.SellerID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
		})
	}

	out := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		o.Lines = byOrder[r.ID]
		out = append(out, o)
	}
	return out, nil
}

// decrementStock subtracts quantity only while enough stock remains.
// Zero affected rows means the product is missing or short.
func decrementStock(ctx context.Context, ex sqlx.ExecerContext, id string, quantity int) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?, updated_at = ?
		WHERE id = ? AND quantity >= ?`,
		quantity, time.Now().UTC(), id, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func toProductRow(p domain.Product) productRow {
	return productRow{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Category:        string(p.Category),
		Price:           p.Price,
		OfferPercentage: p.OfferPercentage,
		OriginalPrice:   p.OriginalPrice,
		Quantity:        p.Quantity,
		Image:           p.Image,
		Model3D:         p.Model3D,
		SellerID:        p.SellerID,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Category:        domain.Category(r.Category),
		Price:           r.Price,
		OfferPercentage: r.OfferPercentage,
		OriginalPrice:   r.OriginalPrice,
		Quantity:        r.Quantity,
		Image:           r.Image,
		Model3D:         r.Model3D,
		SellerID:        r.SellerID,
		Status:          domain.ApprovalStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toOrderRow(o domain.Order) (orderRow, error) {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return orderRow{}, fmt.Errorf("encode shipping address: %w", err)
	}
	return orderRow{
		ID:               o.ID,
		BuyerID:          o.BuyerID,
		TotalAmount:      o.TotalAmount,
		CommissionAmount: o.CommissionAmount,
		Status:           string(o.Status),
		DeliveryStatus:   string(o.DeliveryStatus),
		DacCode:          o.DeliveryCodeHash,
		DacExpiresAt:     nullTime(o.DeliveryCodeExpiresAt),
		ShippingAddress:  sql.NullString{String: string(addr), Valid: true},
		DeliveredAt:      nullTime(o.DeliveredAt),
		CreatedAt:        o.CreatedAt,
	}, nil
}

func toOrderItemRows(o domain.Order) []orderItemRow {
	items := make([]orderItemRow, 0, len(o.Lines))
	for i, l := range o.Lines {
		items = append(items, orderItemRow{
			OrderID:   o.ID,
			LineNo:    i,
			ProductID: l.ProductID,
			SellerID:  l.SellerID,
			Title:     l.Title,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return items
}

func (r orderRow) toDomain() (domain.Order, error) {
	o := domain.Order{
		ID:                    r.ID,
		BuyerID:               r.BuyerID,
		TotalAmount:           r.TotalAmount,
		CommissionAmount:      r.CommissionAmount,
		Status:                domain.OrderStatus(r.Status),
		DeliveryStatus:        domain.DeliveryStatus(r.DeliveryStatus),
		DeliveryCodeHash:      r.DacCode,
		DeliveryCodeExpiresAt: timePtr(r.DacExpiresAt),
		DeliveredAt:           timePtr(r.DeliveredAt),
		CreatedAt:             r.CreatedAt,
	}
	if r.ShippingAddress.Valid && r.ShippingAddress.String != "" {
		if err := json.Unmarshal([]byte(r.ShippingAddress.String), &o.ShippingAddress); err != nil {
			return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	return o, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
