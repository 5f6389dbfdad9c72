package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
	usersCollection    = "users"
	compensateTimeout  = 5 * time.Second
)

type addressDoc struct {
	Label        string `bson:"label,omitempty"`
	FullName     string `bson:"fullName"`
	Phone        string `bson:"phone"`
	AddressLine1 string `bson:"addressLine1"`
	AddressLine2 string `bson:"addressLine2,omitempty"`
	City         string `bson:"city"`
	State        string `bson:"state"`
	Pincode      string `bson:"pincode"`
	IsDefault    bool   `bson:"isDefault"`
}

type productDoc struct {
	ID              string    `bson:"_id"`
	Title           string    `bson:"title"`
	Description     string    `bson:"description"`
	ProductType     string    `bson:"productType"`
	Price           int64     `bson:"price"`
	OfferPercentage int       `bson:"offerPercentage"`
	OriginalPrice   int64     `bson:"originalPrice"`
	Quantity        int       `bson:"quantity"`
	Image           string    `bson:"image"`
	Model3D         string    `bson:"model3D,omitempty"`
	Seller          string    `bson:"seller"`
	Status          string    `bson:"status"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

type lineDoc struct {
	Product   string `bson:"product"`
	Quantity  int    `bson:"quantity"`
	Seller    string `bson:"seller"`
	Title     string `bson:"title"`
	UnitPrice int64  `bson:"unitPrice"`
}

type orderDoc struct {
	ID               string     `bson:"_id"`
	Buyer            string     `bson:"buyer"`
	Products         []lineDoc  `bson:"products"`
	TotalAmount      int64      `bson:"totalAmount"`
	CommissionAmount int64      `bson:"commissionAmount"`
	Status           string     `bson:"status"`
	DeliveryStatus   string     `bson:"deliveryStatus"`
	DacCode          string     `bson:"dacCode"`
	DacExpiresAt     *time.Time `bson:"dacExpiresAt,omitempty"`
	ShippingAddress  addressDoc `bson:"shippingAddress"`
	DeliveredAt      *time.Time `bson:"deliveredAt,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt"`
}

type userDoc struct {
	ID        string       `bson:"_id"`
	Name      string       `bson:"name"`
	Email     string       `bson:"email"`
	Phone     string       `bson:"phone"`
	Role      string       `bson:"role"`
	Addresses []addressDoc `bson:"addresses"`
}

// MongoAdapter stores products, orders and users as documents. Stock changes use
// conditional $inc filters. Orders are placed in a multi-document transaction on
// replica sets and sharded clusters; a standalone server falls back to
// compensating the lines already taken.
type MongoAdapter struct {
	client       *mongo.Client
	products     *mongo.Collection
	orders       *mongo.Collection
	users        *mongo.Collection
	transactions bool
}

func NewMongoAdapter(client *mongo.Client, database string) *MongoAdapter {
	db := client.Database(database)
	return &MongoAdapter{
		client:   client,
		products: db.Collection(productsCollection),
		orders:   db.Collection(ordersCollection),
		users:    db.Collection(usersCollection),
	}
}

func (m *MongoAdapter) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// DetectTransactions enables transactional order placement when the deployment
// supports multi-document transactions. Call it before serving.
func (m *MongoAdapter) DetectTransactions(ctx context.Context) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := m.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return false, fmt.Errorf("hello: %w", err)
	}
	m.transactions = hello.SetName != "" || hello.Msg == "isdbgrid"
	return m.transactions, nil
}

func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	if _, err := m.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "quantity", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "seller", Value: 1}, {Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("product indexes: %w", err)
	}
	if _, err := m.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "buyer", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "products.seller", Value: 1}, {Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("order indexes: %w", err)
	}
	return nil
}

func (m *MongoAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	if _, err := m.products.InsertOne(ctx, toProductDoc(p)); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MongoAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDoc
	err := m.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	p := doc.toDomain()
	return &p, nil
}

func (m *MongoAdapter) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	filter := bson.M{}
	if f.SellerID != "" {
		filter["seller"] = f.SellerID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.InStockOnly {
		filter["quantity"] = bson.M{"$gt": 0}
	}

	order := 1
	if f.NewestFirst {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}, {Key: "_id", Value: 1}})

	cur, err := m.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	out := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (m *MongoAdapter) SetProductStatus(ctx context.Context, id string, status domain.ApprovalStatus) (bool, error) {
	res, err := m.products.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": string(status), "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("update product status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (m *MongoAdapter) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	res, err := m.products.UpdateOne(ctx,
		bson.M{"_id": id, "quantity": bson.M{"$gte": quantity}},
		bson.M{
			"$inc": bson.M{"quantity": -quantity},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (m *MongoAdapter) incrementStock(ctx context.Context, id string, quantity int) error {
	_, err := m.products.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"quantity": quantity},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

// PlaceOrder decrements each line conditionally, then inserts the order.
// Without transactions the lines already taken are given back on any failure.
func (m *MongoAdapter) PlaceOrder(ctx context.Context, order domain.Order) error {
	if m.transactions {
		return m.placeOrderTx(ctx, order)
	}

	for i, l := range order.Lines {
		ok, err := m.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			m.restock(ctx, order.ID, order.Lines[:i])
			return err
		}
		if !ok {
			m.restock(ctx, order.ID, order.Lines[:i])
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, l.ProductID)
		}
	}

	if _, err := m.orders.InsertOne(ctx, toOrderDoc(order)); err != nil {
		m.restock(ctx, order.ID, order.Lines)
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MongoAdapter) placeOrderTx(ctx context.Context, order domain.Order) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, l := range order.Lines {
			ok, err := m.DecrementStock(sc, l.ProductID, l.Quantity)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", domain.ErrInsufficientStock, l.ProductID)
			}
		}
		if _, err := m.orders.InsertOne(sc, toOrderDoc(order)); err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}
		return nil, nil
	})
	return err
}

func (m *MongoAdapter) restock(ctx context.Context, orderID string, lines []domain.LineItem) {
	if len(lines) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	l := logging.FromCtx(ctx).With("order_id", orderID)
	for _, line := range lines {
		if err := m.incrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			l.Error("CRITICAL restock failed", "product_id", line.ProductID, "quantity", line.Quantity, "error", err)
			continue
		}
		l.Warn("restocked after failed order", "product_id", line.ProductID, "quantity", line.Quantity)
	}
}

func (m *MongoAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var doc orderDoc
	err := m.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	o := doc.toDomain()
	return &o, nil
}

func (m *MongoAdapter) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	filter := bson.M{}
	if f.BuyerID != "" {
		filter["buyer"] = f.BuyerID
	}
	if f.SellerID != "" {
		filter["products.seller"] = f.SellerID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	out := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (m *MongoAdapter) MarkDelivered(ctx context.Context, id, hash string, at time.Time) (bool, error) {
	res, err := m.orders.UpdateOne(ctx,
		bson.M{"_id": id, "deliveryStatus": string(domain.DeliveryNotDelivered), "dacCode": hash},
		bson.M{"$set": bson.M{"deliveryStatus": string(domain.DeliveryDelivered), "deliveredAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (m *MongoAdapter) ReplaceDeliveryCode(ctx context.Context, id, hash string, expiresAt *time.Time) (bool, error) {
	update := bson.M{"$set": bson.M{"dacCode": hash}}
	if expiresAt != nil {
		update["$set"] = bson.M{"dacCode": hash, "dacExpiresAt": *expiresAt}
	} else {
		update["$unset"] = bson.M{"dacExpiresAt": ""}
	}

	res, err := m.orders.UpdateOne(ctx,
		bson.M{"_id": id, "deliveryStatus": string(domain.DeliveryNotDelivered)},
		update,
	)
	if err != nil {
		return false, fmt.Errorf("replace delivery code: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (m *MongoAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	u := domain.User{ID: doc.ID, Name: doc.Name, Email: doc.Email, Phone: doc.Phone, Role: domain.Role(doc.Role)}
	for _, a := range doc.Addresses {
		u.Addresses = append(u.Addresses, domain.Address(a))
	}
	return &u, nil
}

// UpsertUser writes a user document for seeding and tests.
func (m *MongoAdapter) UpsertUser(ctx context.Context, u domain.User) error {
	doc := userDoc{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: string(u.Role)}
	for _, a := range u.Addresses {
		doc.Addresses = append(doc.Addresses, addressDoc(a))
	}
	_, err := m.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func toProductDoc(p domain.Product) productDoc {
	return productDoc{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		ProductType:     string(p.Category),
		Price:           p.Price,
		OfferPercentage: p.OfferPercentage,
		OriginalPrice:   p.OriginalPrice,
		Quantity:        p.Quantity,
		Image:           p.Image,
		Model3D:         p.Model3D,
		Seller:          p.SellerID,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (d productDoc) toDomain() domain.Product {
	return domain.Product{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		Category:        domain.Category(d.ProductType),
		Price:           d.Price,
		OfferPercentage: d.OfferPercentage,
		OriginalPrice:   d.OriginalPrice,
		Quantity:        d.Quantity,
		Image:           d.Image,
		Model3D:         d.Model3D,
		SellerID:        d.Seller,
		Status:          domain.ApprovalStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toOrderDoc(o domain.Order) orderDoc {
	lines := make([]lineDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineDoc{
			Product:   l.ProductID,
			Quantity:  l.Quantity,
			Seller:    l.SellerID,
			Title:     l.Title,
			UnitPrice: l.UnitPrice,
		})
	}
	return orderDoc{
		ID:               o.ID,
		Buyer:            o.BuyerID,
		Products:         lines,
		TotalAmount:      o.TotalAmount,
		CommissionAmount: o.CommissionAmount,
		Status:           string(o.Status),
		DeliveryStatus:   string(o.DeliveryStatus),
		DacCode:          o.DeliveryCodeHash,
		DacExpiresAt:     o.DeliveryCodeExpiresAt,
		ShippingAddress:  addressDoc(o.ShippingAddress),
		DeliveredAt:      o.DeliveredAt,
		CreatedAt:        o.CreatedAt,
	}
}

func (d orderDoc) toDomain() domain.Order {
	lines := make([]domain.LineItem, 0, len(d.Products))
	for _, l := range d.Products {
		lines = append(lines, domain.LineItem{
			ProductID: l.Product,
			Quantity:  l.Quantity,
			SellerID:  l.Seller,
			Title:     l.Title,
			UnitPrice: l.UnitPrice,
		})
	}
	return domain.Order{
		ID:                    d.ID,
		BuyerID:               d.Buyer,
		Lines:                 lines,
		TotalAmount:           d.TotalAmount,
		CommissionAmount:      d.CommissionAmount,
		Status:                domain.OrderStatus(d.Status),
		DeliveryStatus:        domain.DeliveryStatus(d.DeliveryStatus),
		DeliveryCodeHash:      d.DacCode,
		DeliveryCodeExpiresAt: d.DacExpiresAt,
		ShippingAddress:       domain.Address(d.ShippingAddress),
		DeliveredAt:           d.DeliveredAt,
		CreatedAt:             d.CreatedAt,
	}
}
