package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/marketplace/internal/adapter/mail"
	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/marketplace?parseTime=true"
	redisAddr     = "localhost:6379"
	sellerID      = "stress-seller"
	initialStock  = 20
	totalRequests = 50
	queueSize     = 1000
)

func main() {
	ctx := context.Background()

	db, err := sqlx.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	store := storage.NewMySQLAdapter(db)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	idem := storage.NewRedisAdapter(rdb)

	// Fresh listing per run so earlier runs never interfere.
	productID := "stress-" + uuid.NewString()
	if err := store.UpsertUser(ctx, domain.User{ID: sellerID, Name: "Stress Seller", Email: "seller@stress.local", Role: domain.RoleSeller}); err != nil {
		log.Fatalf("failed to seed seller: %v", err)
	}
	now := time.Now().UTC()
	if err := store.CreateProduct(ctx, domain.Product{
		ID: productID, Title: "Limited print", Category: domain.CategoryPainting,
		Price: 2500, OriginalPrice: 2500, Quantity: initialStock, Image: "print.png",
		SellerID: sellerID, Status: domain.ApprovalApproved, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}

	buyers := make([]string, totalRequests)
	for i := range buyers {
		buyers[i] = fmt.Sprintf("stress-buyer-%d", i)
		if err := store.UpsertUser(ctx, domain.User{ID: buyers[i], Name: buyers[i], Email: buyers[i] + "@stress.local", Role: domain.RoleBuyer}); err != nil {
			log.Fatalf("failed to seed buyer: %v", err)
		}
	}

	dispatcher := service.NewDispatcher(queueSize)
	dispatcher.Start(4)
	defer dispatcher.Close()

	notifier := mail.NewLogNotifier()
	delivery := service.NewDeliveryService(store, store, notifier, dispatcher)
	checkout := service.NewCheckoutService(store, store, store, delivery, notifier, dispatcher,
		service.WithIdempotency(idem))

	var successCount, soldOutCount, otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, buyer := range buyers {
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()

			_, err := checkout.PlaceOrder(ctx, service.PlaceOrderInput{
				BuyerID:        buyerID,
				Items:          []service.CartItem{{ProductID: productID, Quantity: 1}},
				IdempotencyKey: uuid.NewString(),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("unexpected error for %s: %v", buyerID, err)
			}
		}(buyer)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	p, err := store.GetProduct(ctx, productID)
	if err != nil || p == nil {
		log.Fatalf("failed to read product: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", p.Quantity)
	if p.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0, never negative")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", p.Quantity)
	}
}
