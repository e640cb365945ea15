// Stress harness for the settlement path: creates many orders against a
// small stock pool, then settles them all concurrently and checks that the
// conditional decrement never oversells.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghshop/storefront/internal/adapter/storage"
	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/core/service"
	"github.com/ghshop/storefront/internal/observability"
)

const (
	itemID       = "stress-item"
	productID    = "stress-product"
	userID       = "stress-user"
	initialStock = 20
	totalOrders  = 50
)

func main() {
	ctx := context.Background()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	// Reset fixture rows
	mustExec(ctx, db, `DELETE FROM invoice_lines WHERE item_id = ?`, itemID)
	mustExec(ctx, db, `DELETE FROM invoices WHERE user_id = ?`, userID)
	mustExec(ctx, db, `
		INSERT INTO users (user_id, user_name) VALUES (?, 'Stress User')
		ON DUPLICATE KEY UPDATE user_name = 'Stress User'`, userID)
	mustExec(ctx, db, `
		INSERT INTO product_items
			(item_id, product_id, product_name, quantity, price, discount)
		VALUES (?, ?, 'Stress Product', ?, 1000, 0)
		ON DUPLICATE KEY UPDATE quantity = ?`,
		itemID, productID, initialStock, initialStock)

	logger := zap.NewNop()
	store := storage.NewMySQLAdapter(db)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	events := service.NewEventQueue(1024, logger)
	defer events.Close()

	// Drain events in background
	go func() {
		for range events.Events() {
		}
	}()

	orders := service.NewOrderService(store, store, store, events, metrics, logger)
	invoices := service.NewInvoiceService(store, store, events, metrics, logger)

	// Phase 1: creation is read-only against stock, so every order passes
	invoiceIDs := make([]string, 0, totalOrders)
	for i := 0; i < totalOrders; i++ {
		inv, err := orders.CreateOrder(ctx, service.OrderRequest{
			UserID: userID,
			Lines: []domain.LineRequest{
				{ProductID: productID, ItemID: itemID, Quantity: 1},
			},
		})
		if err != nil {
			log.Fatalf("order %d failed: %v", i, err)
		}
		invoiceIDs = append(invoiceIDs, inv.InvoiceID)
	}

	// Phase 2: settle everything at once
	var settled atomic.Int32
	var rejected atomic.Int32
	var wg sync.WaitGroup
	shipping := domain.StatusShipping

	start := time.Now()
	for _, id := range invoiceIDs {
		wg.Add(1)
		go func(invoiceID string) {
			defer wg.Done()
			_, err := invoices.UpdateInvoice(ctx, invoiceID, service.UpdateRequest{Status: &shipping})
			if err == nil {
				settled.Add(1)
			} else {
				rejected.Add(1)
			}
		}(id)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var finalStock int
	db.QueryRowContext(ctx, `SELECT quantity FROM product_items WHERE item_id = ?`, itemID).Scan(&finalStock)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Orders Created:   %d\n", totalOrders)
	fmt.Printf("Settled:          %d\n", settled.Load())
	fmt.Printf("Rejected:         %d\n", rejected.Load())
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if settled.Load() == initialStock && finalStock == 0 {
		fmt.Println("PASS: stock depleted exactly, no oversell")
	} else {
		fmt.Printf("FAIL: expected %d settlements and 0 stock, got %d and %d\n",
			initialStock, settled.Load(), finalStock)
	}
}

func mustExec(ctx context.Context, db *sql.DB, query string, args ...any) {
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		log.Fatalf("setup failed: %v", err)
	}
}
