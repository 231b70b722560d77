// seed-orders fills the shop schema with synthetic aged orders plus their
// line items, item meta, notes, note meta and order meta. Intended for load
// testing the retention pipeline against realistic row counts.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-orders -count 10000 -max-age-days 720
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/config"
	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	count := flag.Int("count", 1000, "number of orders to create")
	maxAgeDays := flag.Int("max-age-days", 365, "orders get random ages up to this many days")
	batch := flag.Int("batch", 200, "insert batch size")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	now := time.Now().UTC()
	orders := make([]models.Order, 0, *count)
	for i := 0; i < *count; i++ {
		age := time.Duration(rand.Intn(*maxAgeDays*24)) * time.Hour
		orders = append(orders, models.Order{
			OrderNumber:   "SO-" + uuid.NewString()[:8],
			CustomerEmail: fmt.Sprintf("customer%d@example.test", i),
			CurrencyCode:  "USD",
			TotalAmount:   decimal.NewFromInt(int64(10 + rand.Intn(990))),
			Status:        models.OrderStatusActive,
			CreatedAt:     now.Add(-age),
		})
	}
	if err := db.CreateInBatches(&orders, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed orders: %v\n", err)
		os.Exit(1)
	}

	var items []models.OrderItem
	var notes []models.OrderNote
	var orderMeta []models.OrderMeta
	for _, o := range orders {
		for j := 0; j < 1+rand.Intn(3); j++ {
			items = append(items, models.OrderItem{
				OrderId:   o.ID,
				Name:      fmt.Sprintf("Item %d", j+1),
				Quantity:  decimal.NewFromInt(int64(1 + rand.Intn(5))),
				UnitPrice: decimal.NewFromInt(int64(5 + rand.Intn(95))),
			})
		}
		notes = append(notes, models.OrderNote{
			OrderId: o.ID,
			Author:  "system",
			Content: "Order placed",
		})
		orderMeta = append(orderMeta, models.OrderMeta{
			OrderId:   o.ID,
			MetaKey:   "_billing_country",
			MetaValue: "US",
		})
	}
	if err := db.CreateInBatches(&items, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed order items: %v\n", err)
		os.Exit(1)
	}
	if err := db.CreateInBatches(&notes, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed order notes: %v\n", err)
		os.Exit(1)
	}
	if err := db.CreateInBatches(&orderMeta, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed order meta: %v\n", err)
		os.Exit(1)
	}

	var itemMeta []models.OrderItemMeta
	for _, it := range items {
		itemMeta = append(itemMeta, models.OrderItemMeta{
			OrderItemId: it.ID,
			MetaKey:     "_sku",
			MetaValue:   uuid.NewString()[:12],
		})
	}
	var noteMeta []models.OrderNoteMeta
	for _, n := range notes {
		noteMeta = append(noteMeta, models.OrderNoteMeta{
			OrderNoteId: n.ID,
			MetaKey:     "_source",
			MetaValue:   "seed",
		})
	}
	if err := db.CreateInBatches(&itemMeta, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed item meta: %v\n", err)
		os.Exit(1)
	}
	if err := db.CreateInBatches(&noteMeta, *batch).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed note meta: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded %d orders, %d items, %d item meta, %d notes, %d note meta, %d order meta\n",
		len(orders), len(items), len(itemMeta), len(notes), len(noteMeta), len(orderMeta))
}
