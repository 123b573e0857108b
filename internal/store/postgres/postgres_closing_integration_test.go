package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestPerformClosingUpsertsLedger(t *testing.T) {
	databaseURL := os.Getenv("PANADERIA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PANADERIA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	name := fmt.Sprintf("Pan Integracion %d", stamp)

	var productID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price_cents, stock, produced_today)
		VALUES ($1, 150, 10, 5)
		RETURNING id
	`, name).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM closings WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	date := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
	records, err := s.PerformClosing(ctx, date, map[int64]int{productID: 4})
	if err != nil {
		t.Fatalf("perform closing: %v", err)
	}

	var rec *struct {
		id    int64
		sales int
	}
	for _, r := range records {
		if r.ProductID == productID {
			rec = &struct {
				id    int64
				sales int
			}{r.ID, r.SalesDerived}
		}
	}
	if rec == nil {
		t.Fatalf("no closing record for product %d", productID)
	}
	if rec.sales != 6 {
		t.Fatalf("sales = %d, want 6", rec.sales)
	}

	var stock, produced int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock, produced_today FROM products WHERE id = $1
	`, productID).Scan(&stock, &produced); err != nil {
		t.Fatalf("query product: %v", err)
	}
	if stock != 4 || produced != 0 {
		t.Fatalf("after closing stock=%d produced=%d, want 4/0", stock, produced)
	}

	// Re-closing the same date must overwrite the row, not add one.
	again, err := s.PerformClosing(ctx, date, map[int64]int{productID: 4})
	if err != nil {
		t.Fatalf("second closing: %v", err)
	}
	for _, r := range again {
		if r.ProductID == productID && r.ID != rec.id {
			t.Fatalf("re-close created new ledger row: id %d then %d", rec.id, r.ID)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM closings WHERE closing_date = $1 AND product_id = $2
	`, date, productID).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("ledger rows = %d, want 1", count)
	}
}
