// Package sqlite is the single-file backend used when no PostgreSQL URL
// is configured. It keeps the whole shop in one file next to the binary,
// which suits a one-person bakery office.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"panaderia/backend/internal/closing"
	"panaderia/backend/internal/domain"
	"panaderia/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

// timeLayout is fixed-width for UTC values, so timestamp comparisons in
// SQL stay correct as plain string comparisons.
const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// modernc's driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Each string is a single statement; SQLite executes one at a time.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		price_cents INTEGER NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		produced_today INTEGER NOT NULL DEFAULT 0,
		sold_today INTEGER NOT NULL DEFAULT 0,
		is_beverage INTEGER NOT NULL DEFAULT 0,
		hidden INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS closings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		closing_date TEXT NOT NULL,
		product_id INTEGER NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		opening_stock INTEGER NOT NULL,
		produced INTEGER NOT NULL,
		counted_stock INTEGER NOT NULL,
		sales_derived INTEGER NOT NULL,
		revenue_cents INTEGER NOT NULL,
		raw_delta INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (closing_date, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS workers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		pay_basis TEXT NOT NULL DEFAULT 'weekly',
		wage_cents INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		supplied_product TEXT NOT NULL DEFAULT '',
		monthly_cost_cents INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		party_kind TEXT NOT NULL,
		party_id INTEGER NOT NULL,
		party_name TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		kind TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_closings_date ON closings (closing_date)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments (created_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	var current int
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			i+1, time.Now().UTC().Format(timeLayout)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func parseDate(s string) time.Time {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func scanProduct(row interface {
	Scan(dest ...any) error
}) (domain.Product, error) {
	var p domain.Product
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.ProducedToday, &p.SoldToday, &p.IsBeverage, &p.Hidden, &createdAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

const productColumns = `id, name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at`

func (s *Store) ListProducts(ctx context.Context, includeHidden bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ? OR hidden = 0
		ORDER BY id
	`, includeHidden)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	product.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at)
		VALUES (?, ?, ?, 0, 0, ?, 0, ?)
	`, product.Name, product.PriceCents, product.Stock, product.IsBeverage, product.CreatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	product.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ToggleProductHidden(ctx context.Context, id int64) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET hidden = NOT hidden WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) ApplyProduction(ctx context.Context, id int64, qty int) (*domain.Product, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?1,
			produced_today = produced_today + CASE WHEN is_beverage THEN 0 ELSE ?1 END
		WHERE id = ?2
	`, qty, id)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) PerformClosing(ctx context.Context, date time.Time, counts map[int64]int) ([]domain.ClosingRecord, error) {
	date = closing.NormalizeDate(date)
	for _, counted := range counts {
		if counted < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
	}
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
	}
	rows.Close()

	now := time.Now().UTC()
	dateStr := date.Format(dateLayout)
	records := make([]domain.ClosingRecord, 0, len(products))
	for _, p := range products {
		rec := closing.Derive(p, date, counts[p.ID], now)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO closings (closing_date, product_id, product_name, opening_stock, produced,
				counted_stock, sales_derived, revenue_cents, raw_delta, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (closing_date, product_id)
			DO UPDATE SET product_name = excluded.product_name,
				opening_stock = excluded.opening_stock,
				produced = excluded.produced,
				counted_stock = excluded.counted_stock,
				sales_derived = excluded.sales_derived,
				revenue_cents = excluded.revenue_cents,
				raw_delta = excluded.raw_delta,
				created_at = excluded.created_at
		`, dateStr, rec.ProductID, rec.ProductName, rec.OpeningStock, rec.Produced,
			rec.CountedStock, rec.SalesDerived, rec.RevenueCents, rec.RawDelta, rec.CreatedAt.Format(timeLayout))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
		}

		err = tx.QueryRowContext(ctx, `
			SELECT id FROM closings WHERE closing_date = ? AND product_id = ?
		`, dateStr, rec.ProductID).Scan(&rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock = ?, produced_today = 0, sold_today = 0 WHERE id = ?
		`, rec.CountedStock, p.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
		}

		records = append(records, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
	}
	return records, nil
}

const closingColumns = `id, closing_date, product_id, product_name, opening_stock, produced,
	counted_stock, sales_derived, revenue_cents, raw_delta, created_at`

func scanClosing(rows *sql.Rows) (domain.ClosingRecord, error) {
	var rec domain.ClosingRecord
	var dateStr, createdAt string
	err := rows.Scan(&rec.ID, &dateStr, &rec.ProductID, &rec.ProductName, &rec.OpeningStock,
		&rec.Produced, &rec.CountedStock, &rec.SalesDerived, &rec.RevenueCents, &rec.RawDelta, &createdAt)
	if err != nil {
		return domain.ClosingRecord{}, err
	}
	rec.Date = parseDate(dateStr)
	rec.CreatedAt = parseTime(createdAt)
	return rec, nil
}

func (s *Store) ListClosings(ctx context.Context, from, to time.Time) ([]domain.ClosingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+closingColumns+`
		FROM closings
		WHERE closing_date >= ? AND closing_date <= ?
		ORDER BY closing_date, product_id
	`, closing.NormalizeDate(from).Format(dateLayout), closing.NormalizeDate(to).Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ClosingRecord, 0, 64)
	for rows.Next() {
		rec, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) RevenueSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(revenue_cents), 0)
		FROM closings
		WHERE closing_date >= ?
	`, closing.NormalizeDate(since).Format(dateLayout)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DailyRevenueSeries(ctx context.Context, since time.Time) ([]domain.RevenuePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT closing_date, SUM(revenue_cents)
		FROM closings
		WHERE closing_date >= ?
		GROUP BY closing_date
		ORDER BY closing_date
	`, closing.NormalizeDate(since).Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.RevenuePoint, 0, 31)
	for rows.Next() {
		var dateStr string
		var pt domain.RevenuePoint
		if err := rows.Scan(&dateStr, &pt.RevenueCents); err != nil {
			return nil, err
		}
		pt.Date = parseDate(dateStr)
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

const workerColumns = `id, name, contact, role, pay_basis, wage_cents, active, created_at`

func scanWorker(row interface {
	Scan(dest ...any) error
}) (domain.Worker, error) {
	var w domain.Worker
	var createdAt string
	err := row.Scan(&w.ID, &w.Name, &w.Contact, &w.Role, &w.PayBasis, &w.WageCents, &w.Active, &createdAt)
	if err != nil {
		return domain.Worker{}, err
	}
	w.CreatedAt = parseTime(createdAt)
	return w, nil
}

func (s *Store) CreateWorker(ctx context.Context, worker domain.Worker) (*domain.Worker, error) {
	if worker.Name == "" || worker.WageCents < 0 {
		return nil, store.ErrInvalidInput
	}

	worker.Active = true
	worker.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (name, contact, role, pay_basis, wage_cents, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, worker.Name, worker.Contact, worker.Role, worker.PayBasis, worker.WageCents, worker.CreatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	worker.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := worker
	return &created, nil
}

func (s *Store) ListWorkers(ctx context.Context, includeInactive bool) ([]domain.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workerColumns+`
		FROM workers
		WHERE ? OR active = 1
		ORDER BY id
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workers := make([]domain.Worker, 0, 16)
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return workers, nil
}

func (s *Store) GetWorker(ctx context.Context, id int64) (*domain.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx, `
		SELECT `+workerColumns+`
		FROM workers
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *Store) ToggleWorkerActive(ctx context.Context, id int64) (*domain.Worker, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE workers SET active = NOT active WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetWorker(ctx, id)
}

const supplierColumns = `id, name, contact, supplied_product, monthly_cost_cents, active, created_at`

func scanSupplier(row interface {
	Scan(dest ...any) error
}) (domain.Supplier, error) {
	var sup domain.Supplier
	var createdAt string
	err := row.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.SuppliedProduct, &sup.MonthlyCostCents, &sup.Active, &createdAt)
	if err != nil {
		return domain.Supplier{}, err
	}
	sup.CreatedAt = parseTime(createdAt)
	return sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" || supplier.MonthlyCostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	supplier.Active = true
	supplier.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (name, contact, supplied_product, monthly_cost_cents, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`, supplier.Name, supplier.Contact, supplier.SuppliedProduct, supplier.MonthlyCostCents, supplier.CreatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	supplier.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context, includeInactive bool) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers
		WHERE ? OR active = 1
		ORDER BY id
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.db.QueryRowContext(ctx, `
		SELECT `+supplierColumns+`
		FROM suppliers
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) ToggleSupplierActive(ctx context.Context, id int64) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE suppliers SET active = NOT active WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSupplier(ctx, id)
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (party_kind, party_id, party_name, amount_cents, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, payment.PartyKind, payment.PartyID, payment.PartyName, payment.AmountCents, payment.Kind, payment.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, err
	}

	payment.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := payment
	return &created, nil
}

func (s *Store) PaymentsSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM payments
		WHERE created_at >= ?
	`, since.UTC().Format(timeLayout)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListPayments(ctx context.Context, since time.Time, limit int) ([]domain.Payment, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, party_kind, party_id, party_name, amount_cents, kind, created_at
		FROM payments
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, since.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, limit)
	for rows.Next() {
		var p domain.Payment
		var createdAt string
		if err := rows.Scan(&p.ID, &p.PartyKind, &p.PartyID, &p.PartyName, &p.AmountCents, &p.Kind, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
