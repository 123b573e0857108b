package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"panaderia/backend/internal/closing"
	"panaderia/backend/internal/domain"
	"panaderia/backend/internal/store"
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

// migrations are applied in order and tracked in schema_migrations, so
// a newer binary can extend the schema of an existing database.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		price_cents BIGINT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		produced_today INTEGER NOT NULL DEFAULT 0,
		sold_today INTEGER NOT NULL DEFAULT 0,
		is_beverage BOOLEAN NOT NULL DEFAULT false,
		hidden BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS closings (
		id BIGSERIAL PRIMARY KEY,
		closing_date DATE NOT NULL,
		product_id BIGINT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		opening_stock INTEGER NOT NULL,
		produced INTEGER NOT NULL,
		counted_stock INTEGER NOT NULL,
		sales_derived INTEGER NOT NULL,
		revenue_cents BIGINT NOT NULL,
		raw_delta INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (closing_date, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS workers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		pay_basis TEXT NOT NULL DEFAULT 'weekly',
		wage_cents BIGINT NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		supplied_product TEXT NOT NULL DEFAULT '',
		monthly_cost_cents BIGINT NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		party_kind TEXT NOT NULL,
		party_id BIGINT NOT NULL,
		party_name TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_closings_date ON closings (closing_date)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments (created_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, includeHidden bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at
		FROM products
		WHERE $1 OR hidden = false
		ORDER BY id
	`, includeHidden)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.ProducedToday, &p.SoldToday, &p.IsBeverage, &p.Hidden, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
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

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at)
		VALUES ($1,$2,$3,0,0,$4,false,now())
		RETURNING id, created_at
	`, product.Name, product.PriceCents, product.Stock, product.IsBeverage).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	product.CreatedAt = product.CreatedAt.UTC()
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.ProducedToday, &p.SoldToday, &p.IsBeverage, &p.Hidden, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) ToggleProductHidden(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET hidden = NOT hidden
		WHERE id = $1
		RETURNING id, name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at
	`, id).Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.ProducedToday, &p.SoldToday, &p.IsBeverage, &p.Hidden, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) ApplyProduction(ctx context.Context, id int64, qty int) (*domain.Product, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
			produced_today = produced_today + CASE WHEN is_beverage THEN 0 ELSE $2 END
		WHERE id = $1
		RETURNING id, name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at
	`, id, qty).Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.ProducedToday, &p.SoldToday, &p.IsBeverage, &p.Hidden, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) PerformClosing(ctx context.Context, date time.Time, counts map[int64]int) ([]domain.ClosingRecord, error) {
	date = closing.NormalizeDate(date)
	for _, counted := range counts {
		if counted < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, price_cents, stock, produced_today, sold_today, is_beverage, hidden, created_at
		FROM products
		ORDER BY id
		FOR UPDATE
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
	}
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.ProducedToday, &p.SoldToday, &p.IsBeverage, &p.Hidden, &p.CreatedAt); err != nil {
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
	records := make([]domain.ClosingRecord, 0, len(products))
	for _, p := range products {
		rec := closing.Derive(p, date, counts[p.ID], now)

		err := tx.QueryRowContext(ctx, `
			INSERT INTO closings (closing_date, product_id, product_name, opening_stock, produced,
				counted_stock, sales_derived, revenue_cents, raw_delta, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (closing_date, product_id)
			DO UPDATE SET product_name = EXCLUDED.product_name,
				opening_stock = EXCLUDED.opening_stock,
				produced = EXCLUDED.produced,
				counted_stock = EXCLUDED.counted_stock,
				sales_derived = EXCLUDED.sales_derived,
				revenue_cents = EXCLUDED.revenue_cents,
				raw_delta = EXCLUDED.raw_delta,
				created_at = EXCLUDED.created_at
			RETURNING id
		`, date, rec.ProductID, rec.ProductName, rec.OpeningStock, rec.Produced,
			rec.CountedStock, rec.SalesDerived, rec.RevenueCents, rec.RawDelta, rec.CreatedAt).Scan(&rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrTransaction, err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = $2, produced_today = 0, sold_today = 0
			WHERE id = $1
		`, p.ID, rec.CountedStock)
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

func (s *Store) ListClosings(ctx context.Context, from, to time.Time) ([]domain.ClosingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, closing_date, product_id, product_name, opening_stock, produced,
			counted_stock, sales_derived, revenue_cents, raw_delta, created_at
		FROM closings
		WHERE closing_date >= $1 AND closing_date <= $2
		ORDER BY closing_date, product_id
	`, closing.NormalizeDate(from), closing.NormalizeDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanClosings(rows)
}

func scanClosings(rows *sql.Rows) ([]domain.ClosingRecord, error) {
	records := make([]domain.ClosingRecord, 0, 64)
	for rows.Next() {
		var rec domain.ClosingRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.ProductID, &rec.ProductName, &rec.OpeningStock,
			&rec.Produced, &rec.CountedStock, &rec.SalesDerived, &rec.RevenueCents, &rec.RawDelta, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Date = closing.NormalizeDate(rec.Date)
		rec.CreatedAt = rec.CreatedAt.UTC()
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
		WHERE closing_date >= $1
	`, closing.NormalizeDate(since)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DailyRevenueSeries(ctx context.Context, since time.Time) ([]domain.RevenuePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT closing_date, SUM(revenue_cents)
		FROM closings
		WHERE closing_date >= $1
		GROUP BY closing_date
		ORDER BY closing_date
	`, closing.NormalizeDate(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.RevenuePoint, 0, 31)
	for rows.Next() {
		var pt domain.RevenuePoint
		if err := rows.Scan(&pt.Date, &pt.RevenueCents); err != nil {
			return nil, err
		}
		pt.Date = closing.NormalizeDate(pt.Date)
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) CreateWorker(ctx context.Context, worker domain.Worker) (*domain.Worker, error) {
	if worker.Name == "" || worker.WageCents < 0 {
		return nil, store.ErrInvalidInput
	}

	worker.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workers (name, contact, role, pay_basis, wage_cents, active, created_at)
		VALUES ($1,$2,$3,$4,$5,true,now())
		RETURNING id, created_at
	`, worker.Name, worker.Contact, worker.Role, worker.PayBasis, worker.WageCents).Scan(&worker.ID, &worker.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	worker.CreatedAt = worker.CreatedAt.UTC()
	created := worker
	return &created, nil
}

func (s *Store) ListWorkers(ctx context.Context, includeInactive bool) ([]domain.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, role, pay_basis, wage_cents, active, created_at
		FROM workers
		WHERE $1 OR active = true
		ORDER BY id
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workers := make([]domain.Worker, 0, 16)
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.ID, &w.Name, &w.Contact, &w.Role, &w.PayBasis, &w.WageCents, &w.Active, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return workers, nil
}

func (s *Store) GetWorker(ctx context.Context, id int64) (*domain.Worker, error) {
	var w domain.Worker
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, role, pay_basis, wage_cents, active, created_at
		FROM workers
		WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.Contact, &w.Role, &w.PayBasis, &w.WageCents, &w.Active, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return &w, nil
}

func (s *Store) ToggleWorkerActive(ctx context.Context, id int64) (*domain.Worker, error) {
	var w domain.Worker
	err := s.db.QueryRowContext(ctx, `
		UPDATE workers
		SET active = NOT active
		WHERE id = $1
		RETURNING id, name, contact, role, pay_basis, wage_cents, active, created_at
	`, id).Scan(&w.ID, &w.Name, &w.Contact, &w.Role, &w.PayBasis, &w.WageCents, &w.Active, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return &w, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" || supplier.MonthlyCostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	supplier.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact, supplied_product, monthly_cost_cents, active, created_at)
		VALUES ($1,$2,$3,$4,true,now())
		RETURNING id, created_at
	`, supplier.Name, supplier.Contact, supplier.SuppliedProduct, supplier.MonthlyCostCents).Scan(&supplier.ID, &supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	supplier.CreatedAt = supplier.CreatedAt.UTC()
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context, includeInactive bool) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, supplied_product, monthly_cost_cents, active, created_at
		FROM suppliers
		WHERE $1 OR active = true
		ORDER BY id
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.SuppliedProduct, &sup.MonthlyCostCents, &sup.Active, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, supplied_product, monthly_cost_cents, active, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.SuppliedProduct, &sup.MonthlyCostCents, &sup.Active, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	return &sup, nil
}

func (s *Store) ToggleSupplierActive(ctx context.Context, id int64) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		UPDATE suppliers
		SET active = NOT active
		WHERE id = $1
		RETURNING id, name, contact, supplied_product, monthly_cost_cents, active, created_at
	`, id).Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.SuppliedProduct, &sup.MonthlyCostCents, &sup.Active, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	return &sup, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payments (party_kind, party_id, party_name, amount_cents, kind, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, payment.PartyKind, payment.PartyID, payment.PartyName, payment.AmountCents, payment.Kind, payment.CreatedAt).Scan(&payment.ID)
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
		WHERE created_at >= $1
	`, since).Scan(&total)
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
		WHERE created_at >= $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, limit)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.PartyKind, &p.PartyID, &p.PartyName, &p.AmountCents, &p.Kind, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
