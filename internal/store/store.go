package store

import (
	"context"
	"errors"
	"time"

	"panaderia/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("duplicate name")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTransaction   = errors.New("transaction failed")
)

// Repository is the storage surface the service layer runs against.
// PerformClosing is the only multi-row write and must be atomic: either
// every ledger row is upserted and every product reset, or nothing is.
type Repository interface {
	ListProducts(ctx context.Context, includeHidden bool) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ToggleProductHidden(ctx context.Context, id int64) (*domain.Product, error)
	ApplyProduction(ctx context.Context, id int64, qty int) (*domain.Product, error)

	PerformClosing(ctx context.Context, date time.Time, counts map[int64]int) ([]domain.ClosingRecord, error)
	ListClosings(ctx context.Context, from, to time.Time) ([]domain.ClosingRecord, error)
	RevenueSince(ctx context.Context, since time.Time) (int64, error)
	DailyRevenueSeries(ctx context.Context, since time.Time) ([]domain.RevenuePoint, error)

	CreateWorker(ctx context.Context, worker domain.Worker) (*domain.Worker, error)
	ListWorkers(ctx context.Context, includeInactive bool) ([]domain.Worker, error)
	GetWorker(ctx context.Context, id int64) (*domain.Worker, error)
	ToggleWorkerActive(ctx context.Context, id int64) (*domain.Worker, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, includeInactive bool) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error)
	ToggleSupplierActive(ctx context.Context, id int64) (*domain.Supplier, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	PaymentsSince(ctx context.Context, since time.Time) (int64, error)
	ListPayments(ctx context.Context, since time.Time, limit int) ([]domain.Payment, error)
}
