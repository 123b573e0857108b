package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"panaderia/backend/internal/cache"
	"panaderia/backend/internal/closing"
	"panaderia/backend/internal/domain"
	"panaderia/backend/internal/store"
)

const (
	reportCacheTTL = 5 * time.Minute

	cashReconciliationKey7  = "cash-reconciliation:7d"
	cashReconciliationKey30 = "cash-reconciliation:30d"
)

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
}

func New(repo store.Repository, reports cache.ReportCache) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}

	return &Service{
		repo:    repo,
		reports: reports,
	}
}

func (s *Service) ListProducts(ctx context.Context, includeHidden bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeHidden)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Stock:      req.InitialStock,
		IsBeverage: req.IsBeverage,
	})
	if err != nil {
		return domain.Product{}, err
	}

	return *created, nil
}

func (s *Service) ToggleProductHidden(ctx context.Context, id int64) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}
	toggled, err := s.repo.ToggleProductHidden(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *toggled, nil
}

func (s *Service) RecordProduction(ctx context.Context, id int64, req domain.ProductionRequest) (domain.Product, error) {
	if id < 1 || req.Quantity < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}
	updated, err := s.repo.ApplyProduction(ctx, id, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

// PerformClosing runs the end-of-day reconciliation. The date defaults
// to today; products absent from the counts are treated as counted zero.
func (s *Service) PerformClosing(ctx context.Context, req domain.ClosingRequest) (domain.ClosingResponse, error) {
	date := closing.NormalizeDate(time.Now())
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
		if err != nil {
			return domain.ClosingResponse{}, store.ErrInvalidInput
		}
		date = parsed
	}
	for _, counted := range req.Counts {
		if counted < 0 {
			return domain.ClosingResponse{}, store.ErrInvalidInput
		}
	}

	records, err := s.repo.PerformClosing(ctx, date, req.Counts)
	if err != nil {
		return domain.ClosingResponse{}, err
	}

	var total int64
	for _, rec := range records {
		total += rec.RevenueCents
	}

	s.invalidateReports(ctx)

	return domain.ClosingResponse{
		Date:              date.Format("2006-01-02"),
		Records:           records,
		TotalRevenueCents: total,
		Message:           fmt.Sprintf("closing recorded for %s (%d products)", date.Format("2006-01-02"), len(records)),
	}, nil
}

func (s *Service) ListClosings(ctx context.Context, from, to time.Time) ([]domain.ClosingRecord, error) {
	if to.Before(from) {
		return nil, store.ErrInvalidInput
	}
	records, err := s.repo.ListClosings(ctx, from, to)
	if err != nil {
		return nil, err
	}

	// Newest day first, products alphabetical within a day.
	slices.SortFunc(records, func(a, b domain.ClosingRecord) int {
		if !a.Date.Equal(b.Date) {
			if a.Date.After(b.Date) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return records, nil
}

func (s *Service) RevenueSince(ctx context.Context, daysBack int) (int64, error) {
	if daysBack < 0 {
		return 0, store.ErrInvalidInput
	}
	return s.repo.RevenueSince(ctx, closing.NormalizeDate(time.Now()).AddDate(0, 0, -daysBack))
}

func (s *Service) DailyRevenueSeries(ctx context.Context, daysBack int) ([]domain.RevenuePoint, error) {
	if daysBack < 0 {
		return nil, store.ErrInvalidInput
	}
	return s.repo.DailyRevenueSeries(ctx, closing.NormalizeDate(time.Now()).AddDate(0, 0, -daysBack))
}

func (s *Service) CreateWorker(ctx context.Context, req domain.WorkerCreateRequest) (domain.Worker, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.PayBasis = strings.TrimSpace(req.PayBasis)
	if req.PayBasis == "" {
		req.PayBasis = domain.PayBasisWeekly
	}
	if req.Name == "" || req.WageCents < 0 {
		return domain.Worker{}, store.ErrInvalidInput
	}
	if req.PayBasis != domain.PayBasisWeekly && req.PayBasis != domain.PayBasisDaily {
		return domain.Worker{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateWorker(ctx, domain.Worker{
		Name:      req.Name,
		Contact:   strings.TrimSpace(req.Contact),
		Role:      strings.TrimSpace(req.Role),
		PayBasis:  req.PayBasis,
		WageCents: req.WageCents,
	})
	if err != nil {
		return domain.Worker{}, err
	}
	return *created, nil
}

func (s *Service) ListWorkers(ctx context.Context, includeInactive bool) ([]domain.Worker, error) {
	return s.repo.ListWorkers(ctx, includeInactive)
}

func (s *Service) ToggleWorkerActive(ctx context.Context, id int64) (domain.Worker, error) {
	if id < 1 {
		return domain.Worker{}, store.ErrInvalidInput
	}
	toggled, err := s.repo.ToggleWorkerActive(ctx, id)
	if err != nil {
		return domain.Worker{}, err
	}
	return *toggled, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.MonthlyCostCents < 0 {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:             req.Name,
		Contact:          strings.TrimSpace(req.Contact),
		SuppliedProduct:  strings.TrimSpace(req.SuppliedProduct),
		MonthlyCostCents: req.MonthlyCostCents,
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context, includeInactive bool) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, includeInactive)
}

func (s *Service) ToggleSupplierActive(ctx context.Context, id int64) (domain.Supplier, error) {
	if id < 1 {
		return domain.Supplier{}, store.ErrInvalidInput
	}
	toggled, err := s.repo.ToggleSupplierActive(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *toggled, nil
}

var workerPaymentKinds = map[string]bool{
	domain.PaymentKindSalary:          true,
	domain.PaymentKindBonus:           true,
	domain.PaymentKindThirteenthMonth: true,
}

func (s *Service) PayWorker(ctx context.Context, workerID int64, req domain.PaymentRequest) (domain.Payment, error) {
	if workerID < 1 || req.AmountCents < 1 {
		return domain.Payment{}, store.ErrInvalidInput
	}
	req.Kind = strings.TrimSpace(req.Kind)
	if req.Kind == "" {
		req.Kind = domain.PaymentKindSalary
	}
	if !workerPaymentKinds[req.Kind] {
		return domain.Payment{}, store.ErrInvalidInput
	}

	worker, err := s.repo.GetWorker(ctx, workerID)
	if err != nil {
		return domain.Payment{}, err
	}
	if !worker.Active {
		return domain.Payment{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreatePayment(ctx, domain.Payment{
		PartyKind:   domain.PartyKindWorker,
		PartyID:     worker.ID,
		PartyName:   worker.Name,
		AmountCents: req.AmountCents,
		Kind:        req.Kind,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.invalidateReports(ctx)
	return *created, nil
}

func (s *Service) PaySupplier(ctx context.Context, supplierID int64, req domain.PaymentRequest) (domain.Payment, error) {
	if supplierID < 1 || req.AmountCents < 1 {
		return domain.Payment{}, store.ErrInvalidInput
	}
	req.Kind = strings.TrimSpace(req.Kind)
	if req.Kind == "" {
		req.Kind = domain.PaymentKindInvoice
	}
	if req.Kind != domain.PaymentKindInvoice {
		return domain.Payment{}, store.ErrInvalidInput
	}

	supplier, err := s.repo.GetSupplier(ctx, supplierID)
	if err != nil {
		return domain.Payment{}, err
	}
	if !supplier.Active {
		return domain.Payment{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreatePayment(ctx, domain.Payment{
		PartyKind:   domain.PartyKindSupplier,
		PartyID:     supplier.ID,
		PartyName:   supplier.Name,
		AmountCents: req.AmountCents,
		Kind:        req.Kind,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.invalidateReports(ctx)
	return *created, nil
}

func (s *Service) PaymentsSince(ctx context.Context, daysBack int) (int64, error) {
	if daysBack < 0 {
		return 0, store.ErrInvalidInput
	}
	return s.repo.PaymentsSince(ctx, closing.NormalizeDate(time.Now()).AddDate(0, 0, -daysBack))
}

func (s *Service) ListPayments(ctx context.Context, daysBack int, limit int) ([]domain.Payment, error) {
	if daysBack < 0 {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListPayments(ctx, closing.NormalizeDate(time.Now()).AddDate(0, 0, -daysBack), limit)
}

// CashReconciliation reports derived revenue against payments over a 7
// or 30 day trailing window. Results are cached briefly; any cache
// trouble degrades to a direct read.
func (s *Service) CashReconciliation(ctx context.Context, daysBack int) (domain.CashReconciliation, error) {
	var key string
	switch daysBack {
	case 7:
		key = cashReconciliationKey7
	case 30:
		key = cashReconciliationKey30
	default:
		return domain.CashReconciliation{}, store.ErrInvalidInput
	}

	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache get %s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	revenue, err := s.RevenueSince(ctx, daysBack)
	if err != nil {
		return domain.CashReconciliation{}, err
	}
	payments, err := s.PaymentsSince(ctx, daysBack)
	if err != nil {
		return domain.CashReconciliation{}, err
	}

	report := domain.CashReconciliation{
		Days:          daysBack,
		RevenueCents:  revenue,
		PaymentsCents: payments,
		NetCents:      revenue - payments,
	}

	if err := s.reports.Set(ctx, key, &report, reportCacheTTL); err != nil {
		log.Printf("[service] WARN: report cache set %s: %v", key, err)
	}
	return report, nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx, cashReconciliationKey7, cashReconciliationKey30); err != nil {
		log.Printf("[service] WARN: report cache invalidate: %v", err)
	}
}
