package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"panaderia/backend/internal/cache"
	"panaderia/backend/internal/domain"
	"panaderia/backend/internal/store"
	"panaderia/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.New()
	return New(repo, cache.NoopReportCache{}), repo
}

func mustProduct(t *testing.T, svc *Service, req domain.ProductCreateRequest) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), req)
	if err != nil {
		t.Fatalf("create product %q: %v", req.Name, err)
	}
	return p
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []domain.ProductCreateRequest{
		{Name: "", PriceCents: 100},
		{Name: "  ", PriceCents: 100},
		{Name: "Pan", PriceCents: 0},
		{Name: "Pan", PriceCents: 100, InitialStock: -1},
	}
	for i, req := range cases {
		if _, err := svc.CreateProduct(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestCreateProductDuplicateLeavesCatalogUnchanged(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 120})

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 99})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}

	products, err := svc.ListProducts(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 1 || products[0].PriceCents != 120 {
		t.Fatalf("catalog mutated by rejected create: %+v", products)
	}
}

func TestRecordProductionBeverageRule(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	bread := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Croissant", PriceCents: 150, InitialStock: 10})
	water := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Agua", PriceCents: 100, InitialStock: 10, IsBeverage: true})

	gotBread, err := svc.RecordProduction(ctx, bread.ID, domain.ProductionRequest{Quantity: 4})
	if err != nil {
		t.Fatalf("production: %v", err)
	}
	if gotBread.Stock != 14 || gotBread.ProducedToday != 4 {
		t.Fatalf("bread stock=%d produced=%d, want 14/4", gotBread.Stock, gotBread.ProducedToday)
	}

	gotWater, err := svc.RecordProduction(ctx, water.ID, domain.ProductionRequest{Quantity: 4})
	if err != nil {
		t.Fatalf("production: %v", err)
	}
	if gotWater.Stock != 14 || gotWater.ProducedToday != 0 {
		t.Fatalf("water stock=%d produced=%d, want 14/0", gotWater.Stock, gotWater.ProducedToday)
	}

	if _, err := svc.RecordProduction(ctx, bread.ID, domain.ProductionRequest{Quantity: 0}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("zero quantity err = %v, want ErrInvalidInput", err)
	}
}

func TestPerformClosingDerivation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 150, InitialStock: 10})
	if _, err := svc.RecordProduction(ctx, p.ID, domain.ProductionRequest{Quantity: 20}); err != nil {
		t.Fatalf("production: %v", err)
	}

	resp, err := svc.PerformClosing(ctx, domain.ClosingRequest{
		Date:   "2024-06-01",
		Counts: map[int64]int{p.ID: 12},
	})
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(resp.Records))
	}
	rec := resp.Records[0]
	if rec.OpeningStock != 10 || rec.Produced != 20 || rec.SalesDerived != 18 {
		t.Fatalf("derivation wrong: opening=%d produced=%d sales=%d", rec.OpeningStock, rec.Produced, rec.SalesDerived)
	}
	if rec.RevenueCents != 2700 || resp.TotalRevenueCents != 2700 {
		t.Fatalf("revenue = %d / %d, want 2700", rec.RevenueCents, resp.TotalRevenueCents)
	}

	products, _ := svc.ListProducts(ctx, true)
	if products[0].Stock != 12 || products[0].ProducedToday != 0 {
		t.Fatalf("counters not reset: %+v", products[0])
	}
}

func TestPerformClosingOvercountClampKeepsRawDelta(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Torta", PriceCents: 1500, InitialStock: 2})

	resp, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{p.ID: 5}})
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	rec := resp.Records[0]
	if rec.SalesDerived != 0 || rec.RevenueCents != 0 {
		t.Fatalf("overcount not clamped: sales=%d revenue=%d", rec.SalesDerived, rec.RevenueCents)
	}
	if rec.RawDelta != -3 {
		t.Fatalf("raw delta = %d, want -3", rec.RawDelta)
	}
}

func TestPerformClosingOmittedProductCountedZero(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Empanada", PriceCents: 300, InitialStock: 6})

	resp, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{}})
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if resp.Records[0].CountedStock != 0 || resp.Records[0].SalesDerived != 6 {
		t.Fatalf("omitted product: %+v", resp.Records[0])
	}

	products, _ := svc.ListProducts(ctx, true)
	if products[0].Stock != 0 {
		t.Fatalf("stock = %d, want 0", products[0].Stock)
	}
	_ = p
}

func TestPerformClosingIncludesHiddenProducts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	visible := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 100, InitialStock: 5})
	hidden := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Torta", PriceCents: 1500, InitialStock: 3})
	if _, err := svc.ToggleProductHidden(ctx, hidden.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	// Hidden product left out of the count: it is still closed, counted
	// as zero, its stock zeroed and its sales in the ledger.
	resp, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{visible.ID: 5}})
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if len(resp.Records) != 2 {
		t.Fatalf("records = %d, want 2 (hidden product skipped)", len(resp.Records))
	}

	var hiddenRec *domain.ClosingRecord
	for i := range resp.Records {
		if resp.Records[i].ProductID == hidden.ID {
			hiddenRec = &resp.Records[i]
		}
	}
	if hiddenRec == nil {
		t.Fatalf("hidden product missing from closing: %+v", resp.Records)
	}
	if hiddenRec.CountedStock != 0 || hiddenRec.SalesDerived != 3 || hiddenRec.RevenueCents != 4500 {
		t.Fatalf("hidden product derivation: %+v", hiddenRec)
	}

	products, err := svc.ListProducts(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, p := range products {
		if p.ID == hidden.ID && p.Stock != 0 {
			t.Fatalf("hidden product stock = %d after closing, want 0", p.Stock)
		}
	}
}

func TestPerformClosingNegativeCountRejected(t *testing.T) {
	svc, _ := newTestService()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Pan", PriceCents: 100, InitialStock: 5})

	_, err := svc.PerformClosing(context.Background(), domain.ClosingRequest{Counts: map[int64]int{p.ID: -1}})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPerformClosingEmptyCatalogNoop(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.PerformClosing(context.Background(), domain.ClosingRequest{})
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if len(resp.Records) != 0 || resp.TotalRevenueCents != 0 {
		t.Fatalf("empty catalog closing not a no-op: %+v", resp)
	}
}

func TestPerformClosingIdempotentReclose(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 100, InitialStock: 10})

	first, err := svc.PerformClosing(ctx, domain.ClosingRequest{Date: "2024-06-01", Counts: map[int64]int{p.ID: 4}})
	if err != nil {
		t.Fatalf("first closing: %v", err)
	}
	// Counters were already reset, so the second pass sees opening equal
	// to the prior count and zero production.
	second, err := svc.PerformClosing(ctx, domain.ClosingRequest{Date: "2024-06-01", Counts: map[int64]int{p.ID: 4}})
	if err != nil {
		t.Fatalf("second closing: %v", err)
	}
	rec := second.Records[0]
	if rec.ID != first.Records[0].ID {
		t.Fatalf("re-close added a ledger row: id %d then %d", first.Records[0].ID, rec.ID)
	}
	if rec.OpeningStock != 4 || rec.Produced != 0 || rec.SalesDerived != 0 {
		t.Fatalf("re-close derivation: opening=%d produced=%d sales=%d, want 4/0/0", rec.OpeningStock, rec.Produced, rec.SalesDerived)
	}

	records, err := svc.ListClosings(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ledger rows = %d after re-close, want 1", len(records))
	}
}

func TestPerformClosingAtomicOnFault(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	a := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 100, InitialStock: 10})
	b := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Croissant", PriceCents: 150, InitialStock: 8})

	repo.FailClosingAfter(1)
	_, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{a.ID: 1, b.ID: 1}})
	if !errors.Is(err, store.ErrTransaction) {
		t.Fatalf("err = %v, want ErrTransaction", err)
	}

	products, _ := svc.ListProducts(ctx, true)
	if products[0].Stock != 10 || products[1].Stock != 8 {
		t.Fatalf("catalog mutated by failed closing: %+v", products)
	}
	revenue, _ := svc.RevenueSince(ctx, 1)
	if revenue != 0 {
		t.Fatalf("revenue = %d after failed closing, want 0", revenue)
	}
}

func TestListClosingsOrderedNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustProduct(t, svc, domain.ProductCreateRequest{Name: "Croissant", PriceCents: 150, InitialStock: 5})
	mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 100, InitialStock: 5})

	if _, err := svc.PerformClosing(ctx, domain.ClosingRequest{Date: "2024-06-01", Counts: map[int64]int{1: 4, 2: 4}}); err != nil {
		t.Fatalf("closing: %v", err)
	}
	if _, err := svc.PerformClosing(ctx, domain.ClosingRequest{Date: "2024-06-02", Counts: map[int64]int{1: 4, 2: 4}}); err != nil {
		t.Fatalf("closing: %v", err)
	}

	records, err := svc.ListClosings(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	if records[0].Date.Day() != 2 || records[0].ProductName != "Baguette" {
		t.Fatalf("ordering wrong: first = %s %s", records[0].Date.Format("2006-01-02"), records[0].ProductName)
	}
	if records[1].ProductName != "Croissant" {
		t.Fatalf("within-day ordering wrong: second = %s", records[1].ProductName)
	}
}

func TestRevenueSinceEmptyLedgerIsZero(t *testing.T) {
	svc, _ := newTestService()

	revenue, err := svc.RevenueSince(context.Background(), 7)
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if revenue != 0 {
		t.Fatalf("revenue = %d, want 0", revenue)
	}
}

func TestPayWorkerValidatesPartyAndAmount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	worker, err := svc.CreateWorker(ctx, domain.WorkerCreateRequest{Name: "Maria", PayBasis: "weekly", WageCents: 45000})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}

	pay, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: 45000, Kind: "salary"})
	if err != nil {
		t.Fatalf("pay worker: %v", err)
	}
	if pay.PartyName != "Maria" || pay.PartyKind != domain.PartyKindWorker {
		t.Fatalf("payment snapshot wrong: %+v", pay)
	}

	if _, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: 0}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("zero amount err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.PayWorker(ctx, 999, domain.PaymentRequest{AmountCents: 100}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown worker err = %v, want ErrNotFound", err)
	}
	if _, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: 100, Kind: "invoice"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("invoice kind for worker err = %v, want ErrInvalidInput", err)
	}

	if _, err := svc.ToggleWorkerActive(ctx, worker.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: 100, Kind: "salary"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("inactive worker err = %v, want ErrInvalidInput", err)
	}
}

func TestPaySupplierDefaultsToInvoice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Molinos", MonthlyCostCents: 120000})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	pay, err := svc.PaySupplier(ctx, supplier.ID, domain.PaymentRequest{AmountCents: 120000})
	if err != nil {
		t.Fatalf("pay supplier: %v", err)
	}
	if pay.Kind != domain.PaymentKindInvoice || pay.PartyKind != domain.PartyKindSupplier {
		t.Fatalf("payment = %+v, want invoice/supplier", pay)
	}
}

func TestCashReconciliation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Baguette", PriceCents: 100, InitialStock: 10})

	if _, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{p.ID: 3}}); err != nil {
		t.Fatalf("closing: %v", err)
	}
	worker, err := svc.CreateWorker(ctx, domain.WorkerCreateRequest{Name: "Jose", PayBasis: "daily", WageCents: 8000})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if _, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: 200, Kind: "salary"}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	report, err := svc.CashReconciliation(ctx, 7)
	if err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if report.RevenueCents != 700 || report.PaymentsCents != 200 || report.NetCents != 500 {
		t.Fatalf("report = %+v, want 700/200/500", report)
	}

	if _, err := svc.CashReconciliation(ctx, 14); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("window 14 err = %v, want ErrInvalidInput", err)
	}
}

// countingCache records hits so the caching path itself is observable.
type countingCache struct {
	mu     sync.Mutex
	values map[string]domain.CashReconciliation
	sets   int
	gets   int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.CashReconciliation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.CashReconciliation, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.values == nil {
		c.values = make(map[string]domain.CashReconciliation)
	}
	c.values[key] = *value
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func TestCashReconciliationUsesCacheAndInvalidates(t *testing.T) {
	repo := memory.New()
	cc := &countingCache{}
	svc := New(repo, cc)
	ctx := context.Background()
	p := mustProduct(t, svc, domain.ProductCreateRequest{Name: "Pan", PriceCents: 100, InitialStock: 5})

	if _, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{p.ID: 0}}); err != nil {
		t.Fatalf("closing: %v", err)
	}

	first, err := svc.CashReconciliation(ctx, 7)
	if err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if cc.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cc.sets)
	}

	second, err := svc.CashReconciliation(ctx, 7)
	if err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if second != first {
		t.Fatalf("cached report differs: %+v vs %+v", second, first)
	}
	if cc.sets != 1 {
		t.Fatalf("cache sets = %d after hit, want still 1", cc.sets)
	}

	// A new closing must drop the cached windows.
	if _, err := svc.PerformClosing(ctx, domain.ClosingRequest{Counts: map[int64]int{p.ID: 0}}); err != nil {
		t.Fatalf("closing: %v", err)
	}
	if _, err := svc.CashReconciliation(ctx, 7); err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if cc.sets != 2 {
		t.Fatalf("cache sets = %d after invalidation, want 2", cc.sets)
	}
}

func TestListPaymentsWindowAndLimit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	worker, err := svc.CreateWorker(ctx, domain.WorkerCreateRequest{Name: "Maria", WageCents: 1000})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: int64(100 * (i + 1)), Kind: "bonus"}); err != nil {
			t.Fatalf("pay %d: %v", i, err)
		}
	}

	payments, err := svc.ListPayments(ctx, 7, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2 (limit)", len(payments))
	}
	if payments[0].AmountCents != 300 {
		t.Fatalf("newest first expected, got %+v", payments[0])
	}
}

func TestPaymentsSinceAnchorsAtMidnight(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	worker, err := svc.CreateWorker(ctx, domain.WorkerCreateRequest{Name: "Maria", WageCents: 1000})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if _, err := svc.PayWorker(ctx, worker.ID, domain.PaymentRequest{AmountCents: 700, Kind: "salary"}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	// Window 0 means "since today's midnight", so a payment made earlier
	// the same day is in scope. A rolling now-based anchor would miss it.
	total, err := svc.PaymentsSince(ctx, 0)
	if err != nil {
		t.Fatalf("payments since: %v", err)
	}
	if total != 700 {
		t.Fatalf("total = %d, want 700", total)
	}

	payments, err := svc.ListPayments(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(payments))
	}
}

func TestWorkerPayBasisValidated(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateWorker(context.Background(), domain.WorkerCreateRequest{Name: "X", PayBasis: "monthly"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestClosingDateParsing(t *testing.T) {
	svc, _ := newTestService()
	mustProduct(t, svc, domain.ProductCreateRequest{Name: "Pan", PriceCents: 100, InitialStock: 1})

	_, err := svc.PerformClosing(context.Background(), domain.ClosingRequest{Date: "01/06/2024"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("bad date err = %v, want ErrInvalidInput", err)
	}

	resp, err := svc.PerformClosing(context.Background(), domain.ClosingRequest{Date: "2024-06-01"})
	if err != nil {
		t.Fatalf("closing: %v", err)
	}
	if resp.Date != "2024-06-01" {
		t.Fatalf("date = %s, want 2024-06-01", resp.Date)
	}
	if resp.Message != fmt.Sprintf("closing recorded for 2024-06-01 (%d products)", len(resp.Records)) {
		t.Fatalf("unexpected message: %s", resp.Message)
	}
}
