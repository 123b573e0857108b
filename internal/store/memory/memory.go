package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"panaderia/backend/internal/closing"
	"panaderia/backend/internal/domain"
	"panaderia/backend/internal/store"
)

// Store is the in-memory backend used for dev mode and tests. All maps
// are guarded by mu; returned values are copies so callers never hold a
// reference into the store.
type Store struct {
	mu        sync.RWMutex
	products  map[int64]domain.Product
	closings  map[string]map[int64]domain.ClosingRecord
	workers   map[int64]domain.Worker
	suppliers map[int64]domain.Supplier
	payments  []domain.Payment

	nextProductID  int64
	nextClosingID  int64
	nextWorkerID   int64
	nextSupplierID int64
	nextPaymentID  int64

	// failClosingAfter aborts PerformClosing after staging n products,
	// simulating a mid-transaction write failure. Zero disables it.
	failClosingAfter int
}

func New() *Store {
	return &Store{
		products:  make(map[int64]domain.Product),
		closings:  make(map[string]map[int64]domain.ClosingRecord),
		workers:   make(map[int64]domain.Worker),
		suppliers: make(map[int64]domain.Supplier),
		payments:  make([]domain.Payment, 0, 64),
	}
}

// NewSeeded returns a store preloaded with a small bakery catalog and
// staff roster so dev mode is usable out of the box.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, p := range []domain.Product{
		{Name: "Baguette", PriceCents: 120, Stock: 30},
		{Name: "Croissant", PriceCents: 150, Stock: 24},
		{Name: "Pan de Molde", PriceCents: 250, Stock: 12},
		{Name: "Empanada de Pollo", PriceCents: 300, Stock: 18},
		{Name: "Torta de Chocolate", PriceCents: 1500, Stock: 4},
		{Name: "Agua Mineral 500ml", PriceCents: 100, Stock: 36, IsBeverage: true},
		{Name: "Jugo de Naranja", PriceCents: 180, Stock: 20, IsBeverage: true},
		{Name: "Cafe Embotellado", PriceCents: 220, Stock: 15, IsBeverage: true},
	} {
		p.CreatedAt = now
		if _, err := s.CreateProduct(ctx, p); err != nil {
			panic(fmt.Sprintf("seed product %q: %v", p.Name, err))
		}
	}

	for _, w := range []domain.Worker{
		{Name: "Maria Fernandez", Contact: "555-0101", Role: "panadera", PayBasis: domain.PayBasisWeekly, WageCents: 45000, Active: true},
		{Name: "Jose Ramirez", Contact: "555-0102", Role: "ayudante", PayBasis: domain.PayBasisDaily, WageCents: 8000, Active: true},
	} {
		w.CreatedAt = now
		if _, err := s.CreateWorker(ctx, w); err != nil {
			panic(fmt.Sprintf("seed worker %q: %v", w.Name, err))
		}
	}

	for _, sup := range []domain.Supplier{
		{Name: "Molinos del Sur", Contact: "555-0201", SuppliedProduct: "harina", MonthlyCostCents: 120000, Active: true},
		{Name: "Lacteos Andinos", Contact: "555-0202", SuppliedProduct: "mantequilla", MonthlyCostCents: 60000, Active: true},
	} {
		sup.CreatedAt = now
		if _, err := s.CreateSupplier(ctx, sup); err != nil {
			panic(fmt.Sprintf("seed supplier %q: %v", sup.Name, err))
		}
	}

	return s
}

// FailClosingAfter arms the fault hook: the next PerformClosing aborts
// after staging n products. Used by tests to verify atomicity.
func (s *Store) FailClosingAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failClosingAfter = n
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (s *Store) ListProducts(_ context.Context, includeHidden bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Hidden && !includeHidden {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpInt64(a.ID, b.ID)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, p := range s.products {
		if strings.EqualFold(p.Name, product.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	s.nextProductID++
	product.ID = s.nextProductID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ToggleProductHidden(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Hidden = !product.Hidden
	s.products[id] = product
	toggled := product
	return &toggled, nil
}

func (s *Store) ApplyProduction(_ context.Context, id int64, qty int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return nil, store.ErrInvalidInput
	}
	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.Stock += qty
	if !product.IsBeverage {
		product.ProducedToday += qty
	}
	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) PerformClosing(_ context.Context, date time.Time, counts map[int64]int) ([]domain.ClosingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date = closing.NormalizeDate(date)
	now := time.Now().UTC()
	key := dateKey(date)

	ids := make([]int64, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	// Stage every write first, swap in at the end. An error anywhere
	// before the swap leaves the store untouched.
	stagedProducts := make(map[int64]domain.Product, len(ids))
	stagedRecords := make(map[int64]domain.ClosingRecord, len(ids))
	records := make([]domain.ClosingRecord, 0, len(ids))
	nextClosingID := s.nextClosingID

	existing := s.closings[key]

	for i, id := range ids {
		if s.failClosingAfter > 0 && i >= s.failClosingAfter {
			s.failClosingAfter = 0
			return nil, fmt.Errorf("%w: simulated write failure", store.ErrTransaction)
		}

		p := s.products[id]
		counted := counts[id]
		if counted < 0 {
			return nil, store.ErrInvalidInput
		}

		rec := closing.Derive(p, date, counted, now)
		if prev, ok := existing[id]; ok {
			rec.ID = prev.ID
		} else {
			nextClosingID++
			rec.ID = nextClosingID
		}

		stagedRecords[id] = rec
		stagedProducts[id] = closing.Apply(p, counted)
		records = append(records, rec)
	}

	s.failClosingAfter = 0
	s.nextClosingID = nextClosingID
	if s.closings[key] == nil {
		s.closings[key] = make(map[int64]domain.ClosingRecord, len(ids))
	}
	for id, rec := range stagedRecords {
		s.closings[key][id] = rec
	}
	for id, p := range stagedProducts {
		s.products[id] = p
	}

	return records, nil
}

func (s *Store) ListClosings(_ context.Context, from, to time.Time) ([]domain.ClosingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from = closing.NormalizeDate(from)
	to = closing.NormalizeDate(to)

	records := make([]domain.ClosingRecord, 0, 32)
	for _, byProduct := range s.closings {
		for _, rec := range byProduct {
			if rec.Date.Before(from) || rec.Date.After(to) {
				continue
			}
			records = append(records, rec)
		}
	}

	slices.SortFunc(records, func(a, b domain.ClosingRecord) int {
		if !a.Date.Equal(b.Date) {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		return cmpInt64(a.ProductID, b.ProductID)
	})

	return records, nil
}

func (s *Store) RevenueSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since = closing.NormalizeDate(since)
	var total int64
	for _, byProduct := range s.closings {
		for _, rec := range byProduct {
			if rec.Date.Before(since) {
				continue
			}
			total += rec.RevenueCents
		}
	}
	return total, nil
}

func (s *Store) DailyRevenueSeries(_ context.Context, since time.Time) ([]domain.RevenuePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since = closing.NormalizeDate(since)
	byDate := make(map[string]*domain.RevenuePoint)
	for _, byProduct := range s.closings {
		for _, rec := range byProduct {
			if rec.Date.Before(since) {
				continue
			}
			key := dateKey(rec.Date)
			pt, ok := byDate[key]
			if !ok {
				pt = &domain.RevenuePoint{Date: rec.Date}
				byDate[key] = pt
			}
			pt.RevenueCents += rec.RevenueCents
		}
	}

	points := make([]domain.RevenuePoint, 0, len(byDate))
	for _, pt := range byDate {
		points = append(points, *pt)
	}
	slices.SortFunc(points, func(a, b domain.RevenuePoint) int {
		if a.Date.Before(b.Date) {
			return -1
		}
		if a.Date.After(b.Date) {
			return 1
		}
		return 0
	})

	return points, nil
}

func (s *Store) CreateWorker(_ context.Context, worker domain.Worker) (*domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if worker.Name == "" || worker.WageCents < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, w := range s.workers {
		if strings.EqualFold(w.Name, worker.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	s.nextWorkerID++
	worker.ID = s.nextWorkerID
	worker.Active = true
	if worker.CreatedAt.IsZero() {
		worker.CreatedAt = time.Now().UTC()
	}
	s.workers[worker.ID] = worker
	created := worker
	return &created, nil
}

func (s *Store) ListWorkers(_ context.Context, includeInactive bool) ([]domain.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]domain.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		if !w.Active && !includeInactive {
			continue
		}
		workers = append(workers, w)
	}
	slices.SortFunc(workers, func(a, b domain.Worker) int {
		return cmpInt64(a.ID, b.ID)
	})
	return workers, nil
}

func (s *Store) GetWorker(_ context.Context, id int64) (*domain.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	worker, exists := s.workers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyWorker := worker
	return &copyWorker, nil
}

func (s *Store) ToggleWorkerActive(_ context.Context, id int64) (*domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	worker, exists := s.workers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	worker.Active = !worker.Active
	s.workers[id] = worker
	toggled := worker
	return &toggled, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" || supplier.MonthlyCostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, sup := range s.suppliers {
		if strings.EqualFold(sup.Name, supplier.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	s.nextSupplierID++
	supplier.ID = s.nextSupplierID
	supplier.Active = true
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context, includeInactive bool) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		if !sup.Active && !includeInactive {
			continue
		}
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpInt64(a.ID, b.ID)
	})
	return suppliers, nil
}

func (s *Store) GetSupplier(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ToggleSupplierActive(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, exists := s.suppliers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	supplier.Active = !supplier.Active
	s.suppliers[id] = supplier
	toggled := supplier
	return &toggled, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.payments = append(s.payments, payment)
	created := payment
	return &created, nil
}

func (s *Store) PaymentsSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, p := range s.payments {
		if p.CreatedAt.Before(since) {
			continue
		}
		total += p.AmountCents
	}
	return total, nil
}

func (s *Store) ListPayments(_ context.Context, since time.Time, limit int) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, limit)
	for i := len(s.payments) - 1; i >= 0; i-- {
		p := s.payments[i]
		if p.CreatedAt.Before(since) {
			continue
		}
		payments = append(payments, p)
		if limit > 0 && len(payments) >= limit {
			break
		}
	}
	return payments, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
