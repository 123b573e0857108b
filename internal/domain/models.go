package domain

import "time"

// Product is a catalog entry. Stock and the daily counters are live,
// mutable fields; the daily closing overwrites Stock with the physical
// count and zeroes ProducedToday and SoldToday.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"price_cents"`
	Stock         int       `json:"stock"`
	ProducedToday int       `json:"produced_today"`
	SoldToday     int       `json:"sold_today"`
	IsBeverage    bool      `json:"is_beverage"`
	Hidden        bool      `json:"hidden"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	InitialStock int    `json:"initial_stock"`
	IsBeverage   bool   `json:"is_beverage"`
}

type ProductionRequest struct {
	Quantity int `json:"quantity"`
}

// ClosingRecord is one row of the daily closing ledger, unique per
// (Date, ProductID). RawDelta keeps the pre-clamp available-minus-counted
// value so over-counts stay observable even though SalesDerived is
// clamped at zero.
type ClosingRecord struct {
	ID           int64     `json:"id"`
	Date         time.Time `json:"date"`
	ProductID    int64     `json:"product_id"`
	ProductName  string    `json:"product_name"`
	OpeningStock int       `json:"opening_stock"`
	Produced     int       `json:"produced"`
	CountedStock int       `json:"counted_stock"`
	SalesDerived int       `json:"sales_derived"`
	RevenueCents int64     `json:"revenue_cents"`
	RawDelta     int       `json:"raw_delta"`
	CreatedAt    time.Time `json:"created_at"`
}

type ClosingRequest struct {
	Date   string        `json:"date"`
	Counts map[int64]int `json:"counts"`
}

type ClosingResponse struct {
	Date              string          `json:"date"`
	Records           []ClosingRecord `json:"records"`
	TotalRevenueCents int64           `json:"total_revenue_cents"`
	Message           string          `json:"message"`
}

// RevenuePoint is one day of the aggregated revenue series.
type RevenuePoint struct {
	Date         time.Time `json:"date"`
	RevenueCents int64     `json:"revenue_cents"`
}

type Worker struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Role      string    `json:"role"`
	PayBasis  string    `json:"pay_basis"`
	WageCents int64     `json:"wage_cents"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type WorkerCreateRequest struct {
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	Role      string `json:"role"`
	PayBasis  string `json:"pay_basis"`
	WageCents int64  `json:"wage_cents"`
}

type Supplier struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Contact          string    `json:"contact"`
	SuppliedProduct  string    `json:"supplied_product"`
	MonthlyCostCents int64     `json:"monthly_cost_cents"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name             string `json:"name"`
	Contact          string `json:"contact"`
	SuppliedProduct  string `json:"supplied_product"`
	MonthlyCostCents int64  `json:"monthly_cost_cents"`
}

// Payment is an append-only outgoing payment to a worker or supplier.
// PartyName is snapshotted at payment time so later renames or
// deactivations do not rewrite history.
type Payment struct {
	ID          int64     `json:"id"`
	PartyKind   string    `json:"party_kind"`
	PartyID     int64     `json:"party_id"`
	PartyName   string    `json:"party_name"`
	AmountCents int64     `json:"amount_cents"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Kind        string `json:"kind"`
}

// CashReconciliation compares derived revenue against payments made over
// a trailing window of days.
type CashReconciliation struct {
	Days          int   `json:"days"`
	RevenueCents  int64 `json:"revenue_cents"`
	PaymentsCents int64 `json:"payments_cents"`
	NetCents      int64 `json:"net_cents"`
}

const (
	PartyKindWorker   = "worker"
	PartyKindSupplier = "supplier"
)

const (
	PaymentKindSalary          = "salary"
	PaymentKindBonus           = "bonus"
	PaymentKindThirteenthMonth = "thirteenth_month"
	PaymentKindInvoice         = "invoice"
)

const (
	PayBasisWeekly = "weekly"
	PayBasisDaily  = "daily"
)
