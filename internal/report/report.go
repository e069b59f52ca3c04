package report

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
)

// TimelineEntry is one ledger movement with the affected account's balance around it.
type TimelineEntry struct {
	ID          string                 `json:"id"`
	At          time.Time              `json:"at"`
	Type        domain.TransactionType `json:"type"`
	Source      domain.Source          `json:"source"`
	SourceID    string                 `json:"source_id,omitempty"`
	PaymentType domain.PaymentType     `json:"payment_type"`
	Account     string                 `json:"account"`
	Amount      decimal.Decimal        `json:"amount"`
	Before      decimal.Decimal        `json:"before"`
	After       decimal.Decimal        `json:"after"`
	// Excluded marks an opening_balance seed already represented by the opening row.
	Excluded bool   `json:"excluded,omitempty"`
	Note     string `json:"note,omitempty"`
}

// PaymentSummary splits a record's payments into those that count toward the report day
// and those that belong to other days.
type PaymentSummary struct {
	OnDay        []domain.PaymentLine `json:"on_day"`
	OtherDays    []domain.PaymentLine `json:"other_days"`
	PaidOnDay    decimal.Decimal      `json:"paid_on_day"`
	PaidOtherDay decimal.Decimal      `json:"paid_other_days"`
	// ByInstrument sums OnDay per payment type.
	ByInstrument map[domain.PaymentType]decimal.Decimal `json:"by_instrument"`
}

type SaleLine struct {
	ID            string          `json:"id"`
	InvoiceNo     string          `json:"invoice_no"`
	Customer      string          `json:"customer,omitempty"`
	Total         decimal.Decimal `json:"total"`
	RecordedOn    civil.Date      `json:"recorded_on"`
	RecordedToday bool            `json:"recorded_today"`
	Status        string          `json:"status"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Payments      PaymentSummary  `json:"payments"`
}

type PurchaseLine struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Supplier      string          `json:"supplier,omitempty"`
	Total         decimal.Decimal `json:"total"`
	RecordedOn    civil.Date      `json:"recorded_on"`
	RecordedToday bool            `json:"recorded_today"`
	Status        string          `json:"status"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Payments      PaymentSummary  `json:"payments"`
}

// Totals aggregates a day's ledger movements. Range totals are the field-wise sum of
// daily totals.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`

	ByCategory   map[domain.Source]decimal.Decimal      `json:"by_category"`
	ByInstrument map[domain.PaymentType]decimal.Decimal `json:"by_instrument"`
	ByAccount    map[string]decimal.Decimal             `json:"by_account"`

	SalesRecorded     decimal.Decimal `json:"sales_recorded"`
	PurchasesRecorded decimal.Decimal `json:"purchases_recorded"`
	ExpensesRecorded  decimal.Decimal `json:"expenses_recorded"`
	Transactions      int             `json:"transactions"`
}

func newTotals() Totals {
	return Totals{
		Income:            decimal.Zero,
		Expense:           decimal.Zero,
		Net:               decimal.Zero,
		ByCategory:        map[domain.Source]decimal.Decimal{},
		ByInstrument:      map[domain.PaymentType]decimal.Decimal{},
		ByAccount:         map[string]decimal.Decimal{},
		SalesRecorded:     decimal.Zero,
		PurchasesRecorded: decimal.Zero,
		ExpensesRecorded:  decimal.Zero,
	}
}

// Add folds other into t.
func (t *Totals) Add(other Totals) {
	t.Income = t.Income.Add(other.Income)
	t.Expense = t.Expense.Add(other.Expense)
	t.Net = t.Net.Add(other.Net)
	for k, v := range other.ByCategory {
		t.ByCategory[k] = t.ByCategory[k].Add(v)
	}
	for k, v := range other.ByInstrument {
		t.ByInstrument[k] = t.ByInstrument[k].Add(v)
	}
	for k, v := range other.ByAccount {
		t.ByAccount[k] = t.ByAccount[k].Add(v)
	}
	t.SalesRecorded = t.SalesRecorded.Add(other.SalesRecorded)
	t.PurchasesRecorded = t.PurchasesRecorded.Add(other.PurchasesRecorded)
	t.ExpensesRecorded = t.ExpensesRecorded.Add(other.ExpensesRecorded)
	t.Transactions += other.Transactions
}

// Equal compares amounts numerically; missing map keys count as zero.
func (t Totals) Equal(other Totals) bool {
	if !t.Income.Equal(other.Income) || !t.Expense.Equal(other.Expense) || !t.Net.Equal(other.Net) {
		return false
	}
	if !t.SalesRecorded.Equal(other.SalesRecorded) || !t.PurchasesRecorded.Equal(other.PurchasesRecorded) || !t.ExpensesRecorded.Equal(other.ExpensesRecorded) {
		return false
	}
	return t.Transactions == other.Transactions &&
		sameAmounts(t.ByCategory, other.ByCategory) &&
		sameAmounts(t.ByInstrument, other.ByInstrument) &&
		sameAmounts(t.ByAccount, other.ByAccount)
}

func sameAmounts[K comparable](a map[K]decimal.Decimal, b map[K]decimal.Decimal) bool {
	for k, v := range a {
		if !v.Equal(b[k]) {
			return false
		}
	}
	for k, v := range b {
		if !v.Equal(a[k]) {
			return false
		}
	}
	return true
}

type Report struct {
	Date            civil.Date             `json:"date"`
	Opening         domain.BalanceSnapshot `json:"opening"`
	OpeningExplicit bool                   `json:"opening_explicit"`
	Closing         domain.BalanceSnapshot `json:"closing"`
	// TimelineClosing is where replaying the timeline over Opening ends.
	TimelineClosing domain.BalanceSnapshot `json:"timeline_closing"`
	Timeline        []TimelineEntry        `json:"timeline"`
	Sales           []SaleLine             `json:"sales"`
	Purchases       []PurchaseLine         `json:"purchases"`
	Expenses        []domain.Expense       `json:"expenses"`
	Totals          Totals                 `json:"totals"`
	// Stale is set when the stored closing no longer matches the timeline; an explicit
	// recompute brings them back in line.
	Stale bool `json:"stale"`
	// CarryForwardDrift is set when the mismatch comes from an earlier day whose closing
	// changed after this day's closing was stored.
	CarryForwardDrift bool      `json:"carry_forward_drift"`
	GeneratedAt       time.Time `json:"generated_at"`
}

type DayResult struct {
	Date   civil.Date `json:"date"`
	Report *Report    `json:"report,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type RangeReport struct {
	Start      civil.Date              `json:"start"`
	End        civil.Date              `json:"end"`
	Opening    *domain.BalanceSnapshot `json:"opening,omitempty"`
	Closing    *domain.BalanceSnapshot `json:"closing,omitempty"`
	Days       []DayResult             `json:"days"`
	Totals     Totals                  `json:"totals"`
	FailedDays int                     `json:"failed_days"`
}
