package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/cache"
	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/store"
)

var (
	reportBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_report_builds_total",
		Help: "Daily reports served, by how they were obtained.",
	}, []string{"result"})

	rangeFailedDays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_report_range_failed_days_total",
		Help: "Days that could not be built inside a range report.",
	})
)

// Balances is the part of the ledger engine the composer reads balances through.
type Balances interface {
	ResolveOpening(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, bool, error)
	GetClosingBalance(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, error)
	Location() *time.Location
	MaxRangeDays() int
}

// Records is the read side of the store used for timelines and business record summaries.
type Records interface {
	GetClosing(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
	ListTransactionsByDay(ctx context.Context, day civil.Date) ([]domain.BalanceTransaction, error)
	ListSalesTouching(ctx context.Context, day civil.Date) ([]domain.Sale, error)
	ListPurchasesTouching(ctx context.Context, day civil.Date) ([]domain.Purchase, error)
	ListExpensesByDay(ctx context.Context, day civil.Date) ([]domain.Expense, error)
}

type Options struct {
	Cache    cache.Cache[Report]
	CacheTTL time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Composer struct {
	balances Balances
	records  Records
	cache    cache.Cache[Report]
	cacheTTL time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewComposer(balances Balances, records Records, opts Options) *Composer {
	if opts.Cache == nil {
		opts.Cache = cache.Noop[Report]{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Composer{
		balances: balances,
		records:  records,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      opts.Logger,
		now:      opts.Now,
	}
}

func cacheKey(day civil.Date) string {
	return "daily:" + day.String()
}

// InvalidateDays drops cached reports for each day and the day after it, whose opening
// carries the day's closing forward.
func (c *Composer) InvalidateDays(ctx context.Context, days ...civil.Date) {
	if len(days) == 0 {
		return
	}
	keys := make([]string, 0, len(days)*2)
	for _, day := range days {
		keys = append(keys, cacheKey(day), cacheKey(day.AddDays(1)))
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.log.Warn().Err(err).Int("days", len(days)).Msg("report cache invalidation failed")
	}
}

// BuildDailyReport assembles the balance report of one day. Reports of past days are
// served from cache when available.
func (c *Composer) BuildDailyReport(ctx context.Context, day civil.Date) (Report, error) {
	if !day.IsValid() {
		return Report{}, fmt.Errorf("%w: %s", ledger.ErrInvalidDate, day)
	}
	cacheable := day.Before(civil.DateOf(c.now().In(c.balances.Location())))

	if cacheable {
		cached, ok, err := c.cache.Get(ctx, cacheKey(day))
		if err != nil {
			c.log.Warn().Err(err).Str("date", day.String()).Msg("report cache read failed")
		}
		if ok {
			reportBuilds.WithLabelValues("cached").Inc()
			return *cached, nil
		}
	}

	rep, err := c.compose(ctx, day)
	if err != nil {
		reportBuilds.WithLabelValues("error").Inc()
		return Report{}, err
	}
	reportBuilds.WithLabelValues("built").Inc()

	if cacheable {
		if err := c.cache.Set(ctx, cacheKey(day), &rep, c.cacheTTL); err != nil {
			c.log.Warn().Err(err).Str("date", day.String()).Msg("report cache write failed")
		}
	}
	return rep, nil
}

func (c *Composer) compose(ctx context.Context, day civil.Date) (Report, error) {
	opening, explicit, err := c.balances.ResolveOpening(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("resolve opening %s: %w", day, err)
	}
	closing, err := c.balances.GetClosingBalance(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("closing %s: %w", day, err)
	}

	entries, err := c.records.ListTransactionsByDay(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("load transactions %s: %w", day, err)
	}
	end, steps, err := ledger.Replay(domain.BalancesFromSnapshot(opening), entries, explicit)
	if err != nil {
		return Report{}, err
	}

	sales, err := c.records.ListSalesTouching(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("load sales %s: %w", day, err)
	}
	purchases, err := c.records.ListPurchasesTouching(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("load purchases %s: %w", day, err)
	}
	expenses, err := c.records.ListExpensesByDay(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("load expenses %s: %w", day, err)
	}

	rep := Report{
		Date:            day,
		Opening:         opening,
		OpeningExplicit: explicit,
		Closing:         closing,
		TimelineClosing: end.Snapshot(day),
		Timeline:        timeline(steps),
		Sales:           make([]SaleLine, 0, len(sales)),
		Purchases:       make([]PurchaseLine, 0, len(purchases)),
		Expenses:        expenses,
		Totals:          totalsOf(steps),
		GeneratedAt:     c.now().UTC(),
	}
	if rep.Expenses == nil {
		rep.Expenses = []domain.Expense{}
	}
	for _, sale := range sales {
		line := SaleLine{
			ID:            sale.ID,
			InvoiceNo:     sale.InvoiceNo,
			Customer:      sale.Customer,
			Total:         sale.Total,
			RecordedOn:    sale.AttributedDate,
			RecordedToday: sale.AttributedDate == day,
			Status:        sale.PaymentStatus(),
			Outstanding:   sale.Outstanding(),
			Payments:      partition(sale.Payments, day),
		}
		if line.RecordedToday {
			rep.Totals.SalesRecorded = rep.Totals.SalesRecorded.Add(sale.Total)
		}
		rep.Sales = append(rep.Sales, line)
	}
	for _, purchase := range purchases {
		line := PurchaseLine{
			ID:            purchase.ID,
			Reference:     purchase.Reference,
			Supplier:      purchase.Supplier,
			Total:         purchase.Total,
			RecordedOn:    purchase.AttributedDate,
			RecordedToday: purchase.AttributedDate == day,
			Status:        purchase.PaymentStatus(),
			Outstanding:   purchase.Outstanding(),
			Payments:      partition(purchase.Payments, day),
		}
		if line.RecordedToday {
			rep.Totals.PurchasesRecorded = rep.Totals.PurchasesRecorded.Add(purchase.Total)
		}
		rep.Purchases = append(rep.Purchases, line)
	}
	for _, expense := range rep.Expenses {
		rep.Totals.ExpensesRecorded = rep.Totals.ExpensesRecorded.Add(expense.Amount)
	}

	rep.Stale = !rep.TimelineClosing.Equal(closing)
	if rep.Stale && !explicit {
		drift, err := c.carryForwardDrift(ctx, day, closing)
		if err != nil {
			return Report{}, err
		}
		rep.CarryForwardDrift = drift
	}
	if rep.Stale {
		c.log.Info().
			Str("date", day.String()).
			Bool("carry_forward_drift", rep.CarryForwardDrift).
			Msg("stored closing differs from timeline")
	}
	return rep, nil
}

// carryForwardDrift reports whether closing(day-1) was rewritten after closing(day) was stored.
func (c *Composer) carryForwardDrift(ctx context.Context, day civil.Date, closing domain.BalanceSnapshot) (bool, error) {
	previous, err := c.records.GetClosing(ctx, day.AddDays(-1))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load closing %s: %w", day.AddDays(-1), err)
	}
	return previous.UpdatedAt.After(closing.UpdatedAt), nil
}

// BuildRangeReport builds start..end day by day. A day that fails is kept with its error
// and left out of the totals; cancellation stops the walk.
func (c *Composer) BuildRangeReport(ctx context.Context, start civil.Date, end civil.Date) (RangeReport, error) {
	if err := ledger.ValidateRange(start, end, c.balances.MaxRangeDays()); err != nil {
		return RangeReport{}, err
	}

	out := RangeReport{
		Start:  start,
		End:    end,
		Days:   make([]DayResult, 0, end.DaysSince(start)+1),
		Totals: newTotals(),
	}
	for day := start; !day.After(end); day = day.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return RangeReport{}, err
		}
		rep, err := c.BuildDailyReport(ctx, day)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return RangeReport{}, ctxErr
			}
			rangeFailedDays.Inc()
			c.log.Warn().Err(err).Str("date", day.String()).Msg("range report day failed")
			out.Days = append(out.Days, DayResult{Date: day, Error: err.Error()})
			out.FailedDays++
			continue
		}
		out.Totals.Add(rep.Totals)
		out.Days = append(out.Days, DayResult{Date: day, Report: &rep})
		if day == start {
			opening := rep.Opening
			out.Opening = &opening
		}
		if day == end {
			closing := rep.Closing
			out.Closing = &closing
		}
	}
	return out, nil
}

func timeline(steps []ledger.Step) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(steps))
	for _, step := range steps {
		out = append(out, TimelineEntry{
			ID:          step.Entry.ID,
			At:          step.Entry.CreatedAt,
			Type:        step.Entry.Type,
			Source:      step.Entry.Source,
			SourceID:    step.Entry.SourceID,
			PaymentType: step.Entry.PaymentType,
			Account:     step.Account.String(),
			Amount:      step.Entry.Amount,
			Before:      step.Before,
			After:       step.After,
			Excluded:    step.Skipped,
			Note:        step.Entry.Note,
		})
	}
	return out
}

func totalsOf(steps []ledger.Step) Totals {
	t := newTotals()
	for _, step := range steps {
		if step.Skipped {
			continue
		}
		entry := step.Entry
		if entry.Type == domain.TransactionExpense {
			t.Expense = t.Expense.Add(entry.Amount)
		} else {
			t.Income = t.Income.Add(entry.Amount)
		}
		delta := entry.Delta()
		t.ByCategory[entry.Source] = t.ByCategory[entry.Source].Add(delta)
		t.ByInstrument[entry.PaymentType] = t.ByInstrument[entry.PaymentType].Add(delta)
		t.ByAccount[step.Account.String()] = t.ByAccount[step.Account.String()].Add(delta)
		t.Transactions++
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}

func partition(lines []domain.PaymentLine, day civil.Date) PaymentSummary {
	out := PaymentSummary{
		OnDay:        []domain.PaymentLine{},
		OtherDays:    []domain.PaymentLine{},
		PaidOnDay:    decimal.Zero,
		PaidOtherDay: decimal.Zero,
		ByInstrument: map[domain.PaymentType]decimal.Decimal{},
	}
	for _, line := range lines {
		if line.AttributedDate == day {
			out.OnDay = append(out.OnDay, line)
			out.PaidOnDay = out.PaidOnDay.Add(line.Amount)
			out.ByInstrument[line.PaymentType] = out.ByInstrument[line.PaymentType].Add(line.Amount)
			continue
		}
		out.OtherDays = append(out.OtherDays, line)
		out.PaidOtherDay = out.PaidOtherDay.Add(line.Amount)
	}
	sort.SliceStable(out.OnDay, func(i, j int) bool { return out.OnDay[i].CreatedAt.Before(out.OnDay[j].CreatedAt) })
	return out
}
