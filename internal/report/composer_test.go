package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/cache"
	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/logger"
	"kasirinaja/backoffice/internal/report"
	"kasirinaja/backoffice/internal/store/memory"
)

var day1 = civil.Date{Year: 2024, Month: time.March, Day: 1}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// tickingClock hands out strictly increasing timestamps so UpdatedAt ordering is deterministic.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store    *memory.Store
	engine   *ledger.Engine
	composer *report.Composer
}

func newFixture(t *testing.T, records report.Records, reports cache.Cache[report.Report]) fixture {
	t.Helper()
	s := memory.New()
	clock := &tickingClock{now: day1.In(time.UTC)}
	s.SetClock(clock.Now)

	engine := ledger.NewEngine(s, ledger.Options{Location: time.UTC, MaxRangeDays: 31, Logger: logger.Nop()})
	if records == nil {
		records = s
	}
	composer := report.NewComposer(engine, records, report.Options{
		Cache:    reports,
		CacheTTL: time.Hour,
		Logger:   logger.Nop(),
		Now:      func() time.Time { return day1.AddDays(30).In(time.UTC) },
	})
	return fixture{store: s, engine: engine, composer: composer}
}

func (f fixture) entry(t *testing.T, id string, day civil.Date, minute int, typ domain.TransactionType, amount string, account domain.Account, source domain.Source) {
	t.Helper()
	d := day
	_, err := f.store.AppendTransaction(context.Background(), domain.BalanceTransaction{
		ID:             id,
		Date:           &d,
		AttributedDate: day,
		CreatedAt:      day.In(time.UTC).Add(time.Duration(9*60+minute) * time.Minute),
		Type:           typ,
		Amount:         dec(amount),
		PaymentType:    account.PaymentType(),
		AccountRef:     account.Ref,
		Source:         source,
		SourceID:       "src-" + id,
	})
	require.NoError(t, err)
}

func (f fixture) opening(t *testing.T, day civil.Date, cash string) {
	t.Helper()
	b := domain.NewBalances()
	b.Add(domain.CashAccount(), dec(cash))
	_, err := f.store.SetOpening(context.Background(), b.Snapshot(day))
	require.NoError(t, err)
}

func TestDailyReportSimpleDay(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.opening(t, day1, "1000")
	f.entry(t, "sale", day1, 0, domain.TransactionIncome, "500", domain.CashAccount(), domain.SourceSale)
	f.entry(t, "exp", day1, 30, domain.TransactionExpense, "200", domain.CashAccount(), domain.SourceExpense)

	rep, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)

	assert.True(t, rep.OpeningExplicit)
	assert.True(t, rep.Opening.CashBalance.Equal(dec("1000")))
	assert.True(t, rep.Closing.CashBalance.Equal(dec("1300")))
	assert.False(t, rep.Stale)

	require.Len(t, rep.Timeline, 2)
	assert.Equal(t, "sale", rep.Timeline[0].ID)
	assert.True(t, rep.Timeline[0].Before.Equal(dec("1000")))
	assert.True(t, rep.Timeline[0].After.Equal(dec("1500")))
	assert.True(t, rep.Timeline[1].Before.Equal(dec("1500")))
	assert.True(t, rep.Timeline[1].After.Equal(dec("1300")))

	assert.True(t, rep.Totals.Income.Equal(dec("500")))
	assert.True(t, rep.Totals.Expense.Equal(dec("200")))
	assert.True(t, rep.Totals.Net.Equal(dec("300")))
	assert.True(t, rep.Totals.ByCategory[domain.SourceExpense].Equal(dec("-200")))
	assert.True(t, rep.Totals.ByInstrument[domain.PaymentCash].Equal(dec("300")))
	assert.Equal(t, 2, rep.Totals.Transactions)
}

func TestDailyReportMarksOpeningSeedExcluded(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.opening(t, day1, "1000")
	f.entry(t, "seed", day1, 0, domain.TransactionIncome, "1000", domain.CashAccount(), domain.SourceOpeningBalance)
	f.entry(t, "topup", day1, 10, domain.TransactionIncome, "50", domain.CashAccount(), domain.SourceAddOpeningBalance)

	rep, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	require.Len(t, rep.Timeline, 2)
	assert.True(t, rep.Timeline[0].Excluded)
	assert.True(t, rep.Timeline[0].After.Equal(dec("1000")))
	assert.True(t, rep.Closing.CashBalance.Equal(dec("1050")))
	assert.Equal(t, 1, rep.Totals.Transactions)
	assert.True(t, rep.Totals.Income.Equal(dec("50")))
}

func TestDailyReportPartitionsBackdatedPayments(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	day5 := day1.AddDays(4)

	_, err := f.store.CreateSale(ctx, domain.Sale{
		ID:             "sale-1",
		InvoiceNo:      "INV-1",
		Total:          dec("1000"),
		AttributedDate: day1,
		Payments: []domain.PaymentLine{
			{PaymentType: domain.PaymentCash, Amount: dec("700"), AttributedDate: day1},
		},
	})
	require.NoError(t, err)
	f.entry(t, "p1", day1, 0, domain.TransactionIncome, "700", domain.CashAccount(), domain.SourceSale)

	_, err = f.store.AddSalePayment(ctx, "sale-1", domain.PaymentLine{
		PaymentType:    domain.PaymentBankTransfer,
		AccountRef:     "BCA",
		Amount:         dec("300"),
		AttributedDate: day5,
	})
	require.NoError(t, err)
	f.entry(t, "p2", day5, 0, domain.TransactionIncome, "300", domain.BankAccount("BCA"), domain.SourceSalePayment)

	first, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	require.Len(t, first.Sales, 1)
	sale := first.Sales[0]
	assert.True(t, sale.RecordedToday)
	assert.Equal(t, domain.PaymentStatusPaid, sale.Status)
	assert.True(t, sale.Payments.PaidOnDay.Equal(dec("700")))
	assert.True(t, sale.Payments.PaidOtherDay.Equal(dec("300")))
	assert.Len(t, sale.Payments.OtherDays, 1)
	assert.True(t, first.Totals.SalesRecorded.Equal(dec("1000")))
	assert.True(t, first.Closing.CashBalance.Equal(dec("700")))

	fifth, err := f.composer.BuildDailyReport(ctx, day5)
	require.NoError(t, err)
	require.Len(t, fifth.Sales, 1)
	assert.False(t, fifth.Sales[0].RecordedToday)
	assert.True(t, fifth.Sales[0].Payments.PaidOnDay.Equal(dec("300")))
	assert.True(t, fifth.Sales[0].Payments.ByInstrument[domain.PaymentBankTransfer].Equal(dec("300")))
	assert.True(t, fifth.Totals.SalesRecorded.IsZero())
	assert.True(t, fifth.Opening.CashBalance.Equal(dec("700")))
	assert.True(t, domain.BalancesFromSnapshot(fifth.Closing).Get(domain.BankAccount("BCA")).Equal(dec("300")))
}

func TestDailyReportFlagsStaleClosing(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.entry(t, "a", day1, 0, domain.TransactionIncome, "100", domain.CashAccount(), domain.SourceSale)
	_, err := f.engine.GetClosingBalance(ctx, day1)
	require.NoError(t, err)
	f.entry(t, "late", day1, 60, domain.TransactionIncome, "40", domain.CashAccount(), domain.SourceSale)

	rep, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	assert.True(t, rep.Stale)
	assert.False(t, rep.CarryForwardDrift)
	assert.True(t, rep.Closing.CashBalance.Equal(dec("100")))
	assert.True(t, rep.TimelineClosing.CashBalance.Equal(dec("140")))

	_, err = f.engine.ComputeClosingBalance(ctx, day1)
	require.NoError(t, err)
	rep, err = f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	assert.False(t, rep.Stale)
}

func TestDailyReportFlagsCarryForwardDrift(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	day2 := day1.AddDays(1)

	f.entry(t, "a", day1, 0, domain.TransactionIncome, "100", domain.CashAccount(), domain.SourceSale)
	f.entry(t, "b", day2, 0, domain.TransactionIncome, "10", domain.CashAccount(), domain.SourceSale)
	_, err := f.engine.GetClosingBalance(ctx, day2)
	require.NoError(t, err)

	f.entry(t, "late", day1, 60, domain.TransactionIncome, "40", domain.CashAccount(), domain.SourceSale)
	_, err = f.engine.ComputeClosingBalance(ctx, day1)
	require.NoError(t, err)

	rep, err := f.composer.BuildDailyReport(ctx, day2)
	require.NoError(t, err)
	assert.True(t, rep.Stale)
	assert.True(t, rep.CarryForwardDrift)
	assert.True(t, rep.Opening.CashBalance.Equal(dec("140")))
	assert.True(t, rep.Closing.CashBalance.Equal(dec("110")))
}

func TestRangeReportIsAdditive(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	end := day1.AddDays(4)

	f.opening(t, day1, "250")
	f.entry(t, "a", day1, 0, domain.TransactionIncome, "100", domain.CashAccount(), domain.SourceSale)
	f.entry(t, "b", day1.AddDays(1), 0, domain.TransactionExpense, "30", domain.BankAccount("BCA"), domain.SourcePurchasePayment)
	f.entry(t, "c", day1.AddDays(3), 0, domain.TransactionIncome, "12.50", domain.CardAccount("VISA"), domain.SourceSalePayment)
	f.entry(t, "d", end, 0, domain.TransactionExpense, "7.25", domain.CashAccount(), domain.SourceExpense)

	ranged, err := f.composer.BuildRangeReport(ctx, day1, end)
	require.NoError(t, err)
	require.Len(t, ranged.Days, 5)
	assert.Zero(t, ranged.FailedDays)

	sum := report.Totals{
		ByCategory:   map[domain.Source]decimal.Decimal{},
		ByInstrument: map[domain.PaymentType]decimal.Decimal{},
		ByAccount:    map[string]decimal.Decimal{},
	}
	for day := day1; !day.After(end); day = day.AddDays(1) {
		daily, err := f.composer.BuildDailyReport(ctx, day)
		require.NoError(t, err)
		sum.Add(daily.Totals)
	}
	assert.True(t, ranged.Totals.Equal(sum))

	require.NotNil(t, ranged.Opening)
	require.NotNil(t, ranged.Closing)
	opening := domain.BalancesFromSnapshot(*ranged.Opening)
	closing := domain.BalancesFromSnapshot(*ranged.Closing)
	moved := decimal.Zero
	for account := range closing {
		moved = moved.Add(closing.Get(account).Sub(opening.Get(account)))
	}
	assert.True(t, moved.Equal(ranged.Totals.Net), "net %s vs moved %s", ranged.Totals.Net, moved)
}

type failingRecords struct {
	*memory.Store
	failOn civil.Date
}

func (f failingRecords) ListTransactionsByDay(ctx context.Context, day civil.Date) ([]domain.BalanceTransaction, error) {
	if day == f.failOn {
		return nil, errors.New("read timeout")
	}
	return f.Store.ListTransactionsByDay(ctx, day)
}

func TestRangeReportKeepsFailedDays(t *testing.T) {
	day2 := day1.AddDays(1)
	s := memory.New()
	engine := ledger.NewEngine(s, ledger.Options{Location: time.UTC, Logger: logger.Nop()})
	composer := report.NewComposer(engine, failingRecords{Store: s, failOn: day2}, report.Options{Logger: logger.Nop()})
	ctx := context.Background()

	for i, amount := range []string{"10", "20", "30"} {
		day := day1.AddDays(i)
		_, err := s.AppendTransaction(ctx, domain.BalanceTransaction{
			AttributedDate: day,
			CreatedAt:      day.In(time.UTC).Add(time.Hour),
			Type:           domain.TransactionIncome,
			Amount:         dec(amount),
			PaymentType:    domain.PaymentCash,
			Source:         domain.SourceSale,
		})
		require.NoError(t, err)
	}

	ranged, err := composer.BuildRangeReport(ctx, day1, day1.AddDays(2))
	require.NoError(t, err)
	require.Len(t, ranged.Days, 3)
	assert.Equal(t, 1, ranged.FailedDays)
	assert.Nil(t, ranged.Days[1].Report)
	assert.Contains(t, ranged.Days[1].Error, "read timeout")
	assert.True(t, ranged.Totals.Income.Equal(dec("40")))
	assert.Equal(t, 2, ranged.Totals.Transactions)
}

func TestRangeReportValidatesAndHonorsCancellation(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.composer.BuildRangeReport(context.Background(), day1.AddDays(1), day1)
	assert.ErrorIs(t, err, ledger.ErrInvalidRange)

	_, err = f.composer.BuildRangeReport(context.Background(), day1, day1.AddDays(31))
	assert.ErrorIs(t, err, ledger.ErrInvalidRange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.composer.BuildRangeReport(ctx, day1, day1.AddDays(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDailyReportCacheAndInvalidation(t *testing.T) {
	reports := cache.NewMemory[report.Report]()
	f := newFixture(t, nil, reports)
	ctx := context.Background()

	f.entry(t, "a", day1, 0, domain.TransactionIncome, "5", domain.CashAccount(), domain.SourceSale)
	first, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	require.Len(t, first.Timeline, 1)

	f.entry(t, "b", day1, 5, domain.TransactionIncome, "6", domain.CashAccount(), domain.SourceSale)
	cached, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	assert.Len(t, cached.Timeline, 1)

	f.composer.InvalidateDays(ctx, day1)
	fresh, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	assert.Len(t, fresh.Timeline, 2)
}

func TestDailyReportRejectsInvalidDate(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.composer.BuildDailyReport(context.Background(), civil.Date{Year: 2024, Month: time.February, Day: 30})
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)
}

func TestCSVExport(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.opening(t, day1, "100")
	f.entry(t, "a", day1, 0, domain.TransactionIncome, "25", domain.BankAccount("BCA"), domain.SourceSalePayment)

	rep, err := f.composer.BuildDailyReport(ctx, day1)
	require.NoError(t, err)
	raw, err := report.CSV(rep)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"section", "key", "value"}, rows[0])
	assert.Contains(t, rows, []string{"summary", "date", "2024-03-01"})
	assert.Contains(t, rows, []string{"closing", "bank:BCA", "25.00"})
	assert.Contains(t, rows, []string{"instrument", "bank_transfer", "25.00"})

	last := rows[len(rows)-1]
	assert.Equal(t, "timeline", last[0])
	assert.Equal(t, "a", last[1])
	assert.Equal(t, "bank:BCA", last[5])
}
