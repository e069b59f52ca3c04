package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/cache"
	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/logger"
	"kasirinaja/backoffice/internal/report"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/store/memory"
)

var day1 = civil.Date{Year: 2024, Month: time.March, Day: 1}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type testEnv struct {
	svc     *Service
	store   *memory.Store
	engine  *ledger.Engine
	reports *report.Composer
	now     time.Time
}

func newTestService(t *testing.T, wrap func(*memory.Store) store.Repository) *testEnv {
	t.Helper()
	env := &testEnv{store: memory.New(), now: day1.In(time.UTC).Add(10 * time.Hour)}
	env.engine = ledger.NewEngine(env.store, ledger.Options{
		Location:  time.UTC,
		Tolerance: dec("0.01"),
		Logger:    logger.Nop(),
	})
	env.reports = report.NewComposer(env.engine, env.store, report.Options{
		Cache:    cache.NewMemory[report.Report](),
		CacheTTL: time.Hour,
		Logger:   logger.Nop(),
		Now:      func() time.Time { return day1.AddDays(60).In(time.UTC) },
	})

	var repo store.Repository = env.store
	if wrap != nil {
		repo = wrap(env.store)
	}
	env.svc = New(repo, env.engine, env.reports, Options{
		Logger: logger.Nop(),
		Now:    func() time.Time { return env.now },
	})
	return env
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func (env *testEnv) setOpening(t *testing.T, day civil.Date, cash string) {
	t.Helper()
	_, err := env.svc.SetOpeningBalance(adminContext(), domain.OpeningBalanceRequest{
		Date:        day.String(),
		CashBalance: dec(cash),
	})
	if err != nil {
		t.Fatalf("set opening failed: %v", err)
	}
}

func (env *testEnv) storedClosing(t *testing.T, day civil.Date) domain.Balances {
	t.Helper()
	snap, err := env.store.GetClosing(context.Background(), day)
	if err != nil {
		t.Fatalf("closing %s: %v", day, err)
	}
	return domain.BalancesFromSnapshot(*snap)
}

func TestRecordSaleAppendsEntriesAndPatchesStoredClosing(t *testing.T) {
	env := newTestService(t, nil)
	ctx := context.Background()
	env.setOpening(t, day1, "100")
	if _, err := env.engine.GetClosingBalance(ctx, day1); err != nil {
		t.Fatalf("closing failed: %v", err)
	}

	sale, err := env.svc.RecordSale(ctx, domain.SaleCreateRequest{
		InvoiceNo: "INV-001",
		Total:     dec("500"),
		Date:      day1.String(),
		Payments: []domain.PaymentRequest{
			{PaymentType: domain.PaymentCash, Amount: dec("300")},
			{PaymentType: domain.PaymentBankTransfer, AccountRef: "BCA", Amount: dec("200")},
		},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if sale.PaymentStatus() != domain.PaymentStatusPaid {
		t.Fatalf("expected paid sale, got %s", sale.PaymentStatus())
	}

	closing := env.storedClosing(t, day1)
	if !closing.Get(domain.CashAccount()).Equal(dec("400")) {
		t.Fatalf("expected cash 400, got %s", closing.Get(domain.CashAccount()))
	}
	if !closing.Get(domain.BankAccount("BCA")).Equal(dec("200")) {
		t.Fatalf("expected BCA 200, got %s", closing.Get(domain.BankAccount("BCA")))
	}

	entries, err := env.store.ListTransactionsBySource(ctx, domain.SourceSale, sale.ID)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.BeforeBalance == nil || entry.AfterBalance == nil || entry.ChangeAmount == nil {
			t.Fatalf("entry %s missing audit balances", entry.ID)
		}
		if entry.PaymentType == domain.PaymentCash && !entry.AfterBalance.Equal(dec("400")) {
			t.Fatalf("expected cash after balance 400, got %s", entry.AfterBalance)
		}
	}

	full, err := env.engine.ComputeClosingBalance(ctx, day1)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if !domain.BalancesFromSnapshot(full).Equal(closing) {
		t.Fatalf("patched closing %v differs from full recompute %v", closing, full)
	}
}

func TestLaterSalePaymentLandsOnItsOwnDay(t *testing.T) {
	env := newTestService(t, nil)
	ctx := context.Background()
	day3 := day1.AddDays(2)

	sale, err := env.svc.RecordSale(ctx, domain.SaleCreateRequest{
		InvoiceNo: "INV-002",
		Total:     dec("1000"),
		Date:      day1.String(),
		Payments:  []domain.PaymentRequest{{PaymentType: domain.PaymentCash, Amount: dec("700")}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	env.now = day3.In(time.UTC).Add(9 * time.Hour)
	updated, err := env.svc.AddSalePayment(ctx, sale.ID, domain.PaymentRequest{PaymentType: domain.PaymentCash, Amount: dec("300")})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if updated.PaymentStatus() != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus())
	}
	if got := updated.Payments[1].AttributedDate; got != day3 {
		t.Fatalf("expected later payment on %s, got %s", day3, got)
	}

	onDay3, err := env.store.ListTransactionsByDay(ctx, day3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(onDay3) != 1 || onDay3[0].Source != domain.SourceSalePayment {
		t.Fatalf("expected one sale_payment entry on %s, got %+v", day3, onDay3)
	}

	_, err = env.svc.AddSalePayment(ctx, sale.ID, domain.PaymentRequest{PaymentType: domain.PaymentCash, Amount: dec("1")})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected overpayment to be rejected, got %v", err)
	}

	_, err = env.svc.AddSalePayment(ctx, "sale-missing", domain.PaymentRequest{PaymentType: domain.PaymentCash, Amount: dec("1")})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordSaleRejectsOverpayment(t *testing.T) {
	env := newTestService(t, nil)

	_, err := env.svc.RecordSale(context.Background(), domain.SaleCreateRequest{
		InvoiceNo: "INV-003",
		Total:     dec("100"),
		Payments:  []domain.PaymentRequest{{PaymentType: domain.PaymentCash, Amount: dec("100.01")}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction, got %v", err)
	}
}

func TestPurchaseRejectsInsufficientBalance(t *testing.T) {
	env := newTestService(t, nil)
	ctx := context.Background()
	env.setOpening(t, day1, "100")

	_, err := env.svc.RecordPurchase(ctx, domain.PurchaseCreateRequest{
		Reference: "PO-1",
		Total:     dec("150"),
		Date:      day1.String(),
		Payments:  []domain.PaymentRequest{{PaymentType: domain.PaymentCash, Amount: dec("150")}},
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	purchases, _ := env.store.ListPurchasesTouching(ctx, day1)
	entries, _ := env.store.ListTransactionsByDay(ctx, day1)
	if len(purchases) != 0 || len(entries) != 0 {
		t.Fatalf("expected nothing written, got %d purchases and %d entries", len(purchases), len(entries))
	}

	purchase, err := env.svc.RecordPurchase(ctx, domain.PurchaseCreateRequest{
		Reference: "PO-2",
		Total:     dec("150"),
		Date:      day1.String(),
		Payments:  []domain.PaymentRequest{{PaymentType: domain.PaymentCash, Amount: dec("80")}},
	})
	if err != nil {
		t.Fatalf("record purchase failed: %v", err)
	}
	if purchase.PaymentStatus() != domain.PaymentStatusPartial {
		t.Fatalf("expected partial, got %s", purchase.PaymentStatus())
	}

	_, err = env.svc.AddPurchasePayment(ctx, purchase.ID, domain.PaymentRequest{PaymentType: domain.PaymentCash, Amount: dec("70"), Date: day1.String()})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance for the second payment, got %v", err)
	}
}

func TestExpenseRecordsAndReconciles(t *testing.T) {
	env := newTestService(t, nil)
	ctx := context.Background()
	env.setOpening(t, day1, "500")

	if _, err := env.svc.RecordSale(ctx, domain.SaleCreateRequest{
		InvoiceNo: "INV-010",
		Total:     dec("250"),
		Date:      day1.String(),
		Payments:  []domain.PaymentRequest{{PaymentType: domain.PaymentCard, AccountRef: "VISA", Amount: dec("250")}},
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	expense, err := env.svc.RecordExpense(ctx, domain.ExpenseCreateRequest{
		Category:    "utilities",
		Description: "electricity",
		Amount:      dec("120"),
		PaymentType: domain.PaymentCash,
		Date:        day1.String(),
	})
	if err != nil {
		t.Fatalf("record expense failed: %v", err)
	}
	if expense.AttributedDate != day1 {
		t.Fatalf("expected expense on %s, got %s", day1, expense.AttributedDate)
	}

	result, err := env.svc.ReconcileDay(ctx, day1.String())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.Consistent {
		t.Fatalf("expected consistent day, mismatches: %+v", result.Mismatches)
	}

	closing, err := env.svc.GetClosingBalance(ctx, day1.String())
	if err != nil {
		t.Fatalf("closing failed: %v", err)
	}
	if !closing.CashBalance.Equal(dec("380")) {
		t.Fatalf("expected cash 380, got %s", closing.CashBalance)
	}
}

type failingTx struct {
	store.Tx
	appends *int
	failAt  int
}

func (f failingTx) AppendTransaction(ctx context.Context, entry domain.BalanceTransaction) (*domain.BalanceTransaction, error) {
	*f.appends++
	if *f.appends == f.failAt {
		return nil, errors.New("connection reset")
	}
	return f.Tx.AppendTransaction(ctx, entry)
}

type failingRepo struct {
	*memory.Store
	failAt int
}

func (r failingRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	appends := 0
	return r.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingTx{Tx: tx, appends: &appends, failAt: r.failAt})
	})
}

func TestFailedUnitOfWorkLeavesNoTrace(t *testing.T) {
	env := newTestService(t, func(s *memory.Store) store.Repository {
		return failingRepo{Store: s, failAt: 2}
	})
	ctx := context.Background()
	env.setOpening(t, day1, "100")
	if _, err := env.engine.GetClosingBalance(ctx, day1); err != nil {
		t.Fatalf("closing failed: %v", err)
	}

	_, err := env.svc.RecordSale(ctx, domain.SaleCreateRequest{
		InvoiceNo: "INV-020",
		Total:     dec("90"),
		Date:      day1.String(),
		Payments: []domain.PaymentRequest{
			{PaymentType: domain.PaymentCash, Amount: dec("40")},
			{PaymentType: domain.PaymentCash, Amount: dec("50")},
		},
	})
	if err == nil {
		t.Fatalf("expected the unit of work to fail")
	}

	sales, _ := env.store.ListSalesTouching(ctx, day1)
	entries, _ := env.store.ListTransactionsByDay(ctx, day1)
	if len(sales) != 0 || len(entries) != 0 {
		t.Fatalf("expected rollback, got %d sales and %d entries", len(sales), len(entries))
	}
	if cash := env.storedClosing(t, day1).Get(domain.CashAccount()); !cash.Equal(dec("100")) {
		t.Fatalf("expected closing cash to stay 100, got %s", cash)
	}
}

func TestAddToOpeningOrClosingBalance(t *testing.T) {
	env := newTestService(t, nil)
	ctx := adminContext()
	day2 := day1.AddDays(1)
	env.setOpening(t, day1, "100")

	resp, err := env.svc.AddToOpeningOrClosingBalance(ctx, domain.BalanceAdjustRequest{
		Date:        day2.String(),
		Amount:      dec("25"),
		PaymentType: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if resp.Transaction.Source != domain.SourceAddOpeningBalance {
		t.Fatalf("expected add_opening_balance, got %s", resp.Transaction.Source)
	}
	if !resp.Closing.CashBalance.Equal(dec("125")) {
		t.Fatalf("expected closing 125, got %s", resp.Closing.CashBalance)
	}

	resp, err = env.svc.AddToOpeningOrClosingBalance(ctx, domain.BalanceAdjustRequest{
		Date:        day2.String(),
		Amount:      dec("5"),
		PaymentType: domain.PaymentCash,
		IsExpense:   true,
	})
	if err != nil {
		t.Fatalf("second adjust failed: %v", err)
	}
	if !resp.Closing.CashBalance.Equal(dec("120")) {
		t.Fatalf("expected closing 120, got %s", resp.Closing.CashBalance)
	}

	_, err = env.svc.AddToOpeningOrClosingBalance(ctx, domain.BalanceAdjustRequest{
		Date:        day2.String(),
		Amount:      dec("500"),
		PaymentType: domain.PaymentCash,
		IsExpense:   true,
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestSetOpeningBalanceRecomputesStoredClosing(t *testing.T) {
	env := newTestService(t, nil)
	ctx := adminContext()

	if _, err := env.svc.RecordTransaction(ctx, domain.TransactionRequest{
		Date:        day1.String(),
		Type:        domain.TransactionIncome,
		Amount:      dec("100"),
		PaymentType: domain.PaymentCash,
		Source:      domain.SourceAddOpeningBalance,
	}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := env.svc.GetClosingBalance(ctx, day1.String()); err != nil {
		t.Fatalf("closing failed: %v", err)
	}

	opening, err := env.svc.SetOpeningBalance(ctx, domain.OpeningBalanceRequest{
		Date:         day1.String(),
		CashBalance:  dec("1000"),
		BankBalances: []domain.AccountBalance{{AccountRef: "BCA", Balance: dec("50")}},
	})
	if err != nil {
		t.Fatalf("set opening failed: %v", err)
	}
	if len(opening.BankBalances) != 1 {
		t.Fatalf("expected one bank balance, got %+v", opening.BankBalances)
	}

	closing := env.storedClosing(t, day1)
	if !closing.Get(domain.CashAccount()).Equal(dec("1100")) {
		t.Fatalf("expected recomputed cash 1100, got %s", closing.Get(domain.CashAccount()))
	}

	resolved, err := env.svc.GetOpeningBalance(ctx, day1.String())
	if err != nil || !resolved.Explicit {
		t.Fatalf("expected explicit opening, got %+v err=%v", resolved, err)
	}

	_, err = env.svc.SetOpeningBalance(ctx, domain.OpeningBalanceRequest{
		Date:         day1.String(),
		BankBalances: []domain.AccountBalance{{AccountRef: "BCA"}, {AccountRef: "BCA"}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected duplicate account to be rejected, got %v", err)
	}
}

func TestOpeningSeedOnExplicitOpeningDayMatchesRecompute(t *testing.T) {
	env := newTestService(t, nil)
	ctx := adminContext()
	env.setOpening(t, day1, "1000")
	if _, err := env.engine.GetClosingBalance(ctx, day1); err != nil {
		t.Fatalf("closing failed: %v", err)
	}

	entry, err := env.svc.RecordTransaction(ctx, domain.TransactionRequest{
		Date:        day1.String(),
		Type:        domain.TransactionIncome,
		Amount:      dec("1000"),
		PaymentType: domain.PaymentCash,
		Source:      domain.SourceOpeningBalance,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if entry.ChangeAmount == nil || !entry.ChangeAmount.IsZero() {
		t.Fatalf("expected zero change stamp for a carried seed, got %v", entry.ChangeAmount)
	}
	if entry.BeforeBalance == nil || entry.AfterBalance == nil || !entry.BeforeBalance.Equal(*entry.AfterBalance) {
		t.Fatalf("expected before == after, got %v / %v", entry.BeforeBalance, entry.AfterBalance)
	}

	stored := env.storedClosing(t, day1)
	if !stored.Get(domain.CashAccount()).Equal(dec("1000")) {
		t.Fatalf("expected stored cash 1000, got %s", stored.Get(domain.CashAccount()))
	}
	recomputed, err := env.engine.ComputeClosingBalance(ctx, day1)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if !recomputed.CashBalance.Equal(stored.Get(domain.CashAccount())) {
		t.Fatalf("direct add %s disagrees with recompute %s", stored.Get(domain.CashAccount()), recomputed.CashBalance)
	}

	// Without an explicit opening the seed counts on both paths.
	day2 := day1.AddDays(1)
	if _, err := env.engine.GetClosingBalance(ctx, day2); err != nil {
		t.Fatalf("closing day2 failed: %v", err)
	}
	if _, err := env.svc.RecordTransaction(ctx, domain.TransactionRequest{
		Date:        day2.String(),
		Type:        domain.TransactionIncome,
		Amount:      dec("50"),
		PaymentType: domain.PaymentCash,
		Source:      domain.SourceOpeningBalance,
	}); err != nil {
		t.Fatalf("record day2 failed: %v", err)
	}
	stored = env.storedClosing(t, day2)
	if !stored.Get(domain.CashAccount()).Equal(dec("1050")) {
		t.Fatalf("expected stored day2 cash 1050, got %s", stored.Get(domain.CashAccount()))
	}
	recomputed, err = env.engine.ComputeClosingBalance(ctx, day2)
	if err != nil {
		t.Fatalf("recompute day2 failed: %v", err)
	}
	if !recomputed.CashBalance.Equal(dec("1050")) {
		t.Fatalf("expected recomputed day2 cash 1050, got %s", recomputed.CashBalance)
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	env := newTestService(t, nil)
	cashier := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "cashier"})

	_, err := env.svc.RecordTransaction(cashier, domain.TransactionRequest{
		Type:        domain.TransactionIncome,
		Amount:      dec("1"),
		PaymentType: domain.PaymentCash,
		Source:      domain.SourceSale,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = env.svc.RecomputeClosingBalances(context.Background(), domain.RecomputeRequest{From: day1.String(), To: day1.String()})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}
}

func TestRecordTransactionValidates(t *testing.T) {
	env := newTestService(t, nil)
	ctx := adminContext()

	cases := []struct {
		name string
		req  domain.TransactionRequest
		want error
	}{
		{"negative amount", domain.TransactionRequest{Type: domain.TransactionIncome, Amount: dec("-1"), PaymentType: domain.PaymentCash, Source: domain.SourceSale}, ledger.ErrInvalidAmount},
		{"unknown source", domain.TransactionRequest{Type: domain.TransactionIncome, Amount: dec("1"), PaymentType: domain.PaymentCash, Source: "gift"}, store.ErrInvalidTransaction},
		{"bank without ref", domain.TransactionRequest{Type: domain.TransactionIncome, Amount: dec("1"), PaymentType: domain.PaymentBankTransfer, Source: domain.SourceSale}, domain.ErrInvalidAccount},
		{"bad date", domain.TransactionRequest{Date: "2024-02-30", Type: domain.TransactionIncome, Amount: dec("1"), PaymentType: domain.PaymentCash, Source: domain.SourceSale}, ledger.ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.RecordTransaction(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	entry, err := env.svc.RecordTransaction(ctx, domain.TransactionRequest{
		Type:        domain.TransactionIncome,
		Amount:      dec("12.5"),
		PaymentType: domain.PaymentCard,
		AccountRef:  "MC",
		Source:      domain.SourceSale,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if entry.AttributedDate != day1 {
		t.Fatalf("expected undated entry on the recording day %s, got %s", day1, entry.AttributedDate)
	}
}

func TestWritesInvalidateCachedReports(t *testing.T) {
	env := newTestService(t, nil)
	ctx := context.Background()
	env.setOpening(t, day1, "10")

	before, err := env.svc.GetDailyReport(ctx, day1.String())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(before.Timeline) != 0 {
		t.Fatalf("expected empty timeline, got %d entries", len(before.Timeline))
	}

	if _, err := env.svc.RecordSale(ctx, domain.SaleCreateRequest{
		InvoiceNo: "INV-030",
		Total:     dec("15"),
		Date:      day1.String(),
		Payments:  []domain.PaymentRequest{{PaymentType: domain.PaymentCash, Amount: dec("15")}},
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	after, err := env.svc.GetDailyReport(ctx, day1.String())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(after.Timeline) != 1 || after.Stale {
		t.Fatalf("expected fresh report with one entry, got %d entries stale=%t", len(after.Timeline), after.Stale)
	}
	if !after.Closing.CashBalance.Equal(dec("25")) {
		t.Fatalf("expected closing 25, got %s", after.Closing.CashBalance)
	}

	ranged, err := env.svc.GetRangeReport(ctx, day1.String(), day1.AddDays(2).String())
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(ranged.Days) != 3 || !ranged.Totals.Income.Equal(dec("15")) {
		t.Fatalf("unexpected range report: %d days income %s", len(ranged.Days), ranged.Totals.Income)
	}
}
