package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

//go:embed schema.sql
var schema string

const maxTxAttempts = 3

// queryer is the part of *sql.DB and *sql.Tx the row helpers need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists the ledger and business records in Postgres.
type Store struct {
	*handle
	db  *sql.DB
	log zerolog.Logger
}

// handle runs every read and write against either the pool or an open transaction.
type handle struct {
	q   queryer
	now func() time.Time
}

func New(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
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
		return nil, fmt.Errorf("%w: ping: %w", store.ErrStorageUnavailable, err)
	}

	return &Store{
		handle: &handle{q: db, now: func() time.Time { return time.Now().UTC() }},
		db:     db,
		log:    log,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for the advisory locker.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify("migrate", err)
	}
	return nil
}

// WithinTx runs fn in a serializable transaction. Serialization failures are retried
// with a fresh transaction; fn must therefore only write through tx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
		s.log.Debug().Int("attempt", attempt).Msg("serialization failure, retrying unit of work")
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(ctx, &handle{q: pgTx, now: s.now}); err != nil {
		return err
	}
	if err := pgTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (h *handle) GetOpening(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error) {
	return h.getSnapshot(ctx, "opening_balances", day)
}

func (h *handle) GetClosing(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error) {
	return h.getSnapshot(ctx, "closing_balances", day)
}

func (h *handle) getSnapshot(ctx context.Context, table string, day civil.Date) (*domain.BalanceSnapshot, error) {
	row := h.q.QueryRowContext(ctx, `
		SELECT date, cash_balance, bank_balances, card_balances, created_at, updated_at
		FROM `+table+`
		WHERE date = $1
	`, dateArg(day))
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, classify("get "+table, err)
	}
	return snap, nil
}

func (h *handle) SetOpening(ctx context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	return h.putSnapshot(ctx, "opening_balances", snapshot)
}

func (h *handle) UpsertClosing(ctx context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	return h.putSnapshot(ctx, "closing_balances", snapshot)
}

func (h *handle) putSnapshot(ctx context.Context, table string, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	if snapshot.Date == (civil.Date{}) || !snapshot.Date.IsValid() {
		return nil, fmt.Errorf("%w: snapshot date required", store.ErrInvalidTransaction)
	}
	bank, err := json.Marshal(nonNilBalances(snapshot.BankBalances))
	if err != nil {
		return nil, err
	}
	card, err := json.Marshal(nonNilBalances(snapshot.CardBalances))
	if err != nil {
		return nil, err
	}

	now := h.stamp()
	row := h.q.QueryRowContext(ctx, `
		INSERT INTO `+table+` (date, cash_balance, bank_balances, card_balances, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (date) DO UPDATE
		SET cash_balance = EXCLUDED.cash_balance,
			bank_balances = EXCLUDED.bank_balances,
			card_balances = EXCLUDED.card_balances,
			updated_at = EXCLUDED.updated_at
		RETURNING date, cash_balance, bank_balances, card_balances, created_at, updated_at
	`, dateArg(snapshot.Date), snapshot.CashBalance, bank, card, now)
	saved, err := scanSnapshot(row)
	if err != nil {
		return nil, classify("upsert "+table, err)
	}
	return saved, nil
}

const transactionColumns = `id, date, attributed_date, created_at, type, amount, payment_type, account_ref,
	source, source_id, before_balance, after_balance, change_amount, note`

func (h *handle) ListTransactionsByDay(ctx context.Context, day civil.Date) ([]domain.BalanceTransaction, error) {
	return h.listTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM balance_transactions
		WHERE attributed_date = $1
		ORDER BY created_at, id
	`, dateArg(day))
}

func (h *handle) ListTransactionsBySource(ctx context.Context, source domain.Source, sourceID string) ([]domain.BalanceTransaction, error) {
	return h.listTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM balance_transactions
		WHERE source = $1 AND COALESCE(source_id, '') = $2
		ORDER BY created_at, id
	`, string(source), sourceID)
}

func (h *handle) listTransactions(ctx context.Context, query string, args ...any) ([]domain.BalanceTransaction, error) {
	rows, err := h.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	defer rows.Close()

	entries := make([]domain.BalanceTransaction, 0, 16)
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, classify("scan transaction", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list transactions", err)
	}
	return entries, nil
}

func (h *handle) AppendTransaction(ctx context.Context, entry domain.BalanceTransaction) (*domain.BalanceTransaction, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if entry.AttributedDate == (civil.Date{}) {
		return nil, fmt.Errorf("%w: attributed date required", store.ErrInvalidTransaction)
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = xid.New("btx")
	}
	entry.CreatedAt = h.stampOr(entry.CreatedAt)

	_, err := h.q.ExecContext(ctx, `
		INSERT INTO balance_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		entry.ID,
		nullDate(entry.Date),
		dateArg(entry.AttributedDate),
		entry.CreatedAt,
		string(entry.Type),
		entry.Amount,
		string(entry.PaymentType),
		entry.AccountRef,
		string(entry.Source),
		nullIfEmpty(entry.SourceID),
		nullDecimal(entry.BeforeBalance),
		nullDecimal(entry.AfterBalance),
		nullDecimal(entry.ChangeAmount),
		nullIfEmpty(entry.Note),
	)
	if err != nil {
		return nil, classify("append transaction", err)
	}
	return &entry, nil
}

func (h *handle) EarliestActivity(ctx context.Context) (civil.Date, bool, error) {
	var earliest sql.NullTime
	err := h.q.QueryRowContext(ctx, `
		SELECT MIN(day) FROM (
			SELECT MIN(attributed_date) AS day FROM balance_transactions
			UNION ALL
			SELECT MIN(date) FROM opening_balances
			UNION ALL
			SELECT MIN(date) FROM closing_balances
		) activity
	`).Scan(&earliest)
	if err != nil {
		return civil.Date{}, false, classify("earliest activity", err)
	}
	if !earliest.Valid {
		return civil.Date{}, false, nil
	}
	return civil.DateOf(earliest.Time), true, nil
}

func (h *handle) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sales, err := h.listSales(ctx, `
		SELECT id, invoice_no, customer, total, date, attributed_date, created_at
		FROM sales
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (h *handle) ListSalesTouching(ctx context.Context, day civil.Date) ([]domain.Sale, error) {
	return h.listSales(ctx, `
		SELECT s.id, s.invoice_no, s.customer, s.total, s.date, s.attributed_date, s.created_at
		FROM sales s
		WHERE s.attributed_date = $1
			OR EXISTS (
				SELECT 1 FROM payment_lines p
				WHERE p.parent_kind = 'sale' AND p.parent_id = s.id AND p.attributed_date = $1
			)
		ORDER BY s.created_at, s.id
	`, dateArg(day))
}

func (h *handle) listSales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := h.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	ids := make([]string, 0, 16)
	for rows.Next() {
		var sale domain.Sale
		var customer sql.NullString
		var date sql.NullTime
		var attributed time.Time
		if err := rows.Scan(&sale.ID, &sale.InvoiceNo, &customer, &sale.Total, &date, &attributed, &sale.CreatedAt); err != nil {
			return nil, classify("scan sale", err)
		}
		sale.Customer = customer.String
		sale.Date = civilFromNull(date)
		sale.AttributedDate = civil.DateOf(attributed)
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list sales", err)
	}
	_ = rows.Close()

	payments, err := h.paymentsFor(ctx, "sale", ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Payments = payments[sales[i].ID]
	}
	return sales, nil
}

func (h *handle) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	purchases, err := h.listPurchases(ctx, `
		SELECT id, reference, supplier, total, date, attributed_date, created_at
		FROM purchases
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(purchases) == 0 {
		return nil, store.ErrNotFound
	}
	return &purchases[0], nil
}

func (h *handle) ListPurchasesTouching(ctx context.Context, day civil.Date) ([]domain.Purchase, error) {
	return h.listPurchases(ctx, `
		SELECT p.id, p.reference, p.supplier, p.total, p.date, p.attributed_date, p.created_at
		FROM purchases p
		WHERE p.attributed_date = $1
			OR EXISTS (
				SELECT 1 FROM payment_lines l
				WHERE l.parent_kind = 'purchase' AND l.parent_id = p.id AND l.attributed_date = $1
			)
		ORDER BY p.created_at, p.id
	`, dateArg(day))
}

func (h *handle) listPurchases(ctx context.Context, query string, args ...any) ([]domain.Purchase, error) {
	rows, err := h.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list purchases", err)
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 16)
	ids := make([]string, 0, 16)
	for rows.Next() {
		var purchase domain.Purchase
		var supplier sql.NullString
		var date sql.NullTime
		var attributed time.Time
		if err := rows.Scan(&purchase.ID, &purchase.Reference, &supplier, &purchase.Total, &date, &attributed, &purchase.CreatedAt); err != nil {
			return nil, classify("scan purchase", err)
		}
		purchase.Supplier = supplier.String
		purchase.Date = civilFromNull(date)
		purchase.AttributedDate = civil.DateOf(attributed)
		purchase.CreatedAt = purchase.CreatedAt.UTC()
		purchases = append(purchases, purchase)
		ids = append(ids, purchase.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list purchases", err)
	}
	_ = rows.Close()

	payments, err := h.paymentsFor(ctx, "purchase", ids)
	if err != nil {
		return nil, err
	}
	for i := range purchases {
		purchases[i].Payments = payments[purchases[i].ID]
	}
	return purchases, nil
}

func (h *handle) paymentsFor(ctx context.Context, kind string, parentIDs []string) (map[string][]domain.PaymentLine, error) {
	result := make(map[string][]domain.PaymentLine, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}

	rows, err := h.q.QueryContext(ctx, `
		SELECT parent_id, id, payment_type, account_ref, amount, date, attributed_date, created_at
		FROM payment_lines
		WHERE parent_kind = $1 AND parent_id = ANY($2)
		ORDER BY created_at, id
	`, kind, parentIDs)
	if err != nil {
		return nil, classify("list payment lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parentID string
		var line domain.PaymentLine
		var paymentType string
		var date sql.NullTime
		var attributed time.Time
		if err := rows.Scan(&parentID, &line.ID, &paymentType, &line.AccountRef, &line.Amount, &date, &attributed, &line.CreatedAt); err != nil {
			return nil, classify("scan payment line", err)
		}
		line.PaymentType = domain.PaymentType(paymentType)
		line.Date = civilFromNull(date)
		line.AttributedDate = civil.DateOf(attributed)
		line.CreatedAt = line.CreatedAt.UTC()
		result[parentID] = append(result[parentID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list payment lines", err)
	}
	return result, nil
}

func (h *handle) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	expenses, err := h.listExpenses(ctx, `
		SELECT id, category, description, amount, payment_type, account_ref, date, attributed_date, created_at
		FROM expenses
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, store.ErrNotFound
	}
	return &expenses[0], nil
}

func (h *handle) ListExpensesByDay(ctx context.Context, day civil.Date) ([]domain.Expense, error) {
	return h.listExpenses(ctx, `
		SELECT id, category, description, amount, payment_type, account_ref, date, attributed_date, created_at
		FROM expenses
		WHERE attributed_date = $1
		ORDER BY created_at, id
	`, dateArg(day))
}

func (h *handle) listExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := h.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list expenses", err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		var expense domain.Expense
		var description sql.NullString
		var paymentType string
		var date sql.NullTime
		var attributed time.Time
		if err := rows.Scan(&expense.ID, &expense.Category, &description, &expense.Amount, &paymentType, &expense.AccountRef, &date, &attributed, &expense.CreatedAt); err != nil {
			return nil, classify("scan expense", err)
		}
		expense.Description = description.String
		expense.PaymentType = domain.PaymentType(paymentType)
		expense.Date = civilFromNull(date)
		expense.AttributedDate = civil.DateOf(attributed)
		expense.CreatedAt = expense.CreatedAt.UTC()
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list expenses", err)
	}
	return expenses, nil
}

func (h *handle) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Total.IsNegative() || sale.AttributedDate == (civil.Date{}) {
		return nil, store.ErrInvalidTransaction
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	sale.CreatedAt = h.stampOr(sale.CreatedAt)

	_, err := h.q.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_no, customer, total, date, attributed_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sale.ID, sale.InvoiceNo, nullIfEmpty(sale.Customer), sale.Total, nullDate(sale.Date), dateArg(sale.AttributedDate), sale.CreatedAt)
	if err != nil {
		return nil, classify("create sale", err)
	}

	lines, err := h.insertPayments(ctx, "sale", sale.ID, sale.Payments)
	if err != nil {
		return nil, err
	}
	sale.Payments = lines
	return &sale, nil
}

func (h *handle) AddSalePayment(ctx context.Context, saleID string, line domain.PaymentLine) (*domain.Sale, error) {
	if _, err := h.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	if _, err := h.insertPayments(ctx, "sale", saleID, []domain.PaymentLine{line}); err != nil {
		return nil, err
	}
	return h.GetSale(ctx, saleID)
}

func (h *handle) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.Total.IsNegative() || purchase.AttributedDate == (civil.Date{}) {
		return nil, store.ErrInvalidTransaction
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	purchase.CreatedAt = h.stampOr(purchase.CreatedAt)

	_, err := h.q.ExecContext(ctx, `
		INSERT INTO purchases (id, reference, supplier, total, date, attributed_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, purchase.ID, purchase.Reference, nullIfEmpty(purchase.Supplier), purchase.Total, nullDate(purchase.Date), dateArg(purchase.AttributedDate), purchase.CreatedAt)
	if err != nil {
		return nil, classify("create purchase", err)
	}

	lines, err := h.insertPayments(ctx, "purchase", purchase.ID, purchase.Payments)
	if err != nil {
		return nil, err
	}
	purchase.Payments = lines
	return &purchase, nil
}

func (h *handle) AddPurchasePayment(ctx context.Context, purchaseID string, line domain.PaymentLine) (*domain.Purchase, error) {
	if _, err := h.GetPurchase(ctx, purchaseID); err != nil {
		return nil, err
	}
	if _, err := h.insertPayments(ctx, "purchase", purchaseID, []domain.PaymentLine{line}); err != nil {
		return nil, err
	}
	return h.GetPurchase(ctx, purchaseID)
}

func (h *handle) insertPayments(ctx context.Context, kind string, parentID string, lines []domain.PaymentLine) ([]domain.PaymentLine, error) {
	out := make([]domain.PaymentLine, 0, len(lines))
	for _, line := range lines {
		if line.ID == "" {
			line.ID = xid.New("pay")
		}
		if line.AttributedDate == (civil.Date{}) || line.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: payment line %s", store.ErrInvalidTransaction, line.ID)
		}
		line.CreatedAt = h.stampOr(line.CreatedAt)

		_, err := h.q.ExecContext(ctx, `
			INSERT INTO payment_lines (id, parent_kind, parent_id, payment_type, account_ref, amount, date, attributed_date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, line.ID, kind, parentID, string(line.PaymentType), line.AccountRef, line.Amount, nullDate(line.Date), dateArg(line.AttributedDate), line.CreatedAt)
		if err != nil {
			return nil, classify("insert payment line", err)
		}
		out = append(out, line)
	}
	return out, nil
}

func (h *handle) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Amount.IsNegative() || expense.AttributedDate == (civil.Date{}) {
		return nil, store.ErrInvalidTransaction
	}
	if _, err := domain.AccountFor(expense.PaymentType, expense.AccountRef); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	expense.CreatedAt = h.stampOr(expense.CreatedAt)

	_, err := h.q.ExecContext(ctx, `
		INSERT INTO expenses (id, category, description, amount, payment_type, account_ref, date, attributed_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, expense.ID, expense.Category, nullIfEmpty(expense.Description), expense.Amount, string(expense.PaymentType), expense.AccountRef, nullDate(expense.Date), dateArg(expense.AttributedDate), expense.CreatedAt)
	if err != nil {
		return nil, classify("create expense", err)
	}
	return &expense, nil
}

// stamp returns now at the precision Postgres keeps, so returned rows match stored ones.
func (h *handle) stamp() time.Time {
	return h.now().UTC().Truncate(time.Microsecond)
}

func (h *handle) stampOr(at time.Time) time.Time {
	if at.IsZero() {
		return h.stamp()
	}
	return at.UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*domain.BalanceSnapshot, error) {
	var snap domain.BalanceSnapshot
	var day time.Time
	var bank, card []byte
	if err := row.Scan(&day, &snap.CashBalance, &bank, &card, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
		return nil, err
	}
	snap.Date = civil.DateOf(day)
	snap.CreatedAt = snap.CreatedAt.UTC()
	snap.UpdatedAt = snap.UpdatedAt.UTC()
	if err := json.Unmarshal(bank, &snap.BankBalances); err != nil {
		return nil, fmt.Errorf("decode bank balances of %s: %w", snap.Date, err)
	}
	if err := json.Unmarshal(card, &snap.CardBalances); err != nil {
		return nil, fmt.Errorf("decode card balances of %s: %w", snap.Date, err)
	}
	snap.BankBalances = nonNilBalances(snap.BankBalances)
	snap.CardBalances = nonNilBalances(snap.CardBalances)
	return &snap, nil
}

func scanTransaction(row rowScanner) (domain.BalanceTransaction, error) {
	var entry domain.BalanceTransaction
	var date sql.NullTime
	var attributed time.Time
	var typ, paymentType, source string
	var sourceID, note sql.NullString
	var before, after, change decimal.NullDecimal
	if err := row.Scan(
		&entry.ID,
		&date,
		&attributed,
		&entry.CreatedAt,
		&typ,
		&entry.Amount,
		&paymentType,
		&entry.AccountRef,
		&source,
		&sourceID,
		&before,
		&after,
		&change,
		&note,
	); err != nil {
		return domain.BalanceTransaction{}, err
	}
	entry.Date = civilFromNull(date)
	entry.AttributedDate = civil.DateOf(attributed)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.Type = domain.TransactionType(typ)
	entry.PaymentType = domain.PaymentType(paymentType)
	entry.Source = domain.Source(source)
	entry.SourceID = sourceID.String
	entry.Note = note.String
	entry.BeforeBalance = decimalPtr(before)
	entry.AfterBalance = decimalPtr(after)
	entry.ChangeAmount = decimalPtr(change)
	return entry, nil
}

// classify maps driver errors onto the store sentinels. Constraint violations stay
// invalid input; anything that is neither a Postgres error nor a cancellation means the
// database could not be reached.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s: duplicate key", store.ErrInvalidTransaction, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "22") {
			return fmt.Errorf("%w: %s: %s", store.ErrInvalidTransaction, op, pgErr.Message)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", store.ErrStorageUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func dateArg(day civil.Date) time.Time {
	return day.In(time.UTC)
}

func nullDate(day *civil.Date) any {
	if day == nil {
		return nil
	}
	return dateArg(*day)
}

func civilFromNull(val sql.NullTime) *civil.Date {
	if !val.Valid {
		return nil
	}
	day := civil.DateOf(val.Time)
	return &day
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	out := val.Decimal
	return &out
}

func nonNilBalances(balances []domain.AccountBalance) []domain.AccountBalance {
	if balances == nil {
		return []domain.AccountBalance{}
	}
	return balances
}
