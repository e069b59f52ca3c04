package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

// RecordTransaction appends one raw ledger entry.
func (s *Service) RecordTransaction(ctx context.Context, req domain.TransactionRequest) (domain.BalanceTransaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.BalanceTransaction{}, err
	}
	if req.Type != domain.TransactionIncome && req.Type != domain.TransactionExpense {
		return domain.BalanceTransaction{}, invalid("unknown transaction type %q", req.Type)
	}
	if req.Amount.IsNegative() {
		return domain.BalanceTransaction{}, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, req.Amount)
	}
	if !isKnownSource(req.Source) {
		return domain.BalanceTransaction{}, invalid("unknown source %q", req.Source)
	}
	account, err := domain.AccountFor(req.PaymentType, req.AccountRef)
	if err != nil {
		return domain.BalanceTransaction{}, err
	}
	date, err := ledger.ParseOptionalDay(req.Date)
	if err != nil {
		return domain.BalanceTransaction{}, err
	}

	createdAt := s.now().UTC()
	entry := s.newEntry(req.Type, req.Amount, account, date, ledger.AttributedDay(date, createdAt, s.engine.Location()), req.Source, strings.TrimSpace(req.SourceID), createdAt)
	entry.Note = strings.TrimSpace(req.Note)

	entries := []domain.BalanceTransaction{entry}
	if err := s.stampAudit(ctx, entries, false); err != nil {
		return domain.BalanceTransaction{}, err
	}
	persisted, err := s.commit(ctx, entries, nil)
	if err != nil {
		return domain.BalanceTransaction{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("id", persisted[0].ID).
		Str("source", string(persisted[0].Source)).
		Str("date", persisted[0].AttributedDate.String()).
		Msg("ledger transaction recorded")
	return persisted[0], nil
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	invoice := strings.TrimSpace(req.InvoiceNo)
	if invoice == "" {
		return domain.Sale{}, invalid("invoice number is required")
	}
	if !req.Total.IsPositive() {
		return domain.Sale{}, fmt.Errorf("%w: sale total %s", ledger.ErrInvalidAmount, req.Total)
	}
	date, err := ledger.ParseOptionalDay(req.Date)
	if err != nil {
		return domain.Sale{}, err
	}

	createdAt := s.now().UTC()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		InvoiceNo:      invoice,
		Customer:       strings.TrimSpace(req.Customer),
		Total:          req.Total,
		Date:           date,
		CreatedAt:      createdAt,
		AttributedDate: ledger.AttributedDay(date, createdAt, s.engine.Location()),
	}
	sale.Payments, err = s.paymentLines(req.Payments, date, createdAt)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.Paid().GreaterThan(sale.Total) {
		return domain.Sale{}, invalid("payments %s exceed sale total %s", sale.Paid(), sale.Total)
	}

	entries := s.paymentEntries(sale.Payments, domain.TransactionIncome, domain.SourceSale, sale.ID, date)
	if err := s.stampAudit(ctx, entries, false); err != nil {
		return domain.Sale{}, err
	}

	var created *domain.Sale
	_, err = s.commit(ctx, entries, func(ctx context.Context, tx store.Tx) error {
		created, err = tx.CreateSale(ctx, sale)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("sale_id", created.ID).
		Str("total", created.Total.String()).
		Str("paid", created.Paid().String()).
		Str("date", created.AttributedDate.String()).
		Msg("sale recorded")
	return *created, nil
}

// AddSalePayment records a later payment against an existing sale. The payment lands on
// its own date, or on the day it is recorded; never on the sale's date.
func (s *Service) AddSalePayment(ctx context.Context, saleID string, req domain.PaymentRequest) (domain.Sale, error) {
	existing, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	createdAt := s.now().UTC()
	lines, err := s.paymentLines([]domain.PaymentRequest{req}, nil, createdAt)
	if err != nil {
		return domain.Sale{}, err
	}
	line := lines[0]
	if line.Amount.GreaterThan(existing.Outstanding()) {
		return domain.Sale{}, invalid("payment %s exceeds outstanding %s", line.Amount, existing.Outstanding())
	}

	entries := s.paymentEntries(lines, domain.TransactionIncome, domain.SourceSalePayment, saleID, nil)
	if err := s.stampAudit(ctx, entries, false); err != nil {
		return domain.Sale{}, err
	}

	var updated *domain.Sale
	_, err = s.commit(ctx, entries, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if line.Amount.GreaterThan(current.Outstanding()) {
			return invalid("payment %s exceeds outstanding %s", line.Amount, current.Outstanding())
		}
		updated, err = tx.AddSalePayment(ctx, saleID, line)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("sale_id", saleID).
		Str("amount", line.Amount.String()).
		Str("date", line.AttributedDate.String()).
		Str("status", updated.PaymentStatus()).
		Msg("sale payment recorded")
	return *updated, nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.Purchase{}, invalid("purchase reference is required")
	}
	if !req.Total.IsPositive() {
		return domain.Purchase{}, fmt.Errorf("%w: purchase total %s", ledger.ErrInvalidAmount, req.Total)
	}
	date, err := ledger.ParseOptionalDay(req.Date)
	if err != nil {
		return domain.Purchase{}, err
	}

	createdAt := s.now().UTC()
	purchase := domain.Purchase{
		ID:             xid.New("pur"),
		Reference:      reference,
		Supplier:       strings.TrimSpace(req.Supplier),
		Total:          req.Total,
		Date:           date,
		CreatedAt:      createdAt,
		AttributedDate: ledger.AttributedDay(date, createdAt, s.engine.Location()),
	}
	purchase.Payments, err = s.paymentLines(req.Payments, date, createdAt)
	if err != nil {
		return domain.Purchase{}, err
	}
	if purchase.Paid().GreaterThan(purchase.Total) {
		return domain.Purchase{}, invalid("payments %s exceed purchase total %s", purchase.Paid(), purchase.Total)
	}

	entries := s.paymentEntries(purchase.Payments, domain.TransactionExpense, domain.SourcePurchase, purchase.ID, date)
	if err := s.stampAudit(ctx, entries, true); err != nil {
		return domain.Purchase{}, err
	}

	var created *domain.Purchase
	_, err = s.commit(ctx, entries, func(ctx context.Context, tx store.Tx) error {
		created, err = tx.CreatePurchase(ctx, purchase)
		return err
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("purchase_id", created.ID).
		Str("total", created.Total.String()).
		Str("paid", created.Paid().String()).
		Str("date", created.AttributedDate.String()).
		Msg("purchase recorded")
	return *created, nil
}

func (s *Service) AddPurchasePayment(ctx context.Context, purchaseID string, req domain.PaymentRequest) (domain.Purchase, error) {
	existing, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}
	createdAt := s.now().UTC()
	lines, err := s.paymentLines([]domain.PaymentRequest{req}, nil, createdAt)
	if err != nil {
		return domain.Purchase{}, err
	}
	line := lines[0]
	if line.Amount.GreaterThan(existing.Outstanding()) {
		return domain.Purchase{}, invalid("payment %s exceeds outstanding %s", line.Amount, existing.Outstanding())
	}

	entries := s.paymentEntries(lines, domain.TransactionExpense, domain.SourcePurchasePayment, purchaseID, nil)
	if err := s.stampAudit(ctx, entries, true); err != nil {
		return domain.Purchase{}, err
	}

	var updated *domain.Purchase
	_, err = s.commit(ctx, entries, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if line.Amount.GreaterThan(current.Outstanding()) {
			return invalid("payment %s exceeds outstanding %s", line.Amount, current.Outstanding())
		}
		updated, err = tx.AddPurchasePayment(ctx, purchaseID, line)
		return err
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("purchase_id", purchaseID).
		Str("amount", line.Amount.String()).
		Str("date", line.AttributedDate.String()).
		Str("status", updated.PaymentStatus()).
		Msg("purchase payment recorded")
	return *updated, nil
}

func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return domain.Expense{}, invalid("expense category is required")
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("%w: expense amount %s", ledger.ErrInvalidAmount, req.Amount)
	}
	account, err := domain.AccountFor(req.PaymentType, req.AccountRef)
	if err != nil {
		return domain.Expense{}, err
	}
	date, err := ledger.ParseOptionalDay(req.Date)
	if err != nil {
		return domain.Expense{}, err
	}

	createdAt := s.now().UTC()
	expense := domain.Expense{
		ID:             xid.New("exp"),
		Category:       category,
		Description:    strings.TrimSpace(req.Description),
		Amount:         req.Amount,
		PaymentType:    account.PaymentType(),
		AccountRef:     account.Ref,
		Date:           date,
		CreatedAt:      createdAt,
		AttributedDate: ledger.AttributedDay(date, createdAt, s.engine.Location()),
	}
	entries := []domain.BalanceTransaction{
		s.newEntry(domain.TransactionExpense, expense.Amount, account, date, expense.AttributedDate, domain.SourceExpense, expense.ID, createdAt),
	}
	entries[0].Note = defaultString(expense.Description, expense.Category)
	if err := s.stampAudit(ctx, entries, true); err != nil {
		return domain.Expense{}, err
	}

	var created *domain.Expense
	_, err = s.commit(ctx, entries, func(ctx context.Context, tx store.Tx) error {
		created, err = tx.CreateExpense(ctx, expense)
		return err
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("expense_id", created.ID).
		Str("category", created.Category).
		Str("amount", created.Amount.String()).
		Str("date", created.AttributedDate.String()).
		Msg("expense recorded")
	return *created, nil
}

// paymentLines validates payment requests and attributes each line. fallback is the
// parent record's date for lines recorded together with it, nil otherwise.
func (s *Service) paymentLines(reqs []domain.PaymentRequest, fallback *civil.Date, createdAt time.Time) ([]domain.PaymentLine, error) {
	lines := make([]domain.PaymentLine, 0, len(reqs))
	for i, req := range reqs {
		if !req.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: payment %d amount %s", ledger.ErrInvalidAmount, i+1, req.Amount)
		}
		account, err := domain.AccountFor(req.PaymentType, req.AccountRef)
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i+1, err)
		}
		lineDate, err := ledger.ParseOptionalDay(req.Date)
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i+1, err)
		}
		lines = append(lines, domain.PaymentLine{
			ID:             xid.New("pay"),
			PaymentType:    account.PaymentType(),
			Amount:         req.Amount,
			AccountRef:     account.Ref,
			Date:           lineDate,
			CreatedAt:      createdAt,
			AttributedDate: ledger.PaymentDay(lineDate, fallback, createdAt, s.engine.Location()),
		})
	}
	return lines, nil
}

func (s *Service) paymentEntries(lines []domain.PaymentLine, typ domain.TransactionType, source domain.Source, sourceID string, fallback *civil.Date) []domain.BalanceTransaction {
	entries := make([]domain.BalanceTransaction, 0, len(lines))
	for _, line := range lines {
		account := domain.Account{Kind: accountKind(line.PaymentType), Ref: line.AccountRef}
		date := line.Date
		if date == nil {
			date = fallback
		}
		entry := s.newEntry(typ, line.Amount, account, date, line.AttributedDate, source, sourceID, line.CreatedAt)
		entry.Note = "payment " + line.ID
		entries = append(entries, entry)
	}
	return entries
}

func accountKind(paymentType domain.PaymentType) domain.AccountKind {
	switch paymentType {
	case domain.PaymentBankTransfer:
		return domain.AccountBank
	case domain.PaymentCard:
		return domain.AccountCard
	}
	return domain.AccountCash
}
