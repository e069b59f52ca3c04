package memory

import (
	"context"

	"cloud.google.com/go/civil"

	"kasirinaja/backoffice/internal/domain"
)

// txStore records a compensation for every write so a failed unit of work can be undone.
type txStore struct {
	s    *Store
	undo []func()
}

func (t *txStore) track(undo func(), err error) {
	if err == nil && undo != nil {
		t.undo = append(t.undo, undo)
	}
}

func (t *txStore) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *txStore) GetOpening(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error) {
	return t.s.GetOpening(ctx, day)
}

func (t *txStore) GetClosing(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error) {
	return t.s.GetClosing(ctx, day)
}

func (t *txStore) ListTransactionsByDay(ctx context.Context, day civil.Date) ([]domain.BalanceTransaction, error) {
	return t.s.ListTransactionsByDay(ctx, day)
}

func (t *txStore) ListTransactionsBySource(ctx context.Context, source domain.Source, sourceID string) ([]domain.BalanceTransaction, error) {
	return t.s.ListTransactionsBySource(ctx, source, sourceID)
}

func (t *txStore) EarliestActivity(ctx context.Context) (civil.Date, bool, error) {
	return t.s.EarliestActivity(ctx)
}

func (t *txStore) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.s.GetSale(ctx, id)
}

func (t *txStore) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	return t.s.GetPurchase(ctx, id)
}

func (t *txStore) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	return t.s.GetExpense(ctx, id)
}

func (t *txStore) ListSalesTouching(ctx context.Context, day civil.Date) ([]domain.Sale, error) {
	return t.s.ListSalesTouching(ctx, day)
}

func (t *txStore) ListPurchasesTouching(ctx context.Context, day civil.Date) ([]domain.Purchase, error) {
	return t.s.ListPurchasesTouching(ctx, day)
}

func (t *txStore) ListExpensesByDay(ctx context.Context, day civil.Date) ([]domain.Expense, error) {
	return t.s.ListExpensesByDay(ctx, day)
}

func (t *txStore) SetOpening(_ context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	out, undo, err := t.s.putSnapshot(t.s.openings, snapshot)
	t.track(undo, err)
	return out, err
}

func (t *txStore) UpsertClosing(_ context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	out, undo, err := t.s.putSnapshot(t.s.closings, snapshot)
	t.track(undo, err)
	return out, err
}

func (t *txStore) AppendTransaction(_ context.Context, entry domain.BalanceTransaction) (*domain.BalanceTransaction, error) {
	out, undo, err := t.s.appendTransaction(entry)
	t.track(undo, err)
	return out, err
}

func (t *txStore) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	out, undo, err := t.s.createSale(sale)
	t.track(undo, err)
	return out, err
}

func (t *txStore) AddSalePayment(_ context.Context, saleID string, line domain.PaymentLine) (*domain.Sale, error) {
	out, undo, err := t.s.addSalePayment(saleID, line)
	t.track(undo, err)
	return out, err
}

func (t *txStore) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	out, undo, err := t.s.createPurchase(purchase)
	t.track(undo, err)
	return out, err
}

func (t *txStore) AddPurchasePayment(_ context.Context, purchaseID string, line domain.PaymentLine) (*domain.Purchase, error) {
	out, undo, err := t.s.addPurchasePayment(purchaseID, line)
	t.track(undo, err)
	return out, err
}

func (t *txStore) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	out, undo, err := t.s.createExpense(expense)
	t.track(undo, err)
	return out, err
}
