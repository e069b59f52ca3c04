package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

// Store keeps the ledger and business records in process memory. Units of work run
// one at a time and are undone by replaying compensations on failure.
type Store struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	openings     map[civil.Date]domain.BalanceSnapshot
	closings     map[civil.Date]domain.BalanceSnapshot
	transactions []domain.BalanceTransaction
	txIDs        map[string]struct{}
	sales        map[string]domain.Sale
	purchases    map[string]domain.Purchase
	expenses     map[string]domain.Expense

	now func() time.Time
}

func New() *Store {
	return &Store{
		openings:  make(map[civil.Date]domain.BalanceSnapshot),
		closings:  make(map[civil.Date]domain.BalanceSnapshot),
		txIDs:     make(map[string]struct{}),
		sales:     make(map[string]domain.Sale),
		purchases: make(map[string]domain.Purchase),
		expenses:  make(map[string]domain.Expense),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source used for rows that arrive without one.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txStore{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) GetOpening(_ context.Context, day civil.Date) (*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.openings[day]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSnapshot(snap)
	return &out, nil
}

func (s *Store) GetClosing(_ context.Context, day civil.Date) (*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.closings[day]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSnapshot(snap)
	return &out, nil
}

func (s *Store) ListTransactionsByDay(_ context.Context, day civil.Date) ([]domain.BalanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BalanceTransaction, 0, 16)
	for _, entry := range s.transactions {
		if entry.AttributedDate == day {
			out = append(out, entry)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) ListTransactionsBySource(_ context.Context, source domain.Source, sourceID string) ([]domain.BalanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BalanceTransaction, 0, 4)
	for _, entry := range s.transactions {
		if entry.Source == source && entry.SourceID == sourceID {
			out = append(out, entry)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) EarliestActivity(_ context.Context) (civil.Date, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var earliest civil.Date
	found := false
	consider := func(day civil.Date) {
		if !found || day.Before(earliest) {
			earliest = day
			found = true
		}
	}
	for _, entry := range s.transactions {
		consider(entry.AttributedDate)
	}
	for day := range s.openings {
		consider(day)
	}
	for day := range s.closings {
		consider(day)
	}
	return earliest, found, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	purchase, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePurchase(purchase)
	return &out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expense, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &expense, nil
}

func (s *Store) ListSalesTouching(_ context.Context, day civil.Date) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if sale.AttributedDate == day || touches(sale.Payments, day) {
			out = append(out, cloneSale(sale))
		}
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return out, nil
}

func (s *Store) ListPurchasesTouching(_ context.Context, day civil.Date) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Purchase, 0, 16)
	for _, purchase := range s.purchases {
		if purchase.AttributedDate == day || touches(purchase.Payments, day) {
			out = append(out, clonePurchase(purchase))
		}
	}
	slices.SortFunc(out, func(a, b domain.Purchase) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return out, nil
}

func (s *Store) ListExpensesByDay(_ context.Context, day civil.Date) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Expense, 0, 16)
	for _, expense := range s.expenses {
		if expense.AttributedDate == day {
			out = append(out, expense)
		}
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return out, nil
}

func (s *Store) SetOpening(_ context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	out, _, err := s.putSnapshot(s.openings, snapshot)
	return out, err
}

func (s *Store) UpsertClosing(_ context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error) {
	out, _, err := s.putSnapshot(s.closings, snapshot)
	return out, err
}

func (s *Store) AppendTransaction(_ context.Context, entry domain.BalanceTransaction) (*domain.BalanceTransaction, error) {
	out, _, err := s.appendTransaction(entry)
	return out, err
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	out, _, err := s.createSale(sale)
	return out, err
}

func (s *Store) AddSalePayment(_ context.Context, saleID string, line domain.PaymentLine) (*domain.Sale, error) {
	out, _, err := s.addSalePayment(saleID, line)
	return out, err
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	out, _, err := s.createPurchase(purchase)
	return out, err
}

func (s *Store) AddPurchasePayment(_ context.Context, purchaseID string, line domain.PaymentLine) (*domain.Purchase, error) {
	out, _, err := s.addPurchasePayment(purchaseID, line)
	return out, err
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	out, _, err := s.createExpense(expense)
	return out, err
}

// The write helpers below return a compensation that restores the previous state.

func (s *Store) putSnapshot(table map[civil.Date]domain.BalanceSnapshot, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, func(), error) {
	if snapshot.Date == (civil.Date{}) || !snapshot.Date.IsValid() {
		return nil, nil, fmt.Errorf("%w: snapshot date required", store.ErrInvalidTransaction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	previous, existed := table[snapshot.Date]
	snapshot = cloneSnapshot(snapshot)
	snapshot.CreatedAt = now
	if existed {
		snapshot.CreatedAt = previous.CreatedAt
	}
	snapshot.UpdatedAt = now
	table[snapshot.Date] = snapshot

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			table[snapshot.Date] = previous
			return
		}
		delete(table, snapshot.Date)
	}
	out := cloneSnapshot(snapshot)
	return &out, undo, nil
}

func (s *Store) appendTransaction(entry domain.BalanceTransaction) (*domain.BalanceTransaction, func(), error) {
	if err := entry.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if entry.AttributedDate == (civil.Date{}) {
		return nil, nil, fmt.Errorf("%w: attributed date required", store.ErrInvalidTransaction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = xid.New("btx")
	}
	if _, exists := s.txIDs[entry.ID]; exists {
		return nil, nil, fmt.Errorf("%w: duplicate transaction id %s", store.ErrInvalidTransaction, entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.transactions = append(s.transactions, entry)
	s.txIDs[entry.ID] = struct{}{}

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.transactions = slices.DeleteFunc(s.transactions, func(existing domain.BalanceTransaction) bool {
			return existing.ID == entry.ID
		})
		delete(s.txIDs, entry.ID)
	}
	out := entry
	return &out, undo, nil
}

func (s *Store) createSale(sale domain.Sale) (*domain.Sale, func(), error) {
	if sale.Total.IsNegative() || sale.AttributedDate == (civil.Date{}) {
		return nil, nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, nil, fmt.Errorf("%w: duplicate sale %s", store.ErrInvalidTransaction, sale.ID)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	sale.Payments = s.stampPayments(sale.Payments)
	s.sales[sale.ID] = cloneSale(sale)

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.sales, sale.ID)
	}
	out := cloneSale(sale)
	return &out, undo, nil
}

func (s *Store) addSalePayment(saleID string, line domain.PaymentLine) (*domain.Sale, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.sales[saleID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	updated := cloneSale(previous)
	updated.Payments = append(updated.Payments, s.stampPayments([]domain.PaymentLine{line})...)
	s.sales[saleID] = updated

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sales[saleID] = previous
	}
	out := cloneSale(updated)
	return &out, undo, nil
}

func (s *Store) createPurchase(purchase domain.Purchase) (*domain.Purchase, func(), error) {
	if purchase.Total.IsNegative() || purchase.AttributedDate == (civil.Date{}) {
		return nil, nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if _, exists := s.purchases[purchase.ID]; exists {
		return nil, nil, fmt.Errorf("%w: duplicate purchase %s", store.ErrInvalidTransaction, purchase.ID)
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = s.now()
	}
	purchase.Payments = s.stampPayments(purchase.Payments)
	s.purchases[purchase.ID] = clonePurchase(purchase)

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.purchases, purchase.ID)
	}
	out := clonePurchase(purchase)
	return &out, undo, nil
}

func (s *Store) addPurchasePayment(purchaseID string, line domain.PaymentLine) (*domain.Purchase, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.purchases[purchaseID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	updated := clonePurchase(previous)
	updated.Payments = append(updated.Payments, s.stampPayments([]domain.PaymentLine{line})...)
	s.purchases[purchaseID] = updated

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.purchases[purchaseID] = previous
	}
	out := clonePurchase(updated)
	return &out, undo, nil
}

func (s *Store) createExpense(expense domain.Expense) (*domain.Expense, func(), error) {
	if expense.Amount.IsNegative() || expense.AttributedDate == (civil.Date{}) {
		return nil, nil, store.ErrInvalidTransaction
	}
	if _, err := domain.AccountFor(expense.PaymentType, expense.AccountRef); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if _, exists := s.expenses[expense.ID]; exists {
		return nil, nil, fmt.Errorf("%w: duplicate expense %s", store.ErrInvalidTransaction, expense.ID)
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = s.now()
	}
	s.expenses[expense.ID] = expense

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.expenses, expense.ID)
	}
	out := expense
	return &out, undo, nil
}

// stampPayments must be called with s.mu held.
func (s *Store) stampPayments(lines []domain.PaymentLine) []domain.PaymentLine {
	out := make([]domain.PaymentLine, 0, len(lines))
	for _, line := range lines {
		if line.ID == "" {
			line.ID = xid.New("pay")
		}
		if line.CreatedAt.IsZero() {
			line.CreatedAt = s.now()
		}
		out = append(out, line)
	}
	return out
}

func touches(lines []domain.PaymentLine, day civil.Date) bool {
	for _, line := range lines {
		if line.AttributedDate == day {
			return true
		}
	}
	return false
}

func sortTransactions(entries []domain.BalanceTransaction) {
	slices.SortFunc(entries, func(a, b domain.BalanceTransaction) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
}

func compareCreated(aAt time.Time, aID string, bAt time.Time, bID string) int {
	if c := aAt.Compare(bAt); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}

func cloneSnapshot(src domain.BalanceSnapshot) domain.BalanceSnapshot {
	out := src
	out.BankBalances = slices.Clone(src.BankBalances)
	out.CardBalances = slices.Clone(src.CardBalances)
	if out.BankBalances == nil {
		out.BankBalances = []domain.AccountBalance{}
	}
	if out.CardBalances == nil {
		out.CardBalances = []domain.AccountBalance{}
	}
	return out
}

func cloneSale(src domain.Sale) domain.Sale {
	out := src
	out.Payments = slices.Clone(src.Payments)
	return out
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	out := src
	out.Payments = slices.Clone(src.Payments)
	return out
}
