package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"kasirinaja/backoffice/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Reader is the read side shared by the ledger engine, the report composer and the recorder.
type Reader interface {
	GetOpening(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
	GetClosing(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
	// ListTransactionsByDay returns entries attributed to day ordered by (created_at, id).
	ListTransactionsByDay(ctx context.Context, day civil.Date) ([]domain.BalanceTransaction, error)
	ListTransactionsBySource(ctx context.Context, source domain.Source, sourceID string) ([]domain.BalanceTransaction, error)
	// EarliestActivity is the first day holding a transaction, opening or closing row.
	// ok is false on an empty ledger.
	EarliestActivity(ctx context.Context) (day civil.Date, ok bool, err error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	// ListSalesTouching returns sales attributed to day or carrying a payment attributed to day.
	ListSalesTouching(ctx context.Context, day civil.Date) ([]domain.Sale, error)
	ListPurchasesTouching(ctx context.Context, day civil.Date) ([]domain.Purchase, error)
	ListExpensesByDay(ctx context.Context, day civil.Date) ([]domain.Expense, error)
}

type Writer interface {
	SetOpening(ctx context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error)
	UpsertClosing(ctx context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error)
	AppendTransaction(ctx context.Context, entry domain.BalanceTransaction) (*domain.BalanceTransaction, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	AddSalePayment(ctx context.Context, saleID string, line domain.PaymentLine) (*domain.Sale, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	AddPurchasePayment(ctx context.Context, purchaseID string, line domain.PaymentLine) (*domain.Purchase, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
}

// Tx is the view of the store handed to a unit of work.
type Tx interface {
	Reader
	Writer
}

type Repository interface {
	Tx
	// WithinTx runs fn atomically: every write made through tx is kept when fn returns
	// nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
