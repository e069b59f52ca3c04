package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/store/memory"
)

func seedBusinessDay(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateSale(ctx, domain.Sale{
		ID:             "sale-1",
		Total:          dec("1000"),
		AttributedDate: day1,
		Payments: []domain.PaymentLine{
			{PaymentType: domain.PaymentCash, Amount: dec("400"), AttributedDate: day1},
			{PaymentType: domain.PaymentBankTransfer, AccountRef: "A", Amount: dec("600"), AttributedDate: day1},
		},
	})
	require.NoError(t, err)
	_, err = s.CreateExpense(ctx, domain.Expense{
		ID:             "exp-1",
		Amount:         dec("75"),
		PaymentType:    domain.PaymentCard,
		AccountRef:     "VISA",
		AttributedDate: day1,
	})
	require.NoError(t, err)

	appendEntry(t, s, entrySpec{id: "s1", day: day1, typ: domain.TransactionIncome, amount: "400"})
	appendEntry(t, s, entrySpec{id: "s2", day: day1, typ: domain.TransactionIncome, amount: "600", payment: domain.PaymentBankTransfer, ref: "A"})
	appendEntry(t, s, entrySpec{id: "e1", day: day1, typ: domain.TransactionExpense, amount: "75", payment: domain.PaymentCard, ref: "VISA", source: domain.SourceExpense})
}

func TestReconcileAgreesWithPaymentLines(t *testing.T) {
	s := memory.New()
	engine := newEngine(t, s)
	seedBusinessDay(t, s)
	appendEntry(t, s, entrySpec{id: "manual", day: day1, typ: domain.TransactionIncome, amount: "50", source: domain.SourceAddOpeningBalance})

	result, err := engine.Reconcile(context.Background(), day1)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Empty(t, result.Mismatches)
	assert.Len(t, result.Flows, 3)
}

func TestReconcileSurfacesDivergence(t *testing.T) {
	s := memory.New()
	engine := newEngine(t, s)
	seedBusinessDay(t, s)
	appendEntry(t, s, entrySpec{id: "ghost", day: day1, typ: domain.TransactionIncome, amount: "20", payment: domain.PaymentBankTransfer, ref: "A", source: domain.SourceSalePayment})

	result, err := engine.Reconcile(context.Background(), day1)
	require.ErrorIs(t, err, ledger.ErrBalanceInconsistency)
	assert.False(t, result.Consistent)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, domain.BankAccount("A"), result.Mismatches[0].Account)
	assert.True(t, result.Mismatches[0].Difference.Equal(dec("20")))
	assert.Len(t, result.Flows, 3)
}

func TestReconcileIgnoresDifferencesWithinTolerance(t *testing.T) {
	s := memory.New()
	engine := newEngine(t, s)
	seedBusinessDay(t, s)
	appendEntry(t, s, entrySpec{id: "rounding", day: day1, typ: domain.TransactionIncome, amount: "0.01", source: domain.SourceSalePayment})

	result, err := engine.Reconcile(context.Background(), day1)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}
