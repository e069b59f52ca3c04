package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
)

// AccountFlow compares one account's net movement for a day as seen by the ledger and
// by the payment line items of sales, purchases and expenses.
type AccountFlow struct {
	Account    domain.Account  `json:"account"`
	Ledger     decimal.Decimal `json:"ledger"`
	Records    decimal.Decimal `json:"records"`
	Difference decimal.Decimal `json:"difference"`
}

type Reconciliation struct {
	Date       civil.Date      `json:"date"`
	Tolerance  decimal.Decimal `json:"tolerance"`
	Flows      []AccountFlow   `json:"flows"`
	Mismatches []AccountFlow   `json:"mismatches"`
	Consistent bool            `json:"consistent"`
}

// Reconcile derives day's per-account flows from business records and compares them
// with the ledger entries those records produced. Differences beyond the tolerance are
// returned in full together with ErrBalanceInconsistency.
func (e *Engine) Reconcile(ctx context.Context, day civil.Date) (Reconciliation, error) {
	if err := validateDay(day); err != nil {
		return Reconciliation{}, err
	}

	entries, err := e.store.ListTransactionsByDay(ctx, day)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("load transactions %s: %w", day, err)
	}
	ledgerFlows, err := Flows(entries, domain.Source.IsBusiness)
	if err != nil {
		return Reconciliation{}, err
	}
	recordFlows, err := e.recordFlows(ctx, day)
	if err != nil {
		return Reconciliation{}, err
	}

	result := Reconciliation{
		Date:       day,
		Tolerance:  e.tolerance,
		Flows:      []AccountFlow{},
		Mismatches: []AccountFlow{},
		Consistent: true,
	}
	union := ledgerFlows.Clone()
	for account := range recordFlows {
		union.Add(account, decimal.Zero)
	}
	for _, account := range union.Accounts() {
		flow := AccountFlow{
			Account: account,
			Ledger:  ledgerFlows.Get(account),
			Records: recordFlows.Get(account),
		}
		flow.Difference = flow.Ledger.Sub(flow.Records)
		result.Flows = append(result.Flows, flow)
		if flow.Difference.Abs().GreaterThan(e.tolerance) {
			result.Mismatches = append(result.Mismatches, flow)
		}
	}

	if len(result.Mismatches) > 0 {
		result.Consistent = false
		reconciliationMismatches.Add(float64(len(result.Mismatches)))
		e.log.Warn().Str("date", day.String()).Int("accounts", len(result.Mismatches)).Msg("ledger disagrees with payment records")
		return result, fmt.Errorf("%w: %d account(s) on %s", ErrBalanceInconsistency, len(result.Mismatches), day)
	}
	return result, nil
}

func (e *Engine) recordFlows(ctx context.Context, day civil.Date) (domain.Balances, error) {
	flows := domain.Balances{}
	addLine := func(line domain.PaymentLine, sign int64) error {
		if line.AttributedDate != day {
			return nil
		}
		account, err := domain.AccountFor(line.PaymentType, line.AccountRef)
		if err != nil {
			return fmt.Errorf("payment %s: %w", line.ID, err)
		}
		flows.Add(account, line.Amount.Mul(decimal.NewFromInt(sign)))
		return nil
	}

	sales, err := e.store.ListSalesTouching(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load sales %s: %w", day, err)
	}
	for _, sale := range sales {
		for _, line := range sale.Payments {
			if err := addLine(line, 1); err != nil {
				return nil, err
			}
		}
	}

	purchases, err := e.store.ListPurchasesTouching(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load purchases %s: %w", day, err)
	}
	for _, purchase := range purchases {
		for _, line := range purchase.Payments {
			if err := addLine(line, -1); err != nil {
				return nil, err
			}
		}
	}

	expenses, err := e.store.ListExpensesByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load expenses %s: %w", day, err)
	}
	for _, expense := range expenses {
		account, err := domain.AccountFor(expense.PaymentType, expense.AccountRef)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", expense.ID, err)
		}
		flows.Add(account, expense.Amount.Neg())
	}
	return flows, nil
}
