package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
)

// Step is one entry replayed against the running balances.
type Step struct {
	Entry   domain.BalanceTransaction
	Account domain.Account
	Before  decimal.Decimal
	After   decimal.Decimal
	// Skipped marks an opening_balance seed already carried by an explicit opening row.
	Skipped bool
}

// Replay folds entries over base in (CreatedAt, ID) order and records each step.
// base is not modified.
func Replay(base domain.Balances, entries []domain.BalanceTransaction, explicitOpening bool) (domain.Balances, []Step, error) {
	running := base.Clone()
	if _, ok := running[domain.CashAccount()]; !ok {
		running[domain.CashAccount()] = decimal.Zero
	}

	ordered := slices.Clone(entries)
	SortEntries(ordered)

	steps := make([]Step, 0, len(ordered))
	for _, entry := range ordered {
		account, err := entry.Account()
		if err != nil {
			return nil, nil, fmt.Errorf("transaction %s: %w", entry.ID, err)
		}
		before := running.Get(account)
		if SkipsSeed(entry, explicitOpening) {
			steps = append(steps, Step{Entry: entry, Account: account, Before: before, After: before, Skipped: true})
			continue
		}
		running.Add(account, entry.Delta())
		steps = append(steps, Step{Entry: entry, Account: account, Before: before, After: running.Get(account)})
	}
	return running, steps, nil
}

// SkipsSeed reports whether entry is an opening_balance seed that an explicit opening
// row already carries. Such entries never move a balance.
func SkipsSeed(entry domain.BalanceTransaction, explicitOpening bool) bool {
	return explicitOpening && entry.Source == domain.SourceOpeningBalance
}

// Fold is Replay without the step trace.
func Fold(base domain.Balances, entries []domain.BalanceTransaction, explicitOpening bool) (domain.Balances, error) {
	result, _, err := Replay(base, entries, explicitOpening)
	return result, err
}

func SortEntries(entries []domain.BalanceTransaction) {
	slices.SortFunc(entries, func(a, b domain.BalanceTransaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Flows sums the signed movement per account, optionally restricted by source.
func Flows(entries []domain.BalanceTransaction, keep func(domain.Source) bool) (domain.Balances, error) {
	flows := domain.Balances{}
	for _, entry := range entries {
		if keep != nil && !keep(entry.Source) {
			continue
		}
		account, err := entry.Account()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", entry.ID, err)
		}
		flows.Add(account, entry.Delta())
	}
	return flows, nil
}
