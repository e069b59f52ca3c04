package ledger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/store"
)

// ClosingStore is the slice of a store needed to patch a closing row. Both the engine's
// store and a recorder's unit of work satisfy it.
type ClosingStore interface {
	GetClosing(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
	UpsertClosing(ctx context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error)
}

// OpeningReader finds explicit opening rows.
type OpeningReader interface {
	GetOpening(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
}

// SeedSkipped reports whether the fold of entry's day skips entry. Only opening_balance
// entries need the opening lookup.
func SeedSkipped(ctx context.Context, r OpeningReader, entry domain.BalanceTransaction) (bool, error) {
	if entry.Source != domain.SourceOpeningBalance {
		return false, nil
	}
	_, err := r.GetOpening(ctx, entry.AttributedDate)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load opening %s: %w", entry.AttributedDate, err)
	}
	return SkipsSeed(entry, true), nil
}

// EntryClosingStore can both find explicit openings and patch closing rows.
type EntryClosingStore interface {
	OpeningReader
	ClosingStore
}

// ApplyEntryToStoredClosing patches entry's day closing row with the entry's delta, the
// way a full fold of that day would count it. applied is false when the day has no
// closing row or the fold skips the entry.
func ApplyEntryToStoredClosing(ctx context.Context, s EntryClosingStore, entry domain.BalanceTransaction) (domain.BalanceSnapshot, bool, error) {
	skipped, err := SeedSkipped(ctx, s, entry)
	if err != nil || skipped {
		return domain.BalanceSnapshot{}, false, err
	}
	account, err := entry.Account()
	if err != nil {
		return domain.BalanceSnapshot{}, false, err
	}
	return ApplyToStoredClosing(ctx, s, entry.AttributedDate, account, entry.Delta())
}

// ApplyToStoredClosing adds delta to one account of day's stored closing row and leaves
// every other account alone. applied is false when day has no closing row. The caller
// holds the day's lock.
func ApplyToStoredClosing(ctx context.Context, s ClosingStore, day civil.Date, account domain.Account, delta decimal.Decimal) (domain.BalanceSnapshot, bool, error) {
	stored, err := s.GetClosing(ctx, day)
	if errors.Is(err, store.ErrNotFound) {
		return domain.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("load closing %s: %w", day, err)
	}

	balances := domain.BalancesFromSnapshot(*stored)
	balances.Add(account, delta)
	updated := balances.Snapshot(day)
	persisted, err := s.UpsertClosing(ctx, updated)
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("persist closing %s: %w", day, err)
	}
	return *persisted, true, nil
}
