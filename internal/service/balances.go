package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/report"
	"kasirinaja/backoffice/internal/store"
)

// SetOpeningBalance stores the explicit opening of a day. A closing already stored for
// that day is recomputed from the new opening.
func (s *Service) SetOpeningBalance(ctx context.Context, req domain.OpeningBalanceRequest) (domain.BalanceSnapshot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	day, err := ledger.ParseDay(req.Date)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	balances, err := openingBalances(req)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	release, err := s.engine.LockDays(ctx, []civil.Date{day})
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	saved, err := s.repo.SetOpening(ctx, balances.Snapshot(day))
	release()
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	if _, err := s.repo.GetClosing(ctx, day); err == nil {
		if _, err := s.engine.ComputeClosingBalance(ctx, day); err != nil {
			return domain.BalanceSnapshot{}, fmt.Errorf("recompute closing %s: %w", day, err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.BalanceSnapshot{}, err
	}
	s.reports.InvalidateDays(ctx, day)

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("date", day.String()).
		Str("cash", saved.CashBalance.String()).
		Int("bank_accounts", len(saved.BankBalances)).
		Int("card_accounts", len(saved.CardBalances)).
		Msg("opening balance set")
	return *saved, nil
}

func openingBalances(req domain.OpeningBalanceRequest) (domain.Balances, error) {
	balances := domain.NewBalances()
	balances.Add(domain.CashAccount(), req.CashBalance)

	seen := map[domain.Account]bool{}
	add := func(account domain.Account, entry domain.AccountBalance) error {
		if err := account.Validate(); err != nil {
			return err
		}
		if seen[account] {
			return invalid("duplicate %s in opening balance", account)
		}
		seen[account] = true
		balances.Add(account, entry.Balance)
		return nil
	}
	for _, entry := range req.BankBalances {
		if err := add(domain.BankAccount(strings.TrimSpace(entry.AccountRef)), entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range req.CardBalances {
		if err := add(domain.CardAccount(strings.TrimSpace(entry.AccountRef)), entry); err != nil {
			return nil, err
		}
	}
	return balances, nil
}

// GetOpeningBalance returns the explicit opening of a day, or the balances carried from
// the previous day's closing.
func (s *Service) GetOpeningBalance(ctx context.Context, date string) (domain.OpeningBalanceResponse, error) {
	day, err := ledger.ParseDay(date)
	if err != nil {
		return domain.OpeningBalanceResponse{}, err
	}
	opening, explicit, err := s.engine.ResolveOpening(ctx, day)
	if err != nil {
		return domain.OpeningBalanceResponse{}, err
	}
	return domain.OpeningBalanceResponse{Opening: opening, Explicit: explicit}, nil
}

// AddToOpeningOrClosingBalance records an add_opening_balance entry on one account and
// returns the day's closing with the entry applied.
func (s *Service) AddToOpeningOrClosingBalance(ctx context.Context, req domain.BalanceAdjustRequest) (domain.BalanceAdjustResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.BalanceAdjustResponse{}, err
	}
	day, err := ledger.ParseDay(req.Date)
	if err != nil {
		return domain.BalanceAdjustResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.BalanceAdjustResponse{}, fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, req.Amount)
	}
	account, err := domain.AccountFor(req.PaymentType, req.AccountRef)
	if err != nil {
		return domain.BalanceAdjustResponse{}, err
	}

	typ := domain.TransactionIncome
	if req.IsExpense {
		typ = domain.TransactionExpense
	}
	entry := s.newEntry(typ, req.Amount, account, &day, day, domain.SourceAddOpeningBalance, "", s.now().UTC())
	entry.Note = strings.TrimSpace(req.Note)

	entries := []domain.BalanceTransaction{entry}
	if err := s.stampAudit(ctx, entries, req.IsExpense); err != nil {
		return domain.BalanceAdjustResponse{}, err
	}
	persisted, err := s.commit(ctx, entries, nil)
	if err != nil {
		return domain.BalanceAdjustResponse{}, err
	}

	closing, err := s.engine.GetClosingBalance(ctx, day)
	if err != nil {
		return domain.BalanceAdjustResponse{}, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("date", day.String()).
		Str("account", account.String()).
		Str("amount", req.Amount.String()).
		Bool("expense", req.IsExpense).
		Msg("balance adjusted")
	return domain.BalanceAdjustResponse{Transaction: persisted[0], Closing: closing}, nil
}

func (s *Service) GetClosingBalance(ctx context.Context, date string) (domain.BalanceSnapshot, error) {
	day, err := ledger.ParseDay(date)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return s.engine.GetClosingBalance(ctx, day)
}

// RecomputeClosingBalances refolds every day of the range and overwrites the stored closings.
func (s *Service) RecomputeClosingBalances(ctx context.Context, req domain.RecomputeRequest) ([]ledger.DayOutcome, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	from, err := ledger.ParseDay(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ledger.ParseDay(req.To)
	if err != nil {
		return nil, err
	}

	outcomes, err := s.engine.RecomputeRange(ctx, from, to)
	days := make([]civil.Date, 0, len(outcomes))
	for _, outcome := range outcomes {
		days = append(days, outcome.Date)
	}
	s.reports.InvalidateDays(ctx, days...)
	if err != nil {
		return outcomes, err
	}

	s.log.Info().
		Str("actor", actorName(ctx)).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("closing balances recomputed on request")
	return outcomes, nil
}

func (s *Service) GetDailyReport(ctx context.Context, date string) (report.Report, error) {
	day, err := ledger.ParseDay(date)
	if err != nil {
		return report.Report{}, err
	}
	return s.reports.BuildDailyReport(ctx, day)
}

func (s *Service) GetRangeReport(ctx context.Context, start string, end string) (report.RangeReport, error) {
	from, err := ledger.ParseDay(start)
	if err != nil {
		return report.RangeReport{}, err
	}
	to, err := ledger.ParseDay(end)
	if err != nil {
		return report.RangeReport{}, err
	}
	return s.reports.BuildRangeReport(ctx, from, to)
}

// ReconcileDay compares the day's ledger flows with its payment line items. On a mismatch
// the full comparison is returned together with ledger.ErrBalanceInconsistency.
func (s *Service) ReconcileDay(ctx context.Context, date string) (ledger.Reconciliation, error) {
	day, err := ledger.ParseDay(date)
	if err != nil {
		return ledger.Reconciliation{}, err
	}
	result, err := s.engine.Reconcile(ctx, day)
	if errors.Is(err, ledger.ErrBalanceInconsistency) {
		s.log.Warn().
			Str("date", day.String()).
			Int("mismatches", len(result.Mismatches)).
			Msg("ledger does not match payment records")
	}
	return result, err
}
