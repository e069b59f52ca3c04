package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/report"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

var recordedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_recorded_entries_total",
	Help: "Ledger entries appended by the recorder, by source.",
}, []string{"source"})

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger zerolog.Logger
	Now    func() time.Time
}

// Service records business events into the ledger and serves balances and reports.
type Service struct {
	repo    store.Repository
	engine  *ledger.Engine
	reports *report.Composer
	log     zerolog.Logger
	now     func() time.Time
}

func New(repo store.Repository, engine *ledger.Engine, reports *report.Composer, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:    repo,
		engine:  engine,
		reports: reports,
		log:     opts.Logger,
		now:     opts.Now,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

// stampAudit fills before/after/change on entries from the previewed closing of each
// entry's day. New entries are stamped now, so they sort after everything already on
// that day. An opening_balance seed on a day with an explicit opening is stamped with a
// zero change, as the fold skips it. With enforce set, an outgoing entry that would take its account below zero
// fails with ErrInsufficientBalance; without it, a failed preview only skips the stamps.
func (s *Service) stampAudit(ctx context.Context, entries []domain.BalanceTransaction, enforce bool) error {
	running := map[civil.Date]domain.Balances{}
	for _, day := range affectedDays(entries) {
		preview, err := s.engine.PreviewClosing(ctx, day)
		if err != nil {
			if enforce {
				return fmt.Errorf("preview %s: %w", day, err)
			}
			s.log.Warn().Err(err).Str("date", day.String()).Msg("balance preview unavailable; entries recorded without audit balances")
			return nil
		}
		running[day] = domain.BalancesFromSnapshot(preview)
	}

	for i := range entries {
		entry := &entries[i]
		account, err := entry.Account()
		if err != nil {
			return err
		}
		skipped, err := ledger.SeedSkipped(ctx, s.repo, *entry)
		if err != nil {
			return err
		}
		balances := running[entry.AttributedDate]
		before := balances.Get(account)
		change := entry.Delta()
		if skipped {
			change = decimal.Zero
		}
		after := before.Add(change)
		if enforce && entry.Type == domain.TransactionExpense && after.IsNegative() {
			return fmt.Errorf("%w: %s would fall to %s on %s", ledger.ErrInsufficientBalance, account, after.StringFixed(2), entry.AttributedDate)
		}
		entry.BeforeBalance = &before
		entry.ChangeAmount = &change
		entry.AfterBalance = &after
		balances.Add(account, change)
	}
	return nil
}

// commit runs write and appends entries in one unit of work while holding the locks of
// every day the entries land on. Stored closings of those days absorb each entry's delta
// inside the same unit of work.
func (s *Service) commit(ctx context.Context, entries []domain.BalanceTransaction, write func(ctx context.Context, tx store.Tx) error) ([]domain.BalanceTransaction, error) {
	days := affectedDays(entries)
	release, err := s.engine.LockDays(ctx, days)
	if err != nil {
		return nil, err
	}
	defer release()

	var persisted []domain.BalanceTransaction
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		persisted = make([]domain.BalanceTransaction, 0, len(entries))
		if write != nil {
			if err := write(ctx, tx); err != nil {
				return err
			}
		}
		for _, entry := range entries {
			created, err := tx.AppendTransaction(ctx, entry)
			if err != nil {
				return err
			}
			if _, _, err := ledger.ApplyEntryToStoredClosing(ctx, tx, *created); err != nil {
				return err
			}
			persisted = append(persisted, *created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range persisted {
		recordedEntries.WithLabelValues(string(entry.Source)).Inc()
	}
	s.reports.InvalidateDays(ctx, days...)
	return persisted, nil
}

func (s *Service) newEntry(typ domain.TransactionType, amount decimal.Decimal, account domain.Account, date *civil.Date, attributed civil.Date, source domain.Source, sourceID string, createdAt time.Time) domain.BalanceTransaction {
	return domain.BalanceTransaction{
		ID:             xid.New("btx"),
		Date:           date,
		AttributedDate: attributed,
		CreatedAt:      createdAt,
		Type:           typ,
		Amount:         amount,
		PaymentType:    account.PaymentType(),
		AccountRef:     account.Ref,
		Source:         source,
		SourceID:       sourceID,
	}
}

func affectedDays(entries []domain.BalanceTransaction) []civil.Date {
	days := make([]civil.Date, 0, len(entries))
	for _, entry := range entries {
		days = append(days, entry.AttributedDate)
	}
	slices.SortFunc(days, func(a, b civil.Date) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		}
		return 0
	})
	return slices.Compact(days)
}

func isKnownSource(source domain.Source) bool {
	switch source {
	case domain.SourceSale, domain.SourceSalePayment, domain.SourcePurchase, domain.SourcePurchasePayment,
		domain.SourceExpense, domain.SourceAddOpeningBalance, domain.SourceOpeningBalance,
		domain.SourceSaleRefund, domain.SourcePurchaseRefund:
		return true
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
