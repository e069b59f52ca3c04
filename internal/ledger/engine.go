package ledger

//go:generate mockgen -source=engine.go -destination=store_mock.go -package=ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/locker"
	"kasirinaja/backoffice/internal/store"
)

// Store is the persistence the engine reads from and writes closing rows to.
type Store interface {
	GetOpening(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
	GetClosing(ctx context.Context, day civil.Date) (*domain.BalanceSnapshot, error)
	UpsertClosing(ctx context.Context, snapshot domain.BalanceSnapshot) (*domain.BalanceSnapshot, error)
	ListTransactionsByDay(ctx context.Context, day civil.Date) ([]domain.BalanceTransaction, error)
	EarliestActivity(ctx context.Context) (civil.Date, bool, error)
	ListSalesTouching(ctx context.Context, day civil.Date) ([]domain.Sale, error)
	ListPurchasesTouching(ctx context.Context, day civil.Date) ([]domain.Purchase, error)
	ListExpensesByDay(ctx context.Context, day civil.Date) ([]domain.Expense, error)
}

type Options struct {
	Location        *time.Location
	MaxLookbackDays int
	MaxRangeDays    int
	Tolerance       decimal.Decimal
	Locker          locker.Locker
	Logger          zerolog.Logger
}

// Engine computes and persists closing balances. Only the engine writes closing rows
// outside a recorder unit of work.
type Engine struct {
	store       Store
	locks       locker.Locker
	loc         *time.Location
	maxLookback int
	maxRange    int
	tolerance   decimal.Decimal
	group       singleflight.Group
	log         zerolog.Logger
}

func NewEngine(s Store, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxLookbackDays < 1 {
		opts.MaxLookbackDays = 400
	}
	if opts.MaxRangeDays < 1 {
		opts.MaxRangeDays = 366
	}
	if opts.Locker == nil {
		opts.Locker = locker.NewKeyed()
	}
	return &Engine{
		store:       s,
		locks:       opts.Locker,
		loc:         opts.Location,
		maxLookback: opts.MaxLookbackDays,
		maxRange:    opts.MaxRangeDays,
		tolerance:   opts.Tolerance,
		log:         opts.Logger,
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) MaxRangeDays() int { return e.maxRange }

// Today is the current calendar day in the shop time zone.
func (e *Engine) Today() civil.Date {
	return civil.DateOf(time.Now().In(e.loc))
}

// GetClosingBalance returns the stored closing row for day. On a miss it materializes
// the carry-forward chain up to day and persists every day in it. A stored row is never
// recomputed here.
func (e *Engine) GetClosingBalance(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, error) {
	if err := validateDay(day); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	stored, found, err := e.storedClosing(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if found {
		return stored, nil
	}

	v, err, _ := e.group.Do(day.String(), func() (any, error) {
		return e.materialize(ctx, day)
	})
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return v.(domain.BalanceSnapshot).Clone(), nil
}

// GetPreviousClosing returns closing(day-1), computing it on a miss. It reports
// store.ErrNotFound when day-1 predates all ledger activity.
func (e *Engine) GetPreviousClosing(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, error) {
	if err := validateDay(day); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	previous := day.AddDays(-1)
	stored, found, err := e.storedClosing(ctx, previous)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if found {
		return stored, nil
	}

	earliest, active, err := e.store.EarliestActivity(ctx)
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("load ledger epoch: %w", err)
	}
	if !active || previous.Before(earliest) {
		return domain.BalanceSnapshot{}, store.ErrNotFound
	}
	return e.GetClosingBalance(ctx, previous)
}

// ResolveOpening returns the baseline used for day: the explicit opening row, else the
// previous closing, else zero. explicit reports whether an opening row exists.
func (e *Engine) ResolveOpening(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, bool, error) {
	if err := validateDay(day); err != nil {
		return domain.BalanceSnapshot{}, false, err
	}
	opening, explicit, err := e.storedOpening(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, false, err
	}
	if explicit {
		return opening, true, nil
	}

	previous, err := e.GetPreviousClosing(ctx, day)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewBalances().Snapshot(day), false, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, false, err
	}
	carried := domain.BalancesFromSnapshot(previous).Snapshot(day)
	return carried, false, nil
}

// ComputeClosingBalance refolds day from its resolved opening and upserts the result.
// Repeating it without new entries leaves the stored row untouched.
func (e *Engine) ComputeClosingBalance(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, error) {
	opening, _, err := e.ResolveOpening(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return e.computeDay(ctx, day, domain.BalancesFromSnapshot(opening), false, "recompute")
}

// PreviewClosing folds day without persisting it.
func (e *Engine) PreviewClosing(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, error) {
	opening, _, err := e.ResolveOpening(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return e.fold(ctx, day, domain.BalancesFromSnapshot(opening))
}

// AdjustClosingBalance applies one entry's effect to day's stored closing row. The entry
// must already be in the log: when day has no row yet, the full computation creates it
// and picks the entry up from there.
func (e *Engine) AdjustClosingBalance(ctx context.Context, day civil.Date, amount decimal.Decimal, account domain.Account, isExpense bool) (domain.BalanceSnapshot, error) {
	if err := validateDay(day); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if amount.IsNegative() {
		return domain.BalanceSnapshot{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if err := account.Validate(); err != nil {
		return domain.BalanceSnapshot{}, err
	}
	delta := amount
	if isExpense {
		delta = amount.Neg()
	}

	adjusted, applied, err := e.adjustLocked(ctx, day, account, delta)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if applied {
		closingAdjustments.WithLabelValues("delta").Inc()
		return adjusted, nil
	}
	closingAdjustments.WithLabelValues("full").Inc()
	return e.ComputeClosingBalance(ctx, day)
}

func (e *Engine) adjustLocked(ctx context.Context, day civil.Date, account domain.Account, delta decimal.Decimal) (domain.BalanceSnapshot, bool, error) {
	release, err := e.locks.Lock(ctx, lockKey(day))
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("lock closing %s: %w", day, err)
	}
	defer release()
	return ApplyToStoredClosing(ctx, e.store, day, account, delta)
}

// DayOutcome is one day of a range recompute.
type DayOutcome struct {
	Date    civil.Date              `json:"date"`
	Closing *domain.BalanceSnapshot `json:"closing,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// RecomputeRange recomputes from..to in ascending order. It stops at the first failure
// or cancellation; days already written stay written.
func (e *Engine) RecomputeRange(ctx context.Context, from civil.Date, to civil.Date) ([]DayOutcome, error) {
	if err := ValidateRange(from, to, e.maxRange); err != nil {
		return nil, err
	}

	outcomes := make([]DayOutcome, 0, to.DaysSince(from)+1)
	for day := from; !day.After(to); day = day.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		snap, err := e.ComputeClosingBalance(ctx, day)
		if err != nil {
			outcomes = append(outcomes, DayOutcome{Date: day, Error: err.Error()})
			return outcomes, fmt.Errorf("recompute %s: %w", day, err)
		}
		outcomes = append(outcomes, DayOutcome{Date: day, Closing: &snap})
	}
	e.log.Info().Str("from", from.String()).Str("to", to.String()).Int("days", len(outcomes)).Msg("closing balances recomputed")
	return outcomes, nil
}

// LockDays takes the per-day locks for days in ascending order. The recorder holds them
// across a unit of work that touches several days.
func (e *Engine) LockDays(ctx context.Context, days []civil.Date) (func(), error) {
	ordered := slices.Clone(days)
	slices.SortFunc(ordered, func(a, b civil.Date) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		}
		return 0
	})
	ordered = slices.Compact(ordered)

	releases := make([]func(), 0, len(ordered))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, day := range ordered {
		release, err := e.locks.Lock(ctx, lockKey(day))
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("lock closing %s: %w", day, err)
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func (e *Engine) materialize(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, error) {
	chain, base, err := e.planChain(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if len(chain) == 0 {
		return base.Snapshot(day), nil
	}
	carryForwardChainLength.Observe(float64(len(chain)))

	carried := base
	var last domain.BalanceSnapshot
	for _, link := range chain {
		if err := ctx.Err(); err != nil {
			return domain.BalanceSnapshot{}, err
		}
		snap, err := e.computeDay(ctx, link, carried, true, "read")
		if err != nil {
			return domain.BalanceSnapshot{}, err
		}
		carried = domain.BalancesFromSnapshot(snap)
		last = snap
	}
	if len(chain) > 1 {
		e.log.Debug().Str("date", day.String()).Int("days", len(chain)).Msg("carry-forward chain materialized")
	}
	return last, nil
}

// planChain walks back from day-1 until it finds a stored closing, a day with an explicit
// opening, or the start of ledger activity. It returns the days to compute in ascending
// order and the balances the first of them starts from. The chain is empty when day
// predates all activity; such days read as zero and are not persisted.
func (e *Engine) planChain(ctx context.Context, day civil.Date) ([]civil.Date, domain.Balances, error) {
	chain := []civil.Date{day}
	base := domain.NewBalances()

	_, explicit, err := e.storedOpening(ctx, day)
	if err != nil {
		return nil, nil, err
	}
	if explicit {
		return chain, base, nil
	}

	earliest, active, err := e.store.EarliestActivity(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger epoch: %w", err)
	}
	if !active || day.Before(earliest) {
		return nil, base, nil
	}

	cursor := day.AddDays(-1)
	for depth := 0; !cursor.Before(earliest); depth++ {
		if depth >= e.maxLookback {
			return nil, nil, fmt.Errorf("%w: %s is more than %d days past the last closing", ErrLookbackExceeded, day, e.maxLookback)
		}
		stored, found, err := e.storedClosing(ctx, cursor)
		if err != nil {
			return nil, nil, err
		}
		if found {
			base = domain.BalancesFromSnapshot(stored)
			break
		}
		chain = append(chain, cursor)
		_, opened, err := e.storedOpening(ctx, cursor)
		if err != nil {
			return nil, nil, err
		}
		if opened {
			break
		}
		cursor = cursor.AddDays(-1)
	}

	slices.Reverse(chain)
	return chain, base, nil
}

// computeDay runs one read-fold-write under the day's lock. With reuse set, a row written
// by a concurrent caller in the meantime is returned as is.
func (e *Engine) computeDay(ctx context.Context, day civil.Date, carried domain.Balances, reuse bool, trigger string) (domain.BalanceSnapshot, error) {
	start := time.Now()
	release, err := e.locks.Lock(ctx, lockKey(day))
	if err != nil {
		closingComputations.WithLabelValues(trigger, "lock_failed").Inc()
		return domain.BalanceSnapshot{}, fmt.Errorf("lock closing %s: %w", day, err)
	}
	defer release()

	stored, found, err := e.storedClosing(ctx, day)
	if err != nil {
		closingComputations.WithLabelValues(trigger, "error").Inc()
		return domain.BalanceSnapshot{}, err
	}
	if found && reuse {
		closingComputations.WithLabelValues(trigger, "reused").Inc()
		return stored, nil
	}

	computed, err := e.fold(ctx, day, carried)
	if err != nil {
		closingComputations.WithLabelValues(trigger, "error").Inc()
		return domain.BalanceSnapshot{}, err
	}
	if found && stored.Equal(computed) {
		closingComputations.WithLabelValues(trigger, "unchanged").Inc()
		return stored, nil
	}

	persisted, err := e.store.UpsertClosing(ctx, computed)
	if err != nil {
		closingComputations.WithLabelValues(trigger, "error").Inc()
		return domain.BalanceSnapshot{}, fmt.Errorf("persist closing %s: %w", day, err)
	}
	closingComputations.WithLabelValues(trigger, "persisted").Inc()
	closingComputeDuration.Observe(time.Since(start).Seconds())
	e.log.Debug().
		Str("date", day.String()).
		Str("trigger", trigger).
		Str("cash", persisted.CashBalance.String()).
		Bool("replaced", found).
		Msg("closing balance persisted")
	return *persisted, nil
}

// fold computes day's closing from carried, or from the explicit opening row when one exists.
func (e *Engine) fold(ctx context.Context, day civil.Date, carried domain.Balances) (domain.BalanceSnapshot, error) {
	opening, explicit, err := e.storedOpening(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	base := carried
	if explicit {
		base = domain.BalancesFromSnapshot(opening)
	}
	if base == nil {
		base = domain.NewBalances()
	}

	entries, err := e.store.ListTransactionsByDay(ctx, day)
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("load transactions %s: %w", day, err)
	}
	balances, err := Fold(base, entries, explicit)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return balances.Snapshot(day), nil
}

func (e *Engine) storedClosing(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, bool, error) {
	snap, err := e.store.GetClosing(ctx, day)
	if errors.Is(err, store.ErrNotFound) {
		return domain.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("load closing %s: %w", day, err)
	}
	return *snap, true, nil
}

func (e *Engine) storedOpening(ctx context.Context, day civil.Date) (domain.BalanceSnapshot, bool, error) {
	snap, err := e.store.GetOpening(ctx, day)
	if errors.Is(err, store.ErrNotFound) {
		return domain.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("load opening %s: %w", day, err)
	}
	return *snap, true, nil
}

func lockKey(day civil.Date) string {
	return "closing:" + day.String()
}
