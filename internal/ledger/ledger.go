// Package ledger implements the credit ledger: a per-user balance of total
// credits plus a daily allowance that is reset lazily on first access each
// UTC day.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

var (
	// ErrInsufficient is returned when the daily allowance cannot cover a charge.
	ErrInsufficient = errors.New("insufficient credits")
	// ErrUnknownPlan is returned for a plan ID not in the plan table.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrInvalidAmount is returned for non-positive charges.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const dateLayout = "2006-01-02"

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for daily resets.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Ledger charges and tops up user credits.
type Ledger struct {
	store  ports.LedgerStore
	now    func() time.Time
	logger *slog.Logger

	mu          sync.RWMutex
	plans       []domain.Plan
	defaultPlan string
}

// New creates a ledger over store. defaultPlan must name one of plans.
func New(store ports.LedgerStore, plans []domain.Plan, defaultPlan string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.UpdatePlans(plans, defaultPlan); err != nil {
		return nil, err
	}
	return l, nil
}

// UpdatePlans swaps the plan table. Existing accounts keep their plan ID; a
// plan that disappears falls back to the default plan's limits at reset time.
func (l *Ledger) UpdatePlans(plans []domain.Plan, defaultPlan string) error {
	found := false
	for _, p := range plans {
		if p.ID == defaultPlan {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default plan %q: %w", defaultPlan, ErrUnknownPlan)
	}

	cp := make([]domain.Plan, len(plans))
	copy(cp, plans)

	l.mu.Lock()
	l.plans = cp
	l.defaultPlan = defaultPlan
	l.mu.Unlock()
	return nil
}

// Plans returns the active plan table.
func (l *Ledger) Plans() []domain.Plan {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Plan, len(l.plans))
	copy(out, l.plans)
	return out
}

// Plan looks up a plan by ID.
func (l *Ledger) Plan(id string) (domain.Plan, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Plan{}, fmt.Errorf("%q: %w", id, ErrUnknownPlan)
}

func (l *Ledger) planOrDefault(id string) domain.Plan {
	if p, err := l.Plan(id); err == nil {
		return p
	}
	l.mu.RLock()
	def := l.defaultPlan
	l.mu.RUnlock()
	p, _ := l.Plan(def)
	return p
}

func (l *Ledger) today() string {
	return l.now().UTC().Format(dateLayout)
}

// GetBalance returns the user's account, creating it on the default plan and
// applying today's reset if needed.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*domain.Account, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput("user_id is required").WithParam("user_id")
	}

	today := l.today()

	l.mu.RLock()
	defaultPlan := l.defaultPlan
	l.mu.RUnlock()
	plan := l.planOrDefault(defaultPlan)

	if err := l.store.EnsureAccount(ctx, &domain.Account{
		UserID:         userID,
		Credits:        plan.Credits,
		DailyRemaining: plan.DailyLimit,
		LastReset:      today,
		Plan:           plan.ID,
	}); err != nil {
		return nil, err
	}

	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.LastReset == today {
		return acct, nil
	}

	limit := l.planOrDefault(acct.Plan).DailyLimit
	reset, err := l.store.ResetDaily(ctx, userID, today, limit)
	if err != nil {
		return nil, err
	}
	if reset {
		l.logger.Debug("daily allowance reset",
			slog.String("user_id", userID),
			slog.String("date", today),
			slog.Int64("daily_limit", limit))
	}
	return l.store.GetAccount(ctx, userID)
}

// Consume charges amount against the user's daily allowance and total
// credits. Total credits never go below zero; the daily allowance is the
// gate. It returns the account after the charge.
func (l *Ledger) Consume(ctx context.Context, userID string, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%d: %w", amount, ErrInvalidAmount)
	}
	if _, err := l.GetBalance(ctx, userID); err != nil {
		return nil, err
	}

	ok, err := l.store.Debit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficient
	}
	return l.store.GetAccount(ctx, userID)
}

// PrepareTopUp resolves planID and makes sure the user has an account. The
// returned grant is applied by TopUp, or by a payment store settling a
// purchase.
func (l *Ledger) PrepareTopUp(ctx context.Context, userID, planID string) (ports.Grant, error) {
	plan, err := l.Plan(planID)
	if err != nil {
		return ports.Grant{}, err
	}
	if _, err := l.GetBalance(ctx, userID); err != nil {
		return ports.Grant{}, err
	}
	return ports.Grant{
		UserID:     userID,
		Credits:    plan.Credits,
		Plan:       plan.ID,
		DailyLimit: plan.DailyLimit,
		Date:       l.today(),
	}, nil
}

// TopUp adds a plan's credits to the user, switches them to the plan and
// refills the daily allowance to the plan's limit.
func (l *Ledger) TopUp(ctx context.Context, userID, planID string) (*domain.Account, error) {
	g, err := l.PrepareTopUp(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if err := l.store.Credit(ctx, g); err != nil {
		return nil, err
	}

	l.logger.Info("credits topped up",
		slog.String("user_id", userID),
		slog.String("plan", g.Plan),
		slog.Int64("credits", g.Credits))

	return l.store.GetAccount(ctx, userID)
}

// Accounts lists accounts for the control plane.
func (l *Ledger) Accounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	return l.store.ListAccounts(ctx, limit)
}
