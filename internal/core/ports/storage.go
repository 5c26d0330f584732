package ports

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

// ErrNotFound is returned (wrapped) by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrSessionClosed is returned by AppendStep once a session is terminal.
var ErrSessionClosed = errors.New("session closed")

// SessionStore holds orchestration sessions. A session has exactly one
// writer, the worker driving it, so implementations only need to guard
// against concurrent access to different sessions and concurrent readers.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// AppendStep appends step and, for conference-chain sessions, replaces the
	// current context with the step's output when the step succeeded. It
	// fails with ErrSessionClosed when the session is no longer running.
	AppendStep(ctx context.Context, id string, step domain.Step) error
	MarkCompleted(ctx context.Context, id string, at time.Time) error
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	ListSessions(ctx context.Context, limit int) ([]*domain.Session, error)
}

// LedgerStore persists credit accounts. Every mutating method is a single
// conditional statement so concurrent callers cannot lose updates.
type LedgerStore interface {
	// EnsureAccount inserts acct unless an account for acct.UserID exists.
	EnsureAccount(ctx context.Context, acct *domain.Account) error
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	// ResetDaily sets the daily allowance to limit when last_reset differs from date.
	ResetDaily(ctx context.Context, userID, date string, limit int64) (bool, error)
	// Debit subtracts amount from both balances when the daily allowance covers it.
	// Total credits are clamped at zero. It reports false when nothing changed.
	Debit(ctx context.Context, userID string, amount int64) (bool, error)
	// Credit adds credits, switches plan and refills the daily allowance.
	Credit(ctx context.Context, g Grant) error
	ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error)
}

// PaymentStore persists checkout attempts.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPaymentByProviderSession(ctx context.Context, providerSessionID string) (*domain.Payment, error)
	// SettlePayment moves a pending payment to completed and applies g in the
	// same transaction. It reports false, changing nothing, when the payment
	// was not pending.
	SettlePayment(ctx context.Context, id string, at time.Time, g Grant) (bool, error)
}

// Grant is a plan purchase ready to be applied to an existing account.
type Grant struct {
	UserID     string
	Credits    int64
	Plan       string
	DailyLimit int64
	Date       string // becomes last_reset
}

// ConversationStore keeps the history of answered chat requests.
type ConversationStore interface {
	SaveConversation(ctx context.Context, c *domain.Conversation) error
	// ListConversations returns a user's exchanges, newest first.
	ListConversations(ctx context.Context, userID string, limit int) ([]*domain.Conversation, error)
}

// SimulationStore persists human-simulator sessions.
type SimulationStore interface {
	CreateSimulation(ctx context.Context, sim *domain.Simulation) error
	GetSimulation(ctx context.Context, id string) (*domain.Simulation, error)
}

// StorageProvider is the durable store used by the gateway runtime.
// Implementations: SQLite (default), PostgreSQL.
type StorageProvider interface {
	LedgerStore
	PaymentStore
	ConversationStore
	SimulationStore
	Close() error
}
