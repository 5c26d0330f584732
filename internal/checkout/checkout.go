// Package checkout sells plans through a hosted payment page and applies
// completed payments to the credit ledger. Without a payment provider it runs
// in demo mode and tops up immediately.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

// Ledger is the slice of the credit ledger checkout needs.
type Ledger interface {
	Plan(id string) (domain.Plan, error)
	TopUp(ctx context.Context, userID, planID string) (*domain.Account, error)
	PrepareTopUp(ctx context.Context, userID, planID string) (ports.Grant, error)
}

// Result is returned to the caller that asked for a checkout.
type Result struct {
	CheckoutURL string          `json:"checkout_url"`
	SessionID   string          `json:"session_id"`
	Demo        bool            `json:"demo,omitempty"`
	Account     *domain.Account `json:"account,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithProvider enables real payments. Without it the service is in demo mode.
func WithProvider(p Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

// WithRedirects sets where the hosted page sends the user afterwards.
func WithRedirects(successURL, cancelURL string) Option {
	return func(s *Service) {
		if successURL != "" {
			s.successURL = successURL
		}
		if cancelURL != "" {
			s.cancelURL = cancelURL
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service creates checkouts and processes payment callbacks.
type Service struct {
	provider   Provider
	payments   ports.PaymentStore
	ledger     Ledger
	successURL string
	cancelURL  string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a checkout service.
func New(payments ports.PaymentStore, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		payments:   payments,
		ledger:     ledger,
		successURL: "http://localhost:8080/success",
		cancelURL:  "http://localhost:8080/cancel",
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Demo reports whether payments are simulated.
func (s *Service) Demo() bool {
	return s.provider == nil
}

// CreateCheckout starts a purchase of planID for userID.
func (s *Service) CreateCheckout(ctx context.Context, userID, planID string) (*Result, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput("user_id is required").WithParam("user_id")
	}
	plan, err := s.ledger.Plan(planID)
	if err != nil {
		return nil, domain.ErrInvalidInput(fmt.Sprintf("unknown plan %q", planID)).
			WithCode(domain.ErrorCodePlanNotFound).
			WithParam("plan_id")
	}
	if plan.Price <= 0 {
		return nil, domain.ErrInvalidInput(fmt.Sprintf("plan %q cannot be purchased", planID)).WithParam("plan_id")
	}

	payment := &domain.Payment{
		ID:        "pay_" + uuid.NewString(),
		UserID:    userID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Currency:  plan.Currency,
		CreatedAt: s.now().UTC(),
	}

	if s.provider == nil {
		return s.demoCheckout(ctx, payment)
	}

	ps, err := s.provider.CreateSession(ctx, SessionRequest{
		UserID:     userID,
		PaymentID:  payment.ID,
		Plan:       plan,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		return nil, err
	}

	payment.ProviderSessionID = ps.ID
	payment.Status = domain.PaymentPending
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Info("checkout created",
		slog.String("user_id", userID),
		slog.String("plan", plan.ID),
		slog.String("session_id", ps.ID))

	return &Result{CheckoutURL: ps.URL, SessionID: ps.ID}, nil
}

func (s *Service) demoCheckout(ctx context.Context, payment *domain.Payment) (*Result, error) {
	completed := s.now().UTC()
	payment.ProviderSessionID = "demo_" + payment.ID
	payment.Status = domain.PaymentDemoSuccess
	payment.CompletedAt = &completed
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	acct, err := s.ledger.TopUp(ctx, payment.UserID, payment.PlanID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("demo checkout applied",
		slog.String("user_id", payment.UserID),
		slog.String("plan", payment.PlanID))

	return &Result{
		CheckoutURL: withSessionID(s.successURL, payment.ProviderSessionID),
		SessionID:   payment.ProviderSessionID,
		Demo:        true,
		Account:     acct,
	}, nil
}

// HandleWebhook verifies a provider callback and applies a completed
// payment. Deliveries are idempotent: a payment is credited at most once.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return domain.ErrInvalidInput("payment webhooks are not configured")
	}

	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if !event.Completed() {
		s.logger.Debug("ignoring webhook event", slog.String("type", event.Type))
		return nil
	}

	payment, err := s.payments.GetPaymentByProviderSession(ctx, event.SessionID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn("webhook for unknown checkout",
				slog.String("session_id", event.SessionID),
				slog.String("user_id", event.UserID))
			return nil
		}
		return err
	}

	if payment.Status != domain.PaymentPending {
		s.logger.Info("duplicate webhook delivery", slog.String("payment_id", payment.ID))
		return nil
	}

	// Any failure below leaves the payment pending so a redelivery retries.
	grant, err := s.ledger.PrepareTopUp(ctx, payment.UserID, payment.PlanID)
	if err != nil {
		return fmt.Errorf("prepare top-up for payment %s: %w", payment.ID, err)
	}
	applied, err := s.payments.SettlePayment(ctx, payment.ID, s.now(), grant)
	if err != nil {
		return fmt.Errorf("settle payment %s: %w", payment.ID, err)
	}
	if !applied {
		s.logger.Info("duplicate webhook delivery", slog.String("payment_id", payment.ID))
		return nil
	}

	s.logger.Info("payment completed",
		slog.String("payment_id", payment.ID),
		slog.String("user_id", payment.UserID),
		slog.String("plan", payment.PlanID))
	return nil
}

func withSessionID(base, sessionID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
