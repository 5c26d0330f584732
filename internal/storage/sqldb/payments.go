package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

const paymentColumns = `id, user_id, plan_id, amount, currency, provider_session_id, status, created_at, completed_at`

// CreatePayment records a checkout attempt.
func (s *Store) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.PlanID, p.Amount, p.Currency, p.ProviderSessionID, string(p.Status), p.CreatedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByProviderSession looks a payment up by the payment provider's
// checkout session ID.
func (s *Store) GetPaymentByProviderSession(ctx context.Context, providerSessionID string) (*domain.Payment, error) {
	var p domain.Payment
	query := s.dialect.Rebind(`SELECT ` + paymentColumns + ` FROM payments WHERE provider_session_id = ?`)
	if err := s.db.GetContext(ctx, &p, query, providerSessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment for %s %w", providerSessionID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// SettlePayment completes a pending payment and credits the account in one
// transaction. A replayed webhook finds the payment completed and gets false;
// a failed credit rolls the status back so the next delivery retries.
func (s *Store) SettlePayment(ctx context.Context, id string, at time.Time, g ports.Grant) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.Rebind(`UPDATE payments SET status = ?, completed_at = ? WHERE id = ? AND status = ?`)
	res, err := tx.ExecContext(ctx, query, string(domain.PaymentCompleted), at.UTC(), id, string(domain.PaymentPending))
	if err != nil {
		return false, fmt.Errorf("failed to complete payment: %w", err)
	}
	pending, err := affected(res)
	if err != nil || !pending {
		return false, err
	}

	if err := s.credit(ctx, tx, g); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}
