package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

const accountColumns = `user_id, credits, daily_remaining, last_reset, plan, created_at, updated_at`

// EnsureAccount inserts acct unless the user already has an account.
func (s *Store) EnsureAccount(ctx context.Context, acct *domain.Account) error {
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = now
	}

	query := s.dialect.Rebind(`INSERT INTO users (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?) ` + s.dialect.InsertIgnoreClause("user_id"))

	_, err := s.db.ExecContext(ctx, query,
		acct.UserID, acct.Credits, acct.DailyRemaining, acct.LastReset, acct.Plan, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by user ID.
func (s *Store) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	var acct domain.Account
	query := s.dialect.Rebind(`SELECT ` + accountColumns + ` FROM users WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &acct, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s %w", userID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// ResetDaily refills the daily allowance once per calendar date.
func (s *Store) ResetDaily(ctx context.Context, userID, date string, limit int64) (bool, error) {
	query := s.dialect.Rebind(`UPDATE users SET daily_remaining = ?, last_reset = ?, updated_at = ?
		WHERE user_id = ? AND last_reset <> ?`)

	res, err := s.db.ExecContext(ctx, query, limit, date, time.Now().UTC(), userID, date)
	if err != nil {
		return false, fmt.Errorf("failed to reset daily allowance: %w", err)
	}
	return affected(res)
}

// Debit charges amount against the daily allowance and total credits in one
// statement. The WHERE clause is the balance check.
func (s *Store) Debit(ctx context.Context, userID string, amount int64) (bool, error) {
	query := s.dialect.Rebind(`UPDATE users SET credits = ` + s.dialect.Greatest("credits - ?", "0") + `,
		daily_remaining = daily_remaining - ?, updated_at = ?
		WHERE user_id = ? AND daily_remaining >= ?`)

	res, err := s.db.ExecContext(ctx, query, amount, amount, time.Now().UTC(), userID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit account: %w", err)
	}
	return affected(res)
}

// Credit applies a plan purchase.
func (s *Store) Credit(ctx context.Context, g ports.Grant) error {
	return s.credit(ctx, s.db, g)
}

func (s *Store) credit(ctx context.Context, db sqlx.ExecerContext, g ports.Grant) error {
	query := s.dialect.Rebind(`UPDATE users SET credits = credits + ?, plan = ?, daily_remaining = ?,
		last_reset = ?, updated_at = ? WHERE user_id = ?`)

	res, err := db.ExecContext(ctx, query, g.Credits, g.Plan, g.DailyLimit, g.Date, time.Now().UTC(), g.UserID)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %s %w", g.UserID, ports.ErrNotFound)
	}
	return nil
}

// ListAccounts returns the most recently updated accounts.
func (s *Store) ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.dialect.Rebind(`SELECT ` + accountColumns + ` FROM users ORDER BY updated_at DESC LIMIT ?`)

	var accounts []*domain.Account
	if err := s.db.SelectContext(ctx, &accounts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
