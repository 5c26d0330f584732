package domain

import "time"

// Account is a user's credit ledger entry.
type Account struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Credits        int64     `json:"credits" db:"credits"`
	DailyRemaining int64     `json:"daily_remaining" db:"daily_remaining"`
	LastReset      string    `json:"last_reset" db:"last_reset"` // YYYY-MM-DD, UTC
	Plan           string    `json:"plan" db:"plan"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Plan is a purchasable subscription tier.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"` // minor units
	Currency   string `json:"currency"`
	Credits    int64  `json:"credits"`
	DailyLimit int64  `json:"daily_limit"`
	// HumanSimulator unlocks simulated-user sessions, capped at MaxRounds.
	HumanSimulator bool `json:"human_simulator"`
	MaxRounds      int  `json:"max_rounds"`
}

// PaymentStatus tracks a checkout through to top-up.
type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentCompleted   PaymentStatus = "completed"
	PaymentDemoSuccess PaymentStatus = "demo_success"
)

// Payment records one checkout attempt.
type Payment struct {
	ID                string        `json:"id" db:"id"`
	UserID            string        `json:"user_id" db:"user_id"`
	PlanID            string        `json:"plan_id" db:"plan_id"`
	Amount            int64         `json:"amount" db:"amount"`
	Currency          string        `json:"currency" db:"currency"`
	ProviderSessionID string        `json:"provider_session_id" db:"provider_session_id"`
	Status            PaymentStatus `json:"status" db:"status"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}
