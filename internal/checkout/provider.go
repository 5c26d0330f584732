package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

const eventCheckoutCompleted = "checkout.session.completed"

// SessionRequest describes one hosted checkout page.
type SessionRequest struct {
	UserID     string
	PaymentID  string
	Plan       domain.Plan
	SuccessURL string
	CancelURL  string
}

// ProviderSession is the payment provider's handle for a checkout.
type ProviderSession struct {
	ID  string
	URL string
}

// WebhookEvent is the part of a provider callback the gateway acts on.
type WebhookEvent struct {
	Type      string
	SessionID string
	UserID    string
	PlanID    string
}

// Completed reports whether the event confirms a paid checkout.
func (e *WebhookEvent) Completed() bool {
	return e.Type == eventCheckoutCompleted
}

// Provider creates hosted checkout sessions and verifies their callbacks.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// StripeProvider is a Provider backed by Stripe Checkout.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a provider. backends may be nil to use Stripe's
// production endpoints.
func NewStripeProvider(secretKey, webhookSecret string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error) {
	currency := req.Plan.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.PaymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.Plan.Name + " Plan"),
						Description: stripe.String(fmt.Sprintf("%d credits, %d per day", req.Plan.Credits, req.Plan.DailyLimit)),
					},
					UnitAmount: stripe.Int64(req.Plan.Price),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("plan_id", req.Plan.ID)

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &ProviderSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{Type: string(event.Type)}
	if !out.Completed() {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	out.SessionID = sess.ID
	out.UserID = sess.Metadata["user_id"]
	out.PlanID = sess.Metadata["plan_id"]
	return out, nil
}
