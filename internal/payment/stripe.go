package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Intent is the provider-side payment intent the buyer's client confirms
// out-of-band. ClientSecret is opaque and round-tripped as-is.
type Intent struct {
	ID           string
	ClientSecret string
}

// IntentProvider requests a payment intent from the external provider for an
// amount already converted to the provider's minor units. It never touches
// local storage.
type IntentProvider interface {
	CreateIntent(ctx context.Context, amount int64, currency string) (*Intent, error)
}

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type StripeProvider struct {
	intents stripeIntentAPI
}

// NewStripeProvider builds an IntentProvider backed by the Stripe API.
func NewStripeProvider(apiKey string) (*StripeProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, nil)
	return &StripeProvider{intents: sc.PaymentIntents}, nil
}

func (p *StripeProvider) CreateIntent(ctx context.Context, amount int64, currency string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	intent, err := p.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return &Intent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// ProviderMessage extracts a human-readable detail from a provider error,
// without leaking anything beyond what Stripe already reports to callers.
func ProviderMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Msg != "" {
			return stripeErr.Msg
		}
		return string(stripeErr.Code)
	}
	return "payment provider unavailable"
}
