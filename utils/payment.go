package utils

import (
	"context"
	"errors"
	"fmt"

	"storefront-api/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

var ErrPaymentsNotConfigured = errors.New("card payments are not configured")

// PaymentGateway creates card payment intents for orders
type PaymentGateway interface {
	CreateIntent(ctx context.Context, order *models.Order) (*models.PaymentIntent, error)
}

type stripeGateway struct {
	api      *client.API
	currency string
}

// NewPaymentGateway returns a Stripe gateway, or nil when no key is configured
func NewPaymentGateway(cfg *Config) PaymentGateway {
	if cfg.StripeSecretKey == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(cfg.StripeSecretKey, nil)
	return &stripeGateway{api: sc, currency: cfg.Currency}
}

// MinorUnits converts an amount to the smallest currency unit, e.g. paise
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (g *stripeGateway) CreateIntent(ctx context.Context, order *models.Order) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(order.TotalAmount)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("orderId", order.ID.Hex())
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}
