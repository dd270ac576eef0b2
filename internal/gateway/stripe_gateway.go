package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripeGateway charges through Stripe PaymentIntents, confirmed server side
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey   string
	Environment string // "test" or "live"
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	stripe.Key = config.SecretKey

	return &StripeGateway{
		config: config,
	}, nil
}

// Charge creates and confirms a PaymentIntent in one call.
// Anything but a succeeded intent is reported as a declined charge.
func (g *StripeGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(req.Currency),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			"reference_id": req.ReferenceID,
		},
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if req.CardToken != "" {
		params.PaymentMethod = stripe.String(req.CardToken)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		// card errors come back as API errors; they are declines, not outages
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return &ChargeResponse{
				Success:       false,
				Status:        StatusFailed,
				FailureReason: stripeErr.Msg,
				FailureCode:   string(stripeErr.Code),
			}, nil
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	resp := &ChargeResponse{
		TransactionID: pi.ID,
		Status:        string(pi.Status),
		Metadata:      req.Metadata,
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		resp.Success = true
		resp.Status = StatusCompleted
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction:
		resp.FailureReason = "payment_requires_action"
		resp.FailureCode = string(pi.Status)
	case stripe.PaymentIntentStatusCanceled:
		resp.FailureReason = "payment_canceled"
		resp.FailureCode = "canceled"
	default:
		resp.FailureReason = fmt.Sprintf("unexpected status: %s", pi.Status)
		resp.FailureCode = string(pi.Status)
	}

	return resp, nil
}

// Refund processes a refund through Stripe
func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amount float64) error {
	if transactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	}

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}

	return nil
}

// GetTransaction retrieves transaction details from Stripe
func (g *StripeGateway) GetTransaction(ctx context.Context, transactionID string) (*TransactionInfo, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("transaction ID is required")
	}

	pi, err := paymentintent.Get(transactionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return &TransactionInfo{
		TransactionID: pi.ID,
		Status:        string(pi.Status),
		Amount:        float64(pi.Amount) / 100,
		Currency:      string(pi.Currency),
		CreatedAt:     fmt.Sprintf("%d", pi.Created),
		Metadata:      pi.Metadata,
	}, nil
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

// toMinorUnits converts an amount to the smallest currency unit
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
