package gateway

import (
	"context"
)

// Transaction statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// PaymentGateway defines the interface for payment processing
type PaymentGateway interface {
	// Charge processes a payment charge. A declined charge is reported through
	// ChargeResponse.Success; an error means the gateway could not be reached.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)

	// Refund returns a completed charge to the payer
	Refund(ctx context.Context, transactionID string, amount float64) error

	// GetTransaction retrieves transaction details
	GetTransaction(ctx context.Context, transactionID string) (*TransactionInfo, error)

	Name() string
}

// ChargeRequest represents a charge request
type ChargeRequest struct {
	// ReferenceID ties the charge to the hold it pays for
	ReferenceID string
	Amount      float64
	Currency    string
	Method      string
	Description string
	Metadata    map[string]string

	// Card or payment method token
	CardToken string

	CustomerID    string
	CustomerEmail string
}

// ChargeResponse represents a charge response
type ChargeResponse struct {
	Success       bool
	TransactionID string
	Status        string
	FailureReason string
	FailureCode   string
	Metadata      map[string]string
}

// TransactionInfo represents transaction details
type TransactionInfo struct {
	TransactionID string
	Status        string
	Amount        float64
	Currency      string
	Method        string
	CreatedAt     string
	Metadata      map[string]string
}

// GatewayConfig holds common gateway configuration
type GatewayConfig struct {
	SecretKey   string
	Environment string // "test" or "live"

	// Mock gateway settings
	MockSuccessRate float64
	MockDelayMs     int
}
