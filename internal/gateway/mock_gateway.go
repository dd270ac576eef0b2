package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway implements PaymentGateway for local runs and load simulations
type MockGateway struct {
	config       *MockGatewayConfig
	transactions sync.Map
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// SuccessRate is the probability of successful payment (0.0 to 1.0)
	SuccessRate float64

	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int

	// FailureReasons is a list of possible failure reasons
	FailureReasons []string
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		SuccessRate: 0.95,
		DelayMs:     100,
		FailureReasons: []string{
			"insufficient_funds",
			"card_declined",
			"expired_card",
			"processing_error",
			"fraud_detected",
		},
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}

	if config.SuccessRate < 0 {
		config.SuccessRate = 0
	}
	if config.SuccessRate > 1 {
		config.SuccessRate = 1
	}

	return &MockGateway{
		config: config,
	}
}

// Charge processes a mock payment charge
func (g *MockGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("invalid amount: %.2f", req.Amount)
	}

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	transactionID := fmt.Sprintf("mock_txn_%s", uuid.New().String()[:8])
	resp := &ChargeResponse{
		TransactionID: transactionID,
		Metadata:      req.Metadata,
	}

	if rand.Float64() >= g.config.SuccessRate {
		resp.Status = StatusFailed
		resp.FailureReason = "payment_failed"
		if len(g.config.FailureReasons) > 0 {
			resp.FailureReason = g.config.FailureReasons[rand.Intn(len(g.config.FailureReasons))]
		}
		resp.FailureCode = resp.FailureReason
		return resp, nil
	}

	resp.Success = true
	resp.Status = StatusCompleted
	g.transactions.Store(transactionID, &TransactionInfo{
		TransactionID: transactionID,
		Status:        StatusCompleted,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
		CreatedAt:     time.Now().Format(time.RFC3339),
		Metadata:      req.Metadata,
	})
	return resp, nil
}

// Refund processes a mock refund
func (g *MockGateway) Refund(ctx context.Context, transactionID string, amount float64) error {
	if transactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}

	if err := g.wait(ctx); err != nil {
		return err
	}

	txn, ok := g.transactions.Load(transactionID)
	if !ok {
		return fmt.Errorf("transaction not found: %s", transactionID)
	}

	info := *txn.(*TransactionInfo)
	if info.Status == StatusRefunded {
		return fmt.Errorf("transaction already refunded: %s", transactionID)
	}
	if amount > info.Amount {
		return fmt.Errorf("refund amount %.2f exceeds charge %.2f", amount, info.Amount)
	}
	info.Status = StatusRefunded
	g.transactions.Store(transactionID, &info)

	return nil
}

// GetTransaction retrieves mock transaction details
func (g *MockGateway) GetTransaction(ctx context.Context, transactionID string) (*TransactionInfo, error) {
	txn, ok := g.transactions.Load(transactionID)
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", transactionID)
	}
	info := *txn.(*TransactionInfo)
	return &info, nil
}

func (g *MockGateway) Name() string {
	return "mock"
}

// SetSuccessRate updates the success rate
func (g *MockGateway) SetSuccessRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.config.SuccessRate = rate
}

func (g *MockGateway) wait(ctx context.Context) error {
	if g.config.DelayMs <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		return nil
	}
}
