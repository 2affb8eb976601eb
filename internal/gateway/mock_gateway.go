package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway implements PaymentGateway in memory for local runs and tests
type MockGateway struct {
	config       *MockGatewayConfig
	transactions sync.Map
	mu           sync.RWMutex
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

// DefaultMockGatewayConfig approves every charge without delay
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		SuccessRate: 1.0,
		FailureReasons: []string{
			"insufficient_funds",
			"card_declined",
			"expired_card",
		},
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	config.SuccessRate = clampRate(config.SuccessRate)

	return &MockGateway{
		config: config,
	}
}

// Charge approves or declines according to the success rate
func (g *MockGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.RLock()
	success := rand.Float64() < g.config.SuccessRate
	reasons := g.config.FailureReasons
	g.mu.RUnlock()

	transactionID := fmt.Sprintf("mock_txn_%s", uuid.New().String()[:8])
	resp := &ChargeResponse{
		TransactionID: transactionID,
		Metadata:      req.Metadata,
	}

	if !success {
		resp.Status = "failed"
		resp.FailureReason = "payment_failed"
		if len(reasons) > 0 {
			resp.FailureReason = reasons[rand.IntN(len(reasons))]
		}
		resp.FailureCode = resp.FailureReason
		return resp, nil
	}

	resp.Success = true
	resp.Status = "completed"
	g.transactions.Store(transactionID, &TransactionInfo{
		TransactionID: transactionID,
		Status:        "completed",
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
		CreatedAt:     time.Now().Format(time.RFC3339),
		Metadata:      req.Metadata,
	})
	return resp, nil
}

// Refund marks a known transaction refunded
func (g *MockGateway) Refund(ctx context.Context, transactionID string, amount float64) error {
	if transactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if err := g.wait(ctx); err != nil {
		return err
	}

	txn, ok := g.transactions.Load(transactionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}

	info := *txn.(*TransactionInfo)
	if amount > info.Amount {
		return fmt.Errorf("refund amount %.2f exceeds charged amount %.2f", amount, info.Amount)
	}
	info.Status = "refunded"
	g.transactions.Store(transactionID, &info)
	return nil
}

// GetTransaction retrieves transaction details
func (g *MockGateway) GetTransaction(ctx context.Context, transactionID string) (*TransactionInfo, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("transaction ID is required")
	}

	txn, ok := g.transactions.Load(transactionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	info := *txn.(*TransactionInfo)
	return &info, nil
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// SetSuccessRate updates the success rate
func (g *MockGateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config.SuccessRate = clampRate(rate)
}

// GetSuccessRate returns the current success rate
func (g *MockGateway) GetSuccessRate() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config.SuccessRate
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

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
