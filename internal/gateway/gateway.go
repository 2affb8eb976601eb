package gateway

import (
	"context"
	"errors"
)

// ErrTransactionNotFound is returned for an unknown transaction id
var ErrTransactionNotFound = errors.New("transaction not found")

// PaymentGateway charges and refunds card payments with an external provider
type PaymentGateway interface {
	// Charge processes a payment charge. A declined charge is a response
	// with Success=false, not an error.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)

	// Refund returns amount of a captured transaction
	Refund(ctx context.Context, transactionID string, amount float64) error

	// GetTransaction retrieves transaction details
	GetTransaction(ctx context.Context, transactionID string) (*TransactionInfo, error)

	// Name returns the gateway name
	Name() string
}

// ChargeRequest represents a charge request
type ChargeRequest struct {
	PaymentID   string
	BookingID   string
	Amount      float64
	Currency    string
	Method      string
	Description string
	Metadata    map[string]string

	// CardToken is a provider payment method reference
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

	// mock gateway only
	MockSuccessRate float64
	MockDelayMs     int
}
