package gateway

import (
	"fmt"
	"strings"
)

// GatewayType represents the type of payment gateway
type GatewayType string

const (
	GatewayTypeNone   GatewayType = "none"
	GatewayTypeMock   GatewayType = "mock"
	GatewayTypeStripe GatewayType = "stripe"
)

// NewPaymentGateway creates a payment gateway based on the type. "none" (or
// an empty type) returns a nil gateway: payments are recorded without
// charging anyone.
func NewPaymentGateway(gatewayType string, config *GatewayConfig) (PaymentGateway, error) {
	switch GatewayType(strings.ToLower(strings.TrimSpace(gatewayType))) {
	case GatewayTypeNone, "":
		return nil, nil

	case GatewayTypeMock:
		mockCfg := DefaultMockGatewayConfig()
		if config != nil {
			mockCfg.SuccessRate = config.MockSuccessRate
			mockCfg.DelayMs = config.MockDelayMs
		}
		return NewMockGateway(mockCfg), nil

	case GatewayTypeStripe:
		if config == nil || config.SecretKey == "" {
			return nil, fmt.Errorf("stripe secret key is required")
		}
		return NewStripeGateway(&StripeGatewayConfig{
			SecretKey:   config.SecretKey,
			Environment: config.Environment,
		})

	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", gatewayType)
	}
}
