package gateway

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Provider represents a mock off-chain payment provider. It stands in for
// the real gateway during simulations; the core never talks to it directly,
// it only receives the resulting confirmation callback.
type Provider struct {
	ID          string
	Name        string
	MinLatency  int // in milliseconds
	MaxLatency  int
	SuccessRate float64 // 0-1, probability of a successful charge
	FeeRate     float64 // percentage of the charged amount
}

// Charge is a successful off-chain payment.
type Charge struct {
	PaymentID  string    `json:"payment_id"`
	ProviderID string    `json:"provider_id"`
	Method     string    `json:"method"`
	Amount     int64     `json:"amount"`
	Fee        int64     `json:"fee"`
	ChargedAt  time.Time `json:"charged_at"`
}

var mockProviders = []*Provider{
	{
		ID:          "PAY1",
		Name:        "Primary Card Gateway",
		MinLatency:  20,
		MaxLatency:  120,
		SuccessRate: 0.97,
		FeeRate:     0.029, // 2.9%
	},
	{
		ID:          "PAY2",
		Name:        "Bank Transfer Rail",
		MinLatency:  50,
		MaxLatency:  300,
		SuccessRate: 0.92,
		FeeRate:     0.008, // 0.8%
	},
	{
		ID:          "PAY3",
		Name:        "Regional Wallet",
		MinLatency:  30,
		MaxLatency:  200,
		SuccessRate: 0.85,
		FeeRate:     0.015, // 1.5%
	},
}

// Charge simulates charging an amount through this provider.
func (p *Provider) Charge(amount int64) (*Charge, error) {
	logger := log.With().
		Str("provider_id", p.ID).
		Int64("amount", amount).
		Logger()

	logger.Debug().Msg("attempting off-chain charge")

	// Simulate network latency
	latency := rand.Intn(p.MaxLatency-p.MinLatency+1) + p.MinLatency
	time.Sleep(time.Duration(latency) * time.Millisecond)

	if rand.Float64() > p.SuccessRate {
		logger.Warn().Msg("provider declined the charge")
		return nil, fmt.Errorf("provider %s declined the charge", p.ID)
	}

	charge := &Charge{
		PaymentID:  "EXT_" + uuid.New().String(),
		ProviderID: p.ID,
		Method:     p.Name,
		Amount:     amount,
		Fee:        int64(float64(amount) * p.FeeRate),
		ChargedAt:  time.Now(),
	}

	logger.Debug().
		Str("payment_id", charge.PaymentID).
		Int64("fee", charge.Fee).
		Msg("charge succeeded")

	return charge, nil
}

// ChargeWithFailover tries each provider in order until one accepts the
// charge. Returns an error when every provider declines.
func ChargeWithFailover(amount int64) (*Charge, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("charge amount must be positive")
	}

	for _, provider := range mockProviders {
		charge, err := provider.Charge(amount)
		if err != nil {
			continue
		}
		return charge, nil
	}
	return nil, fmt.Errorf("all payment providers declined the charge")
}

// Providers returns the configured mock providers.
func Providers() []*Provider {
	return mockProviders
}
