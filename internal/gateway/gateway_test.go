package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChargeAlwaysAccepting(t *testing.T) {
	provider := &Provider{
		ID:          "TEST",
		Name:        "Test Rail",
		MinLatency:  0,
		MaxLatency:  1,
		SuccessRate: 1.0,
		FeeRate:     0.02,
	}

	charge, err := provider.Charge(100000)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(charge.PaymentID, "EXT_"))
	require.Equal(t, "TEST", charge.ProviderID)
	require.Equal(t, int64(100000), charge.Amount)
	require.Equal(t, int64(2000), charge.Fee)
}

func TestChargeAlwaysDeclining(t *testing.T) {
	provider := &Provider{
		ID:          "TEST",
		Name:        "Test Rail",
		MinLatency:  0,
		MaxLatency:  1,
		SuccessRate: 0,
		FeeRate:     0.02,
	}

	_, err := provider.Charge(100000)
	require.Error(t, err)
}

func TestChargeWithFailoverRejectsNonPositive(t *testing.T) {
	_, err := ChargeWithFailover(0)
	require.Error(t, err)
	_, err = ChargeWithFailover(-5)
	require.Error(t, err)
}

func TestProvidersConfigured(t *testing.T) {
	providers := Providers()
	require.NotEmpty(t, providers)
	for _, p := range providers {
		require.NotEmpty(t, p.ID)
		require.Greater(t, p.SuccessRate, 0.0)
		require.LessOrEqual(t, p.SuccessRate, 1.0)
		require.GreaterOrEqual(t, p.MaxLatency, p.MinLatency)
	}
}
