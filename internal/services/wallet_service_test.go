package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredBalanceIsFiveMinutes(t *testing.T) {
	svc := NewWalletService(newFakeAPI(), 5)

	required := svc.RequiredBalance(decimal.RequireFromString("12.50"))
	assert.True(t, required.Equal(decimal.RequireFromString("62.50")))
}

func TestCheckSufficient(t *testing.T) {
	api := newFakeAPI()
	api.balanceFn = func(ctx context.Context, userID string) (decimal.Decimal, error) {
		return decimal.NewFromInt(50), nil
	}
	svc := NewWalletService(api, 5)

	check, err := svc.Check(context.Background(), "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, check.Sufficient)
	assert.True(t, check.Shortfall.IsZero())
}

func TestCheckShortfall(t *testing.T) {
	api := newFakeAPI()
	api.balanceFn = func(ctx context.Context, userID string) (decimal.Decimal, error) {
		return decimal.RequireFromString("37.25"), nil
	}
	svc := NewWalletService(api, 5)

	check, err := svc.Check(context.Background(), "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, check.Sufficient)
	assert.True(t, check.Shortfall.Equal(decimal.RequireFromString("12.75")))
}
