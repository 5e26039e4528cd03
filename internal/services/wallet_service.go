package services

import (
	"context"
	"fmt"

	"astroconnect/internal/upstream"

	"github.com/shopspring/decimal"
)

// BalanceCheck is the outcome of the pre-request wallet gate.
type BalanceCheck struct {
	Balance    decimal.Decimal `json:"balance"`
	Required   decimal.Decimal `json:"required"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	Sufficient bool            `json:"sufficient"`
}

// WalletService gates session requests on wallet balance. The wallet
// itself lives upstream; this service only reads it and applies the
// minimum-minutes rule.
type WalletService struct {
	api            upstream.WalletAPI
	minimumMinutes int64
}

func NewWalletService(api upstream.WalletAPI, minimumMinutes int64) *WalletService {
	if minimumMinutes <= 0 {
		minimumMinutes = 5
	}
	return &WalletService{api: api, minimumMinutes: minimumMinutes}
}

// RequiredBalance returns the minimum balance needed to start a session
// at the given per-minute rate.
func (s *WalletService) RequiredBalance(pricePerMinute decimal.Decimal) decimal.Decimal {
	return pricePerMinute.Mul(decimal.NewFromInt(s.minimumMinutes))
}

// Check fetches the user's balance and compares it against the minimum
// for the given rate. Shortfall is zero when the balance is sufficient.
func (s *WalletService) Check(ctx context.Context, userID string, pricePerMinute decimal.Decimal) (*BalanceCheck, error) {
	balance, err := s.api.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet balance: %w", err)
	}

	required := s.RequiredBalance(pricePerMinute)
	check := &BalanceCheck{
		Balance:    balance,
		Required:   required,
		Shortfall:  decimal.Zero,
		Sufficient: balance.GreaterThanOrEqual(required),
	}
	if !check.Sufficient {
		check.Shortfall = required.Sub(balance)
	}
	return check, nil
}
