package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/holiman/uint256"
)

// Deposit is either a quote-currency amount or a pair of raw token amounts.
// Exactly one form must be set.
type Deposit struct {
	USD          *float64 `json:"usd,omitempty"`
	Token0Amount string   `json:"token0Amount,omitempty"`
	Token1Amount string   `json:"token1Amount,omitempty"`
}

// USDDeposit builds a quote-currency deposit.
func USDDeposit(amount float64) Deposit {
	return Deposit{USD: &amount}
}

// TokenDeposit builds a raw token amount deposit.
func TokenDeposit(amount0, amount1 string) Deposit {
	return Deposit{Token0Amount: amount0, Token1Amount: amount1}
}

// IsUSD reports whether the deposit is expressed in quote currency.
func (d Deposit) IsUSD() bool {
	return d.USD != nil
}

// Amounts parses the raw token amounts. Blank amounts are zero.
func (d Deposit) Amounts() (*uint256.Int, *uint256.Int, error) {
	amount0, err := parseAmount(d.Token0Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: token0 amount: %v", ErrInvalidInput, err)
	}
	amount1, err := parseAmount(d.Token1Amount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: token1 amount: %v", ErrInvalidInput, err)
	}
	return amount0, amount1, nil
}

func (d Deposit) validate() error {
	hasTokens := strings.TrimSpace(d.Token0Amount) != "" || strings.TrimSpace(d.Token1Amount) != ""
	switch {
	case d.USD != nil && hasTokens:
		return fmt.Errorf("%w: deposit must be either usd or token amounts, not both", ErrInvalidInput)
	case d.USD == nil && !hasTokens:
		return fmt.Errorf("%w: deposit is required", ErrInvalidInput)
	case d.USD != nil:
		if math.IsNaN(*d.USD) || math.IsInf(*d.USD, 0) || *d.USD <= 0 {
			return fmt.Errorf("%w: usd deposit must be positive", ErrInvalidInput)
		}
		return nil
	}

	amount0, amount1, err := d.Amounts()
	if err != nil {
		return err
	}
	if amount0.IsZero() && amount1.IsZero() {
		return fmt.Errorf("%w: token amounts are zero", ErrInvalidInput)
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(raw)
}

// PositionInput describes a candidate liquidity position.
type PositionInput struct {
	ChainID   uint64  `json:"chainId"`
	PoolID    string  `json:"poolId"`
	TickLower int32   `json:"tickLower"`
	TickUpper int32   `json:"tickUpper"`
	FullRange bool    `json:"isFullRange"`
	Deposit   Deposit `json:"deposit"`
}

// Normalize lowercases the pool id and applies the full-range ticks.
func (p PositionInput) Normalize() PositionInput {
	p.PoolID = NormalizePoolID(p.PoolID)
	if p.FullRange {
		p.TickLower, p.TickUpper = FullRangeTicks(DefaultTickSpacing)
	}
	return p
}

// Validate checks the position after normalization.
func (p PositionInput) Validate() error {
	if p.ChainID == 0 {
		return fmt.Errorf("%w: chain id is required", ErrInvalidInput)
	}
	if _, err := ParseAddress(p.PoolID); err != nil {
		return err
	}
	if p.TickLower < MinTick || p.TickUpper > MaxTick {
		return fmt.Errorf("%w: ticks must be within [%d, %d]", ErrInvalidInput, MinTick, MaxTick)
	}
	if p.TickLower >= p.TickUpper {
		return fmt.Errorf("%w: tickLower %d must be below tickUpper %d", ErrInvalidInput, p.TickLower, p.TickUpper)
	}
	return p.Deposit.validate()
}
