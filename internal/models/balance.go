package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const amountPlaces = 7

var (
	// MinAmount and MaxAmount bound the amounts accepted from users.
	MinAmount = decimal.New(1, -amountPlaces)
	MaxAmount = decimal.NewFromInt(100000)

	ErrAmountTooPrecise = errors.New("amount has more than 7 fractional digits")
	ErrAmountOutOfRange = errors.New("amount is outside 0.0000001..100000")
)

// Balance is the amount of one coin held by one user.
type Balance struct {
	ID        uint            `gorm:"primaryKey"`
	Amount    decimal.Decimal `gorm:"type:decimal(15,7);not null"`
	CreatedAt time.Time       `gorm:"index"`
	UserID    uint            `gorm:"index;not null"`
	CoinID    uint            `gorm:"not null"`
	Coin      Coin
}

// BalanceProjection is the API view of a balance. Coin is the coin abbreviation.
type BalanceProjection struct {
	ID     uint   `json:"id"`
	User   uint   `json:"user"`
	Coin   string `json:"coin"`
	Amount string `json:"amount"`
}

// Projection expects the Coin association to be loaded.
func (b Balance) Projection() BalanceProjection {
	return BalanceProjection{
		ID:     b.ID,
		User:   b.UserID,
		Coin:   b.Coin.Abbreviation,
		Amount: FormatAmount(b.Amount),
	}
}

// FormatAmount renders an amount with at most 7 fractional digits and no trailing
// zeros: 1.2300000 -> "1.23", 5 -> "5".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(amountPlaces)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ValidateAmount checks the precision and range rules for user supplied amounts.
func ValidateAmount(d decimal.Decimal) error {
	if -d.Exponent() > amountPlaces {
		return ErrAmountTooPrecise
	}
	if d.LessThan(MinAmount) || d.GreaterThan(MaxAmount) {
		return ErrAmountOutOfRange
	}
	return nil
}
