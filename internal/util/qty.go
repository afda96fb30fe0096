package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	HalfMarker = "半"
	BoxMarker  = "盒"
)

var (
	ErrEmptyQuantity    = errors.New("empty quantity")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrNegativeQuantity = errors.New("quantity must be positive")
)

var half = decimal.New(5, -1)

// ParseQuantity reads an order quantity: "半" is one half, otherwise a
// number with an optional trailing box marker ("3", "3盒", "1.5盒").
func ParseQuantity(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return decimal.Zero, ErrEmptyQuantity
	}
	if s == HalfMarker {
		return half, nil
	}

	s = strings.TrimSpace(strings.TrimSuffix(s, BoxMarker))
	qty, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidQuantity, input)
	}
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNegativeQuantity, input)
	}
	return qty, nil
}

// ParsePrice reads a non-negative amount such as "10", "12.5" or "12.".
func ParsePrice(input string) (decimal.Decimal, error) {
	s := strings.TrimSuffix(strings.TrimSpace(input), ".")
	if s == "" {
		return decimal.Zero, ErrEmptyQuantity
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", input)
	}
	return price, nil
}
