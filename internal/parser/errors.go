package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDelimiter aborts the whole parse: the text has no 订单信息 line.
	ErrMissingDelimiter   = errors.New("order section marker 订单信息 not found")
	ErrMalformedOrderLine = errors.New("malformed order line")
	ErrNoItemsParsed      = errors.New("no items parsed")
	ErrMalformedQuantity  = errors.New("malformed quantity")
)

// LineError ties a line-level failure to the order line that produced it.
type LineError struct {
	Number int
	Line   string
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("order line %d %q: %v", e.Number, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// UnresolvedPriceError marks an item whose product has no price in the
// catalog. The item is kept, without unit price or total.
type UnresolvedPriceError struct {
	ProductName string
}

func (e *UnresolvedPriceError) Error() string {
	return fmt.Sprintf("no price for product %q", e.ProductName)
}
