package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"orderdesk/internal/util"
)

var reItem = regexp.MustCompile(`([^+]+?)(半|\d+(?:\.\d+)?盒?)\+?`)

// OrderItemDraft is one product line of an order. UnitPrice and TotalPrice
// are both nil when the product has no catalog price.
type OrderItemDraft struct {
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   *decimal.Decimal
	TotalPrice  *decimal.Decimal
}

// Priced reports whether the item carries a resolved price.
func (i OrderItemDraft) Priced() bool { return i.UnitPrice != nil }

// ParseItems reads "name+quantity" tokens such as "面包2+青柑1盒+豆腐半".
// Items whose product is missing from the catalog are returned unpriced,
// with one UnresolvedPriceError each.
func (p *Parser) ParseItems(itemText string, catalog PriceCatalog) ([]OrderItemDraft, []*UnresolvedPriceError, error) {
	matches := reItem.FindAllStringSubmatch(itemText, -1)
	if len(matches) == 0 {
		return nil, nil, ErrNoItemsParsed
	}

	items := make([]OrderItemDraft, 0, len(matches))
	var unresolved []*UnresolvedPriceError
	for _, m := range matches {
		name := p.aliases.Normalize(m[1])
		if name == "" {
			return nil, nil, fmt.Errorf("%w: quantity %q has no product name", ErrMalformedOrderLine, strings.TrimSpace(m[2]))
		}
		qty, err := util.ParseQuantity(m[2])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedQuantity, err)
		}

		item := OrderItemDraft{ProductName: name, Quantity: qty}
		if price, ok := catalog.Price(name); ok {
			total := price.Mul(qty)
			item.UnitPrice = &price
			item.TotalPrice = &total
		} else {
			unresolved = append(unresolved, &UnresolvedPriceError{ProductName: name})
		}
		items = append(items, item)
	}
	return items, unresolved, nil
}
