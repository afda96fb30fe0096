package parser

import (
	"regexp"
	"sort"

	"github.com/shopspring/decimal"

	"orderdesk/internal/util"
)

var rePriceLine = regexp.MustCompile(`^(.+?)\s*(\d+\.?\d*)元$`)

// PriceCatalog maps canonical product names to unit prices for one parse.
type PriceCatalog struct {
	prices map[string]decimal.Decimal
}

func (c PriceCatalog) Price(name string) (decimal.Decimal, bool) {
	p, ok := c.prices[name]
	return p, ok
}

func (c PriceCatalog) Len() int { return len(c.prices) }

// Names returns the priced product names, sorted.
func (c PriceCatalog) Names() []string {
	out := make([]string, 0, len(c.prices))
	for name := range c.prices {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BuildCatalog reads "<name> <price>元" lines. Lines of any other shape are
// skipped; a repeated product keeps the last price.
func (p *Parser) BuildCatalog(priceLines []string) PriceCatalog {
	prices := make(map[string]decimal.Decimal, len(priceLines))
	for _, line := range priceLines {
		m := rePriceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		price, err := util.ParsePrice(m[2])
		if err != nil {
			continue
		}
		prices[p.aliases.Normalize(m[1])] = price
	}
	return PriceCatalog{prices: prices}
}
