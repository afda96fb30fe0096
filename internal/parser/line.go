package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reLineNumber = regexp.MustCompile(`^(\d+)\.\s*`)
	reRemark     = regexp.MustCompile(`[(（](.*?)[)）]`)
)

// OrderDraft is the parsed form of one numbered order line. CustomerName is
// the raw name as typed; matching it to a customer record is up to the caller.
type OrderDraft struct {
	CustomerName string
	Remark       string
	Items        []OrderItemDraft
}

// Total sums the priced items. ok is false if any item is unpriced.
func (d OrderDraft) Total() (total decimal.Decimal, ok bool) {
	ok = true
	for _, item := range d.Items {
		if item.TotalPrice == nil {
			ok = false
			continue
		}
		total = total.Add(*item.TotalPrice)
	}
	return total, ok
}

// ParseOrderLine reads "1. 张三 面包2+青柑1(急件)" into a draft.
func (p *Parser) ParseOrderLine(line string, catalog PriceCatalog) (OrderDraft, []*UnresolvedPriceError, error) {
	text := reLineNumber.ReplaceAllString(strings.TrimSpace(line), "")

	remark := ""
	if loc := reRemark.FindStringSubmatchIndex(text); loc != nil {
		remark = text[loc[2]:loc[3]]
		text = text[:loc[0]] + text[loc[1]:]
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return OrderDraft{}, nil, ErrMalformedOrderLine
	}

	items, unresolved, err := p.ParseItems(strings.Join(fields[1:], " "), catalog)
	if err != nil {
		return OrderDraft{}, nil, err
	}
	return OrderDraft{CustomerName: fields[0], Remark: remark, Items: items}, unresolved, nil
}

func lineNumber(line string, fallback int) int {
	m := reLineNumber.FindStringSubmatch(line)
	if m == nil {
		return fallback
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return fallback
	}
	return n
}
