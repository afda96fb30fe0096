package parser

import (
	"regexp"
	"strings"

	"orderdesk/internal/util"
)

const (
	OrderSectionMarker = "订单信息"
	CurrencyMarker     = "元"
)

var reNumbered = regexp.MustCompile(`^\d+\.`)

// Segment splits raw text into price lines and numbered order lines around
// the first 订单信息 line.
func Segment(raw string) (priceLines, orderLines []string, err error) {
	lines := util.SplitLines(raw)

	delim := -1
	for i, line := range lines {
		if strings.Contains(line, OrderSectionMarker) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, nil, ErrMissingDelimiter
	}

	priceLines = []string{}
	for _, line := range lines[:delim] {
		if strings.Contains(line, CurrencyMarker) {
			priceLines = append(priceLines, line)
		}
	}

	orderLines = []string{}
	for _, line := range lines[delim+1:] {
		if reNumbered.MatchString(line) {
			orderLines = append(orderLines, line)
		}
	}
	return priceLines, orderLines, nil
}
