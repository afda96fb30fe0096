package pipeline

import (
	"regexp"
	"strings"

	"orderdesk/internal/parser"
	"orderdesk/internal/util"
)

type DetectResult struct {
	IsOrder bool
	Score   float64
	Reason  string
}

var (
	detectSubjectKeywords = []string{"订单", "下单", "接龙", "order"}
	reDetectNumbered      = regexp.MustCompile(`^\d+\.`)
	reDetectPrice         = regexp.MustCompile(`\d+(?:\.\d+)?\s*元`)
)

// DetectOrderText scores whether a mail carries an order message.
func DetectOrderText(subject, text string) DetectResult {
	subject = strings.ToLower(subject)

	score := 0.0
	for _, kw := range detectSubjectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
			break
		}
	}
	if strings.Contains(text, parser.OrderSectionMarker) {
		score += 0.5
	}

	numbered := 0
	priced := 0
	for _, line := range util.SplitLines(text) {
		if reDetectNumbered.MatchString(line) {
			numbered++
		}
		if reDetectPrice.MatchString(line) {
			priced++
		}
	}
	if numbered >= 2 {
		score += 0.3
	} else if numbered == 1 {
		score += 0.2
	}
	if priced > 0 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}

	isOrder := score >= 0.45
	reason := "rules_negative"
	if isOrder {
		reason = "rules_positive"
	}
	return DetectResult{IsOrder: isOrder, Score: score, Reason: reason}
}
