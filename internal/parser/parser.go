// Package parser turns a typed order message into priced order drafts.
//
// A message is a price list, a line containing 订单信息, then numbered
// order lines:
//
//	面包 10元
//	小青柑 20元
//	订单信息
//	1. 张三 面包2+青柑1(急件)
//
// Parsing is pure and holds no state beyond the alias table, so a Parser
// may be shared across goroutines.
package parser

import "errors"

type Parser struct {
	aliases *AliasTable
}

// New returns a parser over the given alias table, or the default table
// when aliases is nil.
func New(aliases *AliasTable) *Parser {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	return &Parser{aliases: aliases}
}

func (p *Parser) Normalize(raw string) string { return p.aliases.Normalize(raw) }

// LineResult is the outcome of one order line: either Draft or Err is set.
// Unresolved lists the draft's unpriced products.
type LineResult struct {
	Number     int
	Line       string
	Draft      *OrderDraft
	Unresolved []*UnresolvedPriceError
	Err        error
}

func (r LineResult) OK() bool { return r.Err == nil && r.Draft != nil }

type Result struct {
	Catalog PriceCatalog
	Lines   []LineResult
}

// Drafts returns the successfully parsed drafts in line order.
func (r Result) Drafts() []OrderDraft {
	out := make([]OrderDraft, 0, len(r.Lines))
	for _, l := range r.Lines {
		if l.OK() {
			out = append(out, *l.Draft)
		}
	}
	return out
}

func (r Result) Failed() []LineResult {
	var out []LineResult
	for _, l := range r.Lines {
		if !l.OK() {
			out = append(out, l)
		}
	}
	return out
}

func (r Result) Unresolved() []*UnresolvedPriceError {
	var out []*UnresolvedPriceError
	for _, l := range r.Lines {
		out = append(out, l.Unresolved...)
	}
	return out
}

// Parse segments raw, builds the price catalog once and parses every order
// line independently. Only ErrMissingDelimiter is returned as an error;
// line failures are reported on their LineResult.
func (p *Parser) Parse(raw string) (Result, error) {
	priceLines, orderLines, err := Segment(raw)
	if err != nil {
		return Result{}, err
	}

	catalog := p.BuildCatalog(priceLines)
	res := Result{Catalog: catalog, Lines: make([]LineResult, 0, len(orderLines))}
	for i, line := range orderLines {
		lr := LineResult{Number: lineNumber(line, i+1), Line: line}
		draft, unresolved, err := p.ParseOrderLine(line, catalog)
		if err != nil {
			lr.Err = &LineError{Number: lr.Number, Line: line, Err: err}
		} else {
			lr.Draft = &draft
			lr.Unresolved = unresolved
		}
		res.Lines = append(res.Lines, lr)
	}
	return res, nil
}

// IsLineError reports whether err is a per-line failure rather than a fatal one.
func IsLineError(err error) bool {
	var le *LineError
	return errors.As(err, &le)
}
