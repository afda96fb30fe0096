package api

import (
	"errors"
	"net/http"
	"strings"

	"orderdesk/internal/parser"
	"orderdesk/internal/pipeline"
)

type parseRequest struct {
	OrderText     string `json:"orderText"`
	DeliveryDate  string `json:"deliveryDate"`
	AllowUnpriced bool   `json:"allowUnpriced"`
}

type parsedItem struct {
	ProductName string   `json:"productName"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   *float64 `json:"unitPrice,omitempty"`
	TotalPrice  *float64 `json:"totalPrice,omitempty"`
}

type parsedLine struct {
	Line               int          `json:"line"`
	CustomerName       string       `json:"customerName"`
	Items              []parsedItem `json:"items"`
	Remarks            string       `json:"remarks"`
	UnresolvedProducts []string     `json:"unresolvedProducts,omitempty"`
	Error              string       `json:"error,omitempty"`
}

type intakeResponse struct {
	Lines []parsedLine `json:"lines"`
	pipeline.CommitResult
}

// readOrderText decodes the request and rejects a blank order text.
func (s *Server) readOrderText(w http.ResponseWriter, r *http.Request) (parseRequest, bool) {
	var req parseRequest
	if !s.decodeJSON(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.OrderText) == "" {
		writeError(w, http.StatusBadRequest, "订单文本不能为空")
		return req, false
	}
	return req, true
}

func (s *Server) parseOrders(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readOrderText(w, r)
	if !ok {
		return
	}

	res, err := s.intake.Parse(req.OrderText)
	if err != nil {
		s.writeParseFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParsedLines(res))
}

func (s *Server) intakeOrders(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readOrderText(w, r)
	if !ok {
		return
	}

	res, committed, err := s.intake.ParseAndCommit(req.OrderText, pipeline.CommitOptions{
		DeliveryDate:  req.DeliveryDate,
		AllowUnpriced: req.AllowUnpriced || s.cfg.IntakeAllowUnpriced,
	})
	if errors.Is(err, parser.ErrMissingDelimiter) {
		s.writeParseFailure(w, err)
		return
	}
	if err != nil {
		s.internalError(w, "order intake failed", err)
		return
	}
	writeJSON(w, http.StatusOK, intakeResponse{Lines: toParsedLines(res), CommitResult: committed})
}

func (s *Server) writeParseFailure(w http.ResponseWriter, err error) {
	s.logger.Info("order text rejected", "error", err)
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":   "订单解析失败",
		"message": err.Error(),
	})
}

func toParsedLines(res parser.Result) []parsedLine {
	out := make([]parsedLine, 0, len(res.Lines))
	for _, l := range res.Lines {
		pl := parsedLine{Line: l.Number, Items: []parsedItem{}}
		if !l.OK() {
			pl.Error = l.Err.Error()
			out = append(out, pl)
			continue
		}

		pl.CustomerName = l.Draft.CustomerName
		pl.Remarks = l.Draft.Remark
		for _, item := range l.Draft.Items {
			pi := parsedItem{ProductName: item.ProductName, Quantity: item.Quantity.InexactFloat64()}
			if item.Priced() {
				unit := item.UnitPrice.InexactFloat64()
				total := item.TotalPrice.InexactFloat64()
				pi.UnitPrice = &unit
				pi.TotalPrice = &total
			}
			pl.Items = append(pl.Items, pi)
		}
		for _, u := range l.Unresolved {
			pl.UnresolvedProducts = append(pl.UnresolvedProducts, u.ProductName)
		}
		out = append(out, pl)
	}
	return out
}
