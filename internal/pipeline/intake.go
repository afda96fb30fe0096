package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"orderdesk/internal"
	"orderdesk/internal/config"
	"orderdesk/internal/metrics"
	"orderdesk/internal/parser"
	"orderdesk/internal/registry"
	"orderdesk/internal/storage"
)

// NewParser builds the order parser from the configured alias file, or the
// built-in table when none is set.
func NewParser(cfg config.Config) (*parser.Parser, error) {
	if strings.TrimSpace(cfg.AliasFile) == "" {
		return parser.New(nil), nil
	}
	aliases, err := parser.LoadAliasTable(cfg.AliasFile)
	if err != nil {
		return nil, err
	}
	return parser.New(aliases), nil
}

type CommitOptions struct {
	DeliveryDate  string
	AllowUnpriced bool
	EmailID       *int
	// ReplaceEmailOrders drops orders an earlier run stored for EmailID.
	ReplaceEmailOrders bool
}

type RejectedLine struct {
	Number int    `json:"number"`
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

type CommitResult struct {
	Created      []internal.OrderRecord `json:"created"`
	Rejected     []RejectedLine         `json:"rejected"`
	NewCustomers int                    `json:"newCustomers"`
}

// IntakeService turns parsed order drafts into stored orders, one record
// per item, creating customers that are not yet known.
type IntakeService struct {
	db      *storage.DB
	cfg     config.Config
	parser  *parser.Parser
	metrics *metrics.Registry
	now     func() time.Time
}

func NewIntakeService(db *storage.DB, cfg config.Config, p *parser.Parser, m *metrics.Registry) *IntakeService {
	if p == nil {
		p = parser.New(nil)
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &IntakeService{db: db, cfg: cfg, parser: p, metrics: m, now: time.Now}
}

func (s *IntakeService) Parser() *parser.Parser { return s.parser }

// Parse runs the parser and records parse metrics.
func (s *IntakeService) Parse(text string) (parser.Result, error) {
	start := time.Now()
	s.metrics.ParseRequests.Inc()
	res, err := s.parser.Parse(text)
	s.metrics.ParseSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ParseRejected.Inc()
		return res, err
	}

	s.metrics.LinesParsed.Add(float64(len(res.Lines)))
	for _, l := range res.Failed() {
		s.metrics.LinesFailed.WithLabelValues(failureReason(l.Err)).Inc()
	}
	s.metrics.ItemsUnresolved.Add(float64(len(res.Unresolved())))
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, parser.ErrMalformedOrderLine):
		return "malformed_line"
	case errors.Is(err, parser.ErrNoItemsParsed):
		return "no_items"
	case errors.Is(err, parser.ErrMalformedQuantity):
		return "malformed_quantity"
	default:
		return "other"
	}
}

// DefaultDeliveryDate is today plus the configured lead time, as YYYY-MM-DD.
func (s *IntakeService) DefaultDeliveryDate() string {
	return s.now().AddDate(0, 0, s.cfg.IntakeDefaultDeliveryDays).Format("2006-01-02")
}

// FindOrCreateCustomer returns the customer with this name or nickname,
// creating a bare record when there is none.
func (s *IntakeService) FindOrCreateCustomer(name string) (internal.Customer, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return internal.Customer{}, false, errors.New("customer name is empty")
	}
	existing, err := s.db.FindCustomerByName(name)
	if err != nil {
		return internal.Customer{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}
	created, err := s.db.InsertCustomer(internal.Customer{Name: name})
	if err != nil {
		return internal.Customer{}, false, err
	}
	return created, true, nil
}

// Commit stores every acceptable draft of res, with any new customers, in
// one transaction. Failed lines are rejected, as are lines with unpriced
// items unless opts.AllowUnpriced is set.
func (s *IntakeService) Commit(res parser.Result, opts CommitOptions) (CommitResult, error) {
	if opts.DeliveryDate == "" {
		opts.DeliveryDate = s.DefaultDeliveryDate()
	}

	customers, err := s.db.ListCustomers()
	if err != nil {
		return CommitResult{}, err
	}
	idx := registry.BuildIndex(customers)

	out := CommitResult{Created: []internal.OrderRecord{}, Rejected: []RejectedLine{}}
	var batch storage.IntakeBatch
	for _, line := range res.Lines {
		if !line.OK() {
			out.Rejected = append(out.Rejected, RejectedLine{Number: line.Number, Line: line.Line, Reason: line.Err.Error()})
			continue
		}
		if len(line.Unresolved) > 0 && !opts.AllowUnpriced {
			names := make([]string, 0, len(line.Unresolved))
			for _, u := range line.Unresolved {
				names = append(names, u.ProductName)
			}
			out.Rejected = append(out.Rejected, RejectedLine{
				Number: line.Number,
				Line:   line.Line,
				Reason: "unresolved price: " + strings.Join(names, ", "),
			})
			continue
		}

		customer, ok := idx.Resolve(line.Draft.CustomerName)
		if !ok {
			// Zero id until CommitIntake assigns one.
			customer = internal.Customer{Name: strings.TrimSpace(line.Draft.CustomerName)}
			idx.Add(customer)
			batch.NewCustomers = append(batch.NewCustomers, customer)
		}
		batch.Orders = append(batch.Orders, draftToRecords(*line.Draft, customer, opts)...)
	}

	if opts.ReplaceEmailOrders && opts.EmailID != nil {
		batch.ReplaceEmailID = opts.EmailID
	}
	if len(batch.Orders) == 0 && batch.ReplaceEmailID == nil {
		return out, nil
	}
	written, err := s.db.CommitIntake(batch)
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit intake: %w", err)
	}
	out.Created = written.Orders
	out.NewCustomers = len(written.Customers)
	s.metrics.OrdersCreated.Add(float64(len(written.Orders)))
	return out, nil
}

// ParseAndCommit parses text, commits the result and records the run.
func (s *IntakeService) ParseAndCommit(text string, opts CommitOptions) (parser.Result, CommitResult, error) {
	start := time.Now()
	res, err := s.Parse(text)
	if err != nil {
		return res, CommitResult{}, err
	}
	parseMs := float64(time.Since(start).Microseconds()) / 1000

	committed, err := s.Commit(res, opts)
	if err != nil {
		return res, CommitResult{}, err
	}

	_ = s.db.InsertRun(traceID(), opts.EmailID,
		map[string]float64{"parseMs": parseMs, "totalMs": float64(time.Since(start).Microseconds()) / 1000},
		map[string]int{
			"lines":        len(res.Lines),
			"failed":       len(res.Failed()),
			"unresolved":   len(res.Unresolved()),
			"created":      len(committed.Created),
			"rejected":     len(committed.Rejected),
			"newCustomers": committed.NewCustomers,
		})
	return res, committed, nil
}

func draftToRecords(d parser.OrderDraft, c internal.Customer, opts CommitOptions) []internal.OrderRecord {
	out := make([]internal.OrderRecord, 0, len(d.Items))
	for _, item := range d.Items {
		rec := internal.OrderRecord{
			CustomerID:   c.ID,
			CustomerName: c.Name,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity.InexactFloat64(),
			DeliveryDate: opts.DeliveryDate,
			Remarks:      d.Remark,
			EmailID:      opts.EmailID,
		}
		if item.UnitPrice != nil && item.TotalPrice != nil {
			unit := item.UnitPrice.InexactFloat64()
			total := item.TotalPrice.InexactFloat64()
			rec.UnitPrice = &unit
			rec.TotalPrice = &total
		}
		out = append(out, rec)
	}
	return out
}
