package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	ParseRequests   prometheus.Counter
	ParseRejected   prometheus.Counter
	LinesParsed     prometheus.Counter
	LinesFailed     *prometheus.CounterVec
	ItemsUnresolved prometheus.Counter
	OrdersCreated   prometheus.Counter
	MailsProcessed  *prometheus.CounterVec
	ParseSeconds    prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	parseRequests := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_parse_requests_total"})
	parseRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderdesk_parse_rejected_total",
		Help: "Texts rejected as a whole, e.g. missing the order section marker.",
	})
	linesParsed := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_order_lines_parsed_total"})
	linesFailed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderdesk_order_lines_failed_total"}, []string{"reason"})
	unresolved := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_items_unresolved_price_total"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderdesk_orders_created_total"})
	mailsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderdesk_mails_processed_total"}, []string{"status"})
	parseSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderdesk_parse_seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	r.MustRegister(parseRequests, parseRejected, linesParsed, linesFailed, unresolved, ordersCreated, mailsProcessed, parseSeconds)
	return &Registry{
		reg:             r,
		ParseRequests:   parseRequests,
		ParseRejected:   parseRejected,
		LinesParsed:     linesParsed,
		LinesFailed:     linesFailed,
		ItemsUnresolved: unresolved,
		OrdersCreated:   ordersCreated,
		MailsProcessed:  mailsProcessed,
		ParseSeconds:    parseSeconds,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
