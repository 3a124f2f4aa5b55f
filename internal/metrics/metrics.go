package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for loan activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	loansCreated     prometheus.Counter
	loansReturned    prometheus.Counter
	studentsImplicit prometheus.Counter
	storeErrors      *prometheus.CounterVec
	activeLoans      prometheus.Gauge
	overdueLoans     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "loans_created_total",
			Help:      "Loans created.",
		}),
		loansReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "loans_returned_total",
			Help:      "Return operations applied to loans.",
		}),
		studentsImplicit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "students_auto_created_total",
			Help:      "Students created as a side effect of creating or editing a loan.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library",
			Name:      "store_errors_total",
			Help:      "Failed calls to the entity store, by operation.",
		}, []string{"op"}),
		activeLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "library",
			Name:      "loans_active",
			Help:      "Loans without a return date at the last dashboard computation.",
		}),
		overdueLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "library",
			Name:      "loans_overdue",
			Help:      "Active loans past their due date at the last dashboard computation.",
		}),
	}
	m.registry.MustRegister(
		m.loansCreated,
		m.loansReturned,
		m.studentsImplicit,
		m.storeErrors,
		m.activeLoans,
		m.overdueLoans,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) LoanCreated() {
	if m != nil {
		m.loansCreated.Inc()
	}
}

func (m *Metrics) LoanReturned() {
	if m != nil {
		m.loansReturned.Inc()
	}
}

func (m *Metrics) StudentAutoCreated() {
	if m != nil {
		m.studentsImplicit.Inc()
	}
}

func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) SetLoanGauges(active, overdue int) {
	if m == nil {
		return
	}
	m.activeLoans.Set(float64(active))
	m.overdueLoans.Set(float64(overdue))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
