package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.LoanCreated()
	m.LoanCreated()
	m.LoanReturned()
	m.StudentAutoCreated()
	m.StoreError("create_loan")
	m.SetLoanGauges(5, 2)

	if got := testutil.ToFloat64(m.loansCreated); got != 2 {
		t.Fatalf("loans created = %v", got)
	}
	if got := testutil.ToFloat64(m.storeErrors.WithLabelValues("create_loan")); got != 1 {
		t.Fatalf("store errors = %v", got)
	}
	if got := testutil.ToFloat64(m.overdueLoans); got != 2 {
		t.Fatalf("overdue gauge = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "library_loans_active 5") {
		t.Fatalf("exposition missing active gauge:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LoanCreated()
	m.LoanReturned()
	m.StudentAutoCreated()
	m.StoreError("x")
	m.SetLoanGauges(1, 1)
}
