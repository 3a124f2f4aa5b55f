package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClassifyBoundaries(t *testing.T) {
	due := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	loan := Loan{LoanDate: due.AddDate(0, 0, -7), DueDate: due}

	if st, _ := Classify(loan, due.Add(-time.Second)); st != LoanStatusOpen {
		t.Fatalf("before due: got %s", st)
	}
	if st, _ := Classify(loan, due); st != LoanStatusOpen {
		t.Fatalf("exactly due: got %s, want open", st)
	}
	st, days := Classify(loan, due.Add(time.Nanosecond))
	if st != LoanStatusOverdue || days != 0 {
		t.Fatalf("just past due: got %s/%d", st, days)
	}
	st, days = Classify(loan, due.Add(49*time.Hour))
	if st != LoanStatusOverdue || days != 2 {
		t.Fatalf("49h past due: got %s/%d", st, days)
	}

	returned := due.Add(72 * time.Hour)
	loan.ReturnDate = &returned
	if st, days := Classify(loan, due.AddDate(0, 1, 0)); st != LoanStatusReturned || days != 0 {
		t.Fatalf("returned: got %s/%d", st, days)
	}
}

func TestOptionalJSON(t *testing.T) {
	b := Book{ID: "1", Title: "Dune", Barcode: Some(" 978 "), Collection: None()}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if out["barcode"] != "978" {
		t.Fatalf("barcode = %v", out["barcode"])
	}
	if v, ok := out["collection"]; !ok || v != nil {
		t.Fatalf("collection should be null, got %v (present=%v)", v, ok)
	}

	var back Book
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := back.Barcode.Value(); !ok || v != "978" {
		t.Fatalf("barcode round trip: %q %v", v, ok)
	}
	if back.Collection.IsSet() {
		t.Fatalf("collection should stay unset")
	}
}

func TestSomeBlankCollapses(t *testing.T) {
	if Some("   ").IsSet() {
		t.Fatalf("blank value must be None")
	}
	if FromPtr(nil).IsSet() {
		t.Fatalf("nil pointer must be None")
	}
	if None().Ptr() != nil {
		t.Fatalf("None must map to nil")
	}
}

func TestCloneDetachesReturnDate(t *testing.T) {
	rd := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	s := Snapshot{Loans: []Loan{{ID: "l1", ReturnDate: &rd}}}
	c := s.Clone()
	*c.Loans[0].ReturnDate = rd.Add(time.Hour)
	if !s.Loans[0].ReturnDate.Equal(rd) {
		t.Fatalf("clone shares return date pointer")
	}
}
