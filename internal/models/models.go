package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// LoanStatus is derived from a loan's timestamps at read time; only Returned
// is backed by stored state.
type LoanStatus string

const (
	LoanStatusOpen     LoanStatus = "open"
	LoanStatusOverdue  LoanStatus = "overdue"
	LoanStatusReturned LoanStatus = "returned"
)

// Optional is a form field that is either switched off or carries a non-empty
// value. The zero value is "off".
type Optional struct {
	value string
	set   bool
}

// None returns a switched-off Optional.
func None() Optional { return Optional{} }

// Some returns an Optional holding v. Blank values collapse to None.
func Some(v string) Optional {
	v = strings.TrimSpace(v)
	if v == "" {
		return Optional{}
	}
	return Optional{value: v, set: true}
}

// FromPtr maps a nullable column value onto an Optional. The stored value is
// kept as is, blank or not; only a null column is absent.
func FromPtr(p *string) Optional {
	if p == nil {
		return Optional{}
	}
	return Optional{value: *p, set: true}
}

func (o Optional) Value() (string, bool) { return o.value, o.set }

func (o Optional) IsSet() bool { return o.set }

// Ptr returns nil when the Optional is off.
func (o Optional) Ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func (o Optional) String() string { return o.value }

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Some(s)
	return nil
}

type Book struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	PublicationYear int      `json:"publicationYear,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	ISBN            string   `json:"isbn,omitempty"`
	Barcode         Optional `json:"barcode"`
	EditionYear     int      `json:"editionYear,omitempty"`
	Location        string   `json:"location,omitempty"`
	Collection      Optional `json:"collection"`
}

type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

// Loan keeps denormalized copies of the student and book fields taken at
// write time. BookID may dangle once the book is deleted.
type Loan struct {
	ID           string     `json:"id"`
	StudentName  string     `json:"studentName"`
	StudentClass string     `json:"studentClass"`
	BookID       string     `json:"bookId"`
	BookTitle    string     `json:"bookTitle"`
	LoanDate     time.Time  `json:"loanDate"`
	DueDate      time.Time  `json:"dueDate"`
	ReturnDate   *time.Time `json:"returnDate"`
}

// IsActive reports whether the loan is still outstanding.
func (l Loan) IsActive() bool { return l.ReturnDate == nil }

// Classify returns the loan's status at now, plus the whole days elapsed past
// the due date when it is overdue. A loan due exactly at now is still open.
func Classify(l Loan, now time.Time) (LoanStatus, int) {
	if l.ReturnDate != nil {
		return LoanStatusReturned, 0
	}
	if now.After(l.DueDate) {
		return LoanStatusOverdue, int(now.Sub(l.DueDate) / (24 * time.Hour))
	}
	return LoanStatusOpen, 0
}

// Snapshot is the full in-memory view of the three collections.
type Snapshot struct {
	Books    []Book    `json:"books"`
	Students []Student `json:"students"`
	Loans    []Loan    `json:"loans"`
}

// FindBook returns the book with id from the snapshot.
func (s Snapshot) FindBook(id string) (Book, bool) {
	for _, b := range s.Books {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

// Clone copies the slices so callers cannot mutate a shared snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Books:    append([]Book(nil), s.Books...),
		Students: append([]Student(nil), s.Students...),
		Loans:    make([]Loan, len(s.Loans)),
	}
	for i, l := range s.Loans {
		if l.ReturnDate != nil {
			rd := *l.ReturnDate
			l.ReturnDate = &rd
		}
		out.Loans[i] = l
	}
	return out
}
