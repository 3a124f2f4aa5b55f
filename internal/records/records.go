// Package records maps between store rows and in-memory entities. The
// mapping performs no validation.
package records

import (
	"time"

	"schoollibrary/internal/models"
)

type BookRow struct {
	ID              string  `gorm:"primaryKey;size:64"`
	Title           string  `gorm:"size:255;not null;index"`
	Author          string  `gorm:"size:255;not null"`
	PublicationYear *int    `gorm:"column:publication_year"`
	Publisher       *string `gorm:"size:255"`
	ISBN            *string `gorm:"column:isbn;size:64"`
	Barcode         *string `gorm:"size:128"`
	EditionYear     *int    `gorm:"column:edition_year"`
	Location        *string `gorm:"size:128"`
	CollectionName  *string `gorm:"column:collection_name;size:255"`
}

func (BookRow) TableName() string { return "books" }

type StudentRow struct {
	ID    string `gorm:"primaryKey;size:64"`
	Name  string `gorm:"size:255;not null"`
	Class string `gorm:"column:class;size:64;not null"`
}

func (StudentRow) TableName() string { return "students" }

// LoanRow carries no foreign key on book_id: books are deleted without
// touching their loans.
type LoanRow struct {
	ID           string     `gorm:"primaryKey;size:64"`
	StudentName  string     `gorm:"column:student_name;size:255;not null"`
	StudentClass string     `gorm:"column:student_class;size:64;not null"`
	BookID       *string    `gorm:"column:book_id;size:64;index"`
	BookTitle    *string    `gorm:"column:book_title;size:255"`
	LoanDate     time.Time  `gorm:"column:loan_date;not null;index"`
	DueDate      time.Time  `gorm:"column:due_date;not null"`
	ReturnDate   *time.Time `gorm:"column:return_date"`
}

func (LoanRow) TableName() string { return "loans" }

func BookFromRow(r BookRow) models.Book {
	return models.Book{
		ID:              r.ID,
		Title:           r.Title,
		Author:          r.Author,
		PublicationYear: intOrZero(r.PublicationYear),
		Publisher:       strOrEmpty(r.Publisher),
		ISBN:            strOrEmpty(r.ISBN),
		Barcode:         models.FromPtr(r.Barcode),
		EditionYear:     intOrZero(r.EditionYear),
		Location:        strOrEmpty(r.Location),
		Collection:      models.FromPtr(r.CollectionName),
	}
}

func BookToRow(b models.Book) BookRow {
	return BookRow{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		PublicationYear: intOrNil(b.PublicationYear),
		Publisher:       strOrNil(b.Publisher),
		ISBN:            strOrNil(b.ISBN),
		Barcode:         b.Barcode.Ptr(),
		EditionYear:     intOrNil(b.EditionYear),
		Location:        strOrNil(b.Location),
		CollectionName:  b.Collection.Ptr(),
	}
}

func StudentFromRow(r StudentRow) models.Student {
	return models.Student{ID: r.ID, Name: r.Name, Class: r.Class}
}

func StudentToRow(s models.Student) StudentRow {
	return StudentRow{ID: s.ID, Name: s.Name, Class: s.Class}
}

func LoanFromRow(r LoanRow) models.Loan {
	l := models.Loan{
		ID:           r.ID,
		StudentName:  r.StudentName,
		StudentClass: r.StudentClass,
		BookID:       strOrEmpty(r.BookID),
		BookTitle:    strOrEmpty(r.BookTitle),
		LoanDate:     r.LoanDate.UTC(),
		DueDate:      r.DueDate.UTC(),
	}
	if r.ReturnDate != nil {
		rd := r.ReturnDate.UTC()
		l.ReturnDate = &rd
	}
	return l
}

func LoanToRow(l models.Loan) LoanRow {
	r := LoanRow{
		ID:           l.ID,
		StudentName:  l.StudentName,
		StudentClass: l.StudentClass,
		BookID:       strOrNil(l.BookID),
		BookTitle:    strOrNil(l.BookTitle),
		LoanDate:     l.LoanDate.UTC(),
		DueDate:      l.DueDate.UTC(),
	}
	if l.ReturnDate != nil {
		rd := l.ReturnDate.UTC()
		r.ReturnDate = &rd
	}
	return r
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intOrNil(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
