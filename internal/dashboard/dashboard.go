// Package dashboard derives counts and due-date reminders from a snapshot.
package dashboard

import (
	"fmt"
	"time"

	"schoollibrary/internal/models"
)

// DueSoonDays is how many days past the start of today still count as due soon.
const DueSoonDays = 2

const dueDateLayout = "02/01/2006"

type Notification struct {
	LoanID      string    `json:"loanId"`
	BookTitle   string    `json:"bookTitle"`
	StudentName string    `json:"studentName"`
	DueDate     time.Time `json:"dueDate"`
	Message     string    `json:"message"`
}

type Summary struct {
	TotalBooks    int            `json:"totalBooks"`
	TotalStudents int            `json:"totalStudents"`
	TotalLoans    int            `json:"totalLoans"`
	ActiveLoans   []models.Loan  `json:"activeLoans"`
	OverdueLoans  []models.Loan  `json:"overdueLoans"`
	ReturnedLoans int            `json:"returnedLoans"`
	Notifications []Notification `json:"notifications"`
}

// Summarize computes the dashboard for snap at now. The start of today is
// taken in now's location.
func Summarize(snap models.Snapshot, now time.Time) Summary {
	sum := Summary{
		TotalBooks:    len(snap.Books),
		TotalStudents: len(snap.Students),
		TotalLoans:    len(snap.Loans),
		ActiveLoans:   []models.Loan{},
		OverdueLoans:  []models.Loan{},
		Notifications: []Notification{},
	}

	for _, loan := range snap.Loans {
		if !loan.IsActive() {
			sum.ReturnedLoans++
			continue
		}
		sum.ActiveLoans = append(sum.ActiveLoans, loan)
		if status, _ := models.Classify(loan, now); status == models.LoanStatusOverdue {
			sum.OverdueLoans = append(sum.OverdueLoans, loan)
		}
		if DueSoon(loan, now) {
			sum.Notifications = append(sum.Notifications, notify(loan, now.Location()))
		}
	}
	return sum
}

// DueSoon reports whether an active loan falls due on today's date or one of
// the next DueSoonDays calendar days.
func DueSoon(loan models.Loan, now time.Time) bool {
	if !loan.IsActive() {
		return false
	}
	y, m, d := now.Date()
	todayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	windowEnd := todayStart.AddDate(0, 0, DueSoonDays+1)
	return !loan.DueDate.Before(todayStart) && loan.DueDate.Before(windowEnd)
}

func notify(loan models.Loan, loc *time.Location) Notification {
	due := loan.DueDate.In(loc)
	return Notification{
		LoanID:      loan.ID,
		BookTitle:   loan.BookTitle,
		StudentName: loan.StudentName,
		DueDate:     loan.DueDate,
		Message: fmt.Sprintf("The book %q borrowed by %s is due on %s.",
			loan.BookTitle, loan.StudentName, due.Format(dueDateLayout)),
	}
}
