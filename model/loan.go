// model/loan.go
package model

import "time"

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
)

type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	UserID     int64      `json:"user_id"`
	StartDate  time.Time  `json:"start_date"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Fine       float64    `json:"fine"`
}

// IsActive reports whether the loan is still open.
func (l *Loan) IsActive() bool { return l.ReturnedAt == nil }

// IsOverdue reports whether the loan is open and past its due date.
func (l *Loan) IsOverdue(today time.Time) bool {
	if !l.IsActive() || l.DueDate == nil {
		return false
	}
	return DaysBetween(*l.DueDate, today) > 0
}

// DaysOverdue returns how many whole days past due the loan is.
// ok is false when the loan is not overdue.
func (l *Loan) DaysOverdue(today time.Time) (days int, ok bool) {
	if !l.IsOverdue(today) {
		return 0, false
	}
	return DaysBetween(*l.DueDate, today), true
}

// DaysUntilDue returns whole days until the due date (negative when past).
// ok is false for closed loans and loans without a due date.
func (l *Loan) DaysUntilDue(today time.Time) (days int, ok bool) {
	if !l.IsActive() || l.DueDate == nil {
		return 0, false
	}
	return DaysBetween(today, *l.DueDate), true
}

// CurrentFine is the fine the loan would carry if returned today.
func (l *Loan) CurrentFine(today time.Time, ratePerDay float64) float64 {
	if days, ok := l.DaysOverdue(today); ok {
		return float64(days) * ratePerDay
	}
	return 0
}

// CalculateFine computes the fine for a loan returned on returnedAt.
// Zero when returned on or before the due date.
func CalculateFine(returnedAt, dueDate time.Time, ratePerDay float64) float64 {
	late := DaysBetween(dueDate, returnedAt)
	if late <= 0 {
		return 0
	}
	return float64(late) * ratePerDay
}

// DaysBetween counts whole calendar days from a to b, ignoring the
// time-of-day component of both.
func DaysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
