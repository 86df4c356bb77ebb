// Package loan implements the loan lifecycle engine: borrowing,
// returning with reservation hand-off, renewal, and the reservation
// queue. Every operation runs as a single transaction so the book
// availability flag and the active-loan set can never disagree.
package loan

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"librarium/model"
	lrepo "librarium/repository/loan"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// errors used by controllers

type ErrCode string

const (
	ErrUnavailable  ErrCode = "UNAVAILABLE"
	ErrConflict     ErrCode = "CONFLICT"
	ErrNotActive    ErrCode = "NOT_ACTIVE"
	ErrNotRenewable ErrCode = "NOT_RENEWABLE"
	ErrNotFound     ErrCode = "NOT_FOUND"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Policy holds the lending rules. All values come from configuration.
type Policy struct {
	LoanPeriodDays    int
	RenewalDays       int
	RenewalWindowDays int
	FineRatePerDay    float64
}

// ReturnResult reports the outcome of a return. A late return is not an
// error; the fine and days late are informational for the caller.
type ReturnResult struct {
	LoanID        int64   `json:"loan_id"`
	DaysLate      int     `json:"days_late"`
	Fine          float64 `json:"fine"`
	BookAvailable bool    `json:"book_available"`
	HandedOverTo  *int64  `json:"handed_over_to,omitempty"`
	NextLoanID    *int64  `json:"next_loan_id,omitempty"`
}

// LoanRow = repository shape
type LoanRow = lrepo.LoanRow

type Service interface {
	// Borrow starts a loan and marks the book unavailable.
	Borrow(ctx context.Context, userID, bookID int64) (*model.Loan, error)

	// Return closes the caller's loan and either hands the book to the
	// next reservation in line or marks it available again.
	Return(ctx context.Context, userID, loanID int64) (*ReturnResult, error)

	// Renew extends the due date, permitted only on the single day
	// before the due date and only when nobody is waiting.
	Renew(ctx context.Context, userID, loanID int64) (*model.Loan, error)

	// Reserve queues the caller for the book.
	Reserve(ctx context.Context, userID, bookID int64) (*model.Reservation, error)

	MyLoans(ctx context.Context, userID int64) ([]LoanRow, error)
	MyReservations(ctx context.Context, userID int64) ([]model.Reservation, error)
	MyFines(ctx context.Context, userID int64) ([]model.FineEntry, error)
}

// ----- Service implementation -----

type service struct {
	store lrepo.Store
	p     Policy
	now   func() time.Time
}

func New(store lrepo.Store, p Policy) Service {
	return &service{store: store, p: p, now: time.Now}
}

func (s *service) Borrow(ctx context.Context, userID, bookID int64) (*model.Loan, error) {
	var loan *model.Loan
	err := s.store.WithinTx(ctx, func(q lrepo.Queries) error {
		book, err := q.GetBookForUpdate(ctx, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !book.IsAvailable {
			return makeErr(ErrUnavailable)
		}

		// The flag and the ledger must never disagree; re-check the
		// ledger before trusting the flag.
		exists, err := q.ActiveLoanExists(ctx, bookID)
		if err != nil {
			return err
		}
		if exists {
			return makeErr(ErrConflict)
		}

		l, err := s.openLoan(ctx, q, bookID, userID)
		if err != nil {
			return err
		}
		if err := q.SetBookAvailability(ctx, bookID, false); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// openLoan inserts a loan, computes the due date from the stored start
// date, and appends the matching history row. The due date is written in
// a second statement because it derives from the generated start date;
// both writes share the caller's transaction.
func (s *service) openLoan(ctx context.Context, q lrepo.Queries, bookID, userID int64) (*model.Loan, error) {
	start := s.now().UTC()
	id, err := q.InsertLoan(ctx, bookID, userID, start)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, makeErr(ErrConflict)
		}
		return nil, err
	}
	due := start.AddDate(0, 0, s.p.LoanPeriodDays)
	if err := q.SetLoanDueDate(ctx, id, due); err != nil {
		return nil, err
	}
	if err := q.InsertHistory(ctx, bookID, userID, start); err != nil {
		return nil, err
	}
	return &model.Loan{
		ID:        id,
		BookID:    bookID,
		UserID:    userID,
		StartDate: start,
		DueDate:   &due,
	}, nil
}

func (s *service) Return(ctx context.Context, userID, loanID int64) (*ReturnResult, error) {
	res := &ReturnResult{}
	err := s.store.WithinTx(ctx, func(q lrepo.Queries) error {
		l, err := q.GetLoanForUpdate(ctx, loanID)
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		if err != nil {
			return err
		}
		if l.UserID != userID {
			return makeErr(ErrNotFound)
		}
		if !l.IsActive() {
			return makeErr(ErrNotActive)
		}

		// Lock the book row so the close / hand-off / flag flip below
		// is indivisible with respect to concurrent borrows and
		// reserves of the same book.
		if _, err := q.GetBookForUpdate(ctx, l.BookID); err != nil {
			return err
		}

		today := s.now().UTC()
		var fine float64
		var late int
		if l.DueDate != nil {
			fine = model.CalculateFine(today, *l.DueDate, s.p.FineRatePerDay)
			if d := model.DaysBetween(*l.DueDate, today); d > 0 {
				late = d
			}
		}

		if err := q.CloseLoan(ctx, l.ID, today, fine); err != nil {
			return err
		}
		if fine > 0 {
			if err := q.InsertFine(ctx, l.UserID, l.ID, fine); err != nil {
				return err
			}
		}
		// History is best-effort: a missing open row is not a failure.
		if _, err := q.CloseLatestHistory(ctx, l.BookID, l.UserID, today); err != nil {
			return err
		}

		next, err := q.NextReservation(ctx, l.BookID)
		if err != nil {
			return err
		}
		if next != nil {
			// Hand the book straight to the next person in line; it
			// never becomes available in between.
			nl, err := s.openLoan(ctx, q, l.BookID, next.UserID)
			if err != nil {
				return err
			}
			if err := q.ServeReservation(ctx, next.ID); err != nil {
				return err
			}
			if err := q.SetBookAvailability(ctx, l.BookID, false); err != nil {
				return err
			}
			res.HandedOverTo = &next.UserID
			res.NextLoanID = &nl.ID
		} else {
			if err := q.SetBookAvailability(ctx, l.BookID, true); err != nil {
				return err
			}
			res.BookAvailable = true
		}

		res.LoanID = l.ID
		res.DaysLate = late
		res.Fine = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) Renew(ctx context.Context, userID, loanID int64) (*model.Loan, error) {
	var loan *model.Loan
	err := s.store.WithinTx(ctx, func(q lrepo.Queries) error {
		l, err := q.GetLoanForUpdate(ctx, loanID)
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		if err != nil {
			return err
		}
		if l.UserID != userID {
			return makeErr(ErrNotFound)
		}

		today := s.now().UTC()
		if !l.IsActive() || l.DueDate == nil {
			return makeErr(ErrNotRenewable)
		}
		days, ok := l.DaysUntilDue(today)
		if !ok || days != s.p.RenewalWindowDays {
			return makeErr(ErrNotRenewable)
		}
		reserved, err := q.ActiveReservationExists(ctx, l.BookID)
		if err != nil {
			return err
		}
		if reserved {
			return makeErr(ErrNotRenewable)
		}

		due := l.DueDate.AddDate(0, 0, s.p.RenewalDays)
		if err := q.ExtendLoanDueDate(ctx, l.ID, due); err != nil {
			return err
		}
		l.DueDate = &due
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) Reserve(ctx context.Context, userID, bookID int64) (*model.Reservation, error) {
	var r *model.Reservation
	err := s.store.WithinTx(ctx, func(q lrepo.Queries) error {
		// Lock the book row so a reservation cannot slip in while a
		// return is deciding whether the queue is empty.
		if _, err := q.GetBookForUpdate(ctx, bookID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrNotFound)
			}
			return err
		}
		dup, err := q.UserHasActiveReservation(ctx, bookID, userID)
		if err != nil {
			return err
		}
		if dup {
			return makeErr(ErrConflict)
		}
		nr, err := q.InsertReservation(ctx, bookID, userID)
		if err != nil {
			if isUniqueViolation(err) {
				return makeErr(ErrConflict)
			}
			return err
		}
		r = nr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *service) MyLoans(ctx context.Context, userID int64) ([]LoanRow, error) {
	return s.store.ListUserLoans(ctx, userID)
}

func (s *service) MyReservations(ctx context.Context, userID int64) ([]model.Reservation, error) {
	return s.store.ListUserReservations(ctx, userID)
}

func (s *service) MyFines(ctx context.Context, userID int64) ([]model.FineEntry, error) {
	return s.store.ListUserFines(ctx, userID)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
