// repository/loan/loanRepository.go
//
// Persistence for the loan lifecycle: loans, the per-book reservation
// queue, the append-only history log, and recorded fines. All writes
// that must be atomic run inside WithinTx; row locks on books and loans
// serialize concurrent callers racing on the same book.
package loanrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"librarium/model"
)

// LoanRow is the listing shape joined with the book name.
type LoanRow struct {
	LoanID     int64      `json:"loan_id"`
	BookID     int64      `json:"book_id"`
	BookName   string     `json:"book_name"`
	StartDate  time.Time  `json:"start_date"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Fine       float64    `json:"fine"`
	Status     string     `json:"status"` // ACTIVE | RETURNED
}

// Queries is the transaction-scoped operation set. Every method runs on
// the transaction owned by the enclosing WithinTx call.
type Queries interface {
	// Books
	GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error)
	SetBookAvailability(ctx context.Context, bookID int64, available bool) error

	// Loans
	ActiveLoanExists(ctx context.Context, bookID int64) (bool, error)
	InsertLoan(ctx context.Context, bookID, userID int64, start time.Time) (int64, error)
	SetLoanDueDate(ctx context.Context, loanID int64, due time.Time) error
	GetLoanForUpdate(ctx context.Context, loanID int64) (*model.Loan, error)
	CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time, fine float64) error
	ExtendLoanDueDate(ctx context.Context, loanID int64, due time.Time) error

	// Reservations
	ActiveReservationExists(ctx context.Context, bookID int64) (bool, error)
	UserHasActiveReservation(ctx context.Context, bookID, userID int64) (bool, error)
	InsertReservation(ctx context.Context, bookID, userID int64) (*model.Reservation, error)
	NextReservation(ctx context.Context, bookID int64) (*model.Reservation, error)
	ServeReservation(ctx context.Context, reservationID int64) error

	// History (best-effort, append-only)
	InsertHistory(ctx context.Context, bookID, userID int64, start time.Time) error
	CloseLatestHistory(ctx context.Context, bookID, userID int64, end time.Time) (bool, error)

	// Fines
	InsertFine(ctx context.Context, userID, loanID int64, amount float64) error
}

type Store interface {
	// WithinTx runs fn inside a single transaction and commits when fn
	// returns nil, rolling back otherwise.
	WithinTx(ctx context.Context, fn func(q Queries) error) error

	ListUserLoans(ctx context.Context, userID int64) ([]LoanRow, error)
	ListUserReservations(ctx context.Context, userID int64) ([]model.Reservation, error)
	ListUserFines(ctx context.Context, userID int64) ([]model.FineEntry, error)
}

type store struct{ db *sql.DB }

func New(db *sql.DB) Store { return &store{db: db} }

func (s *store) WithinTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&queries{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *store) ListUserLoans(ctx context.Context, userID int64) ([]LoanRow, error) {
	const q = `
		SELECT
			l.id          AS loan_id,
			l.book_id     AS book_id,
			b.name        AS book_name,
			l.start_date  AS start_date,
			l.due_date    AS due_date,
			l.returned_at AS returned_at,
			l.fine        AS fine
		FROM loans l
		JOIN books b ON b.id = l.book_id
		WHERE l.user_id = $1
		ORDER BY l.start_date DESC, l.id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoanRow
	for rows.Next() {
		var r LoanRow
		if err := rows.Scan(
			&r.LoanID, &r.BookID, &r.BookName,
			&r.StartDate, &r.DueDate, &r.ReturnedAt, &r.Fine,
		); err != nil {
			return nil, err
		}
		r.Status = string(model.LoanActive)
		if r.ReturnedAt != nil {
			r.Status = string(model.LoanReturned)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) ListUserReservations(ctx context.Context, userID int64) ([]model.Reservation, error) {
	const q = `
		SELECT id, book_id, user_id, created_at, active
		FROM reservations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var r model.Reservation
		if err := rows.Scan(&r.ID, &r.BookID, &r.UserID, &r.CreatedAt, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) ListUserFines(ctx context.Context, userID int64) ([]model.FineEntry, error) {
	const q = `
		SELECT id, user_id, loan_id, amount, created_at
		FROM fines
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FineEntry
	for rows.Next() {
		var f model.FineEntry
		if err := rows.Scan(&f.ID, &f.UserID, &f.LoanID, &f.Amount, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ----- tx-scoped queries -----

type queries struct{ tx *sql.Tx }

func (q *queries) GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error) {
	const sqlq = `
		SELECT id, name, is_available
		FROM books
		WHERE id = $1
		FOR UPDATE`
	b := &model.Book{}
	err := q.tx.QueryRowContext(ctx, sqlq, bookID).Scan(&b.ID, &b.Name, &b.IsAvailable)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (q *queries) SetBookAvailability(ctx context.Context, bookID int64, available bool) error {
	const sqlq = `UPDATE books SET is_available = $2 WHERE id = $1`
	_, err := q.tx.ExecContext(ctx, sqlq, bookID, available)
	return err
}

func (q *queries) ActiveLoanExists(ctx context.Context, bookID int64) (bool, error) {
	const sqlq = `
		SELECT EXISTS (
			SELECT 1 FROM loans WHERE book_id = $1 AND returned_at IS NULL
		)`
	var exists bool
	err := q.tx.QueryRowContext(ctx, sqlq, bookID).Scan(&exists)
	return exists, err
}

func (q *queries) InsertLoan(ctx context.Context, bookID, userID int64, start time.Time) (int64, error) {
	const sqlq = `
		INSERT INTO loans (book_id, user_id, start_date)
		VALUES ($1, $2, $3)
		RETURNING id`
	var id int64
	if err := q.tx.QueryRowContext(ctx, sqlq, bookID, userID, start).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (q *queries) SetLoanDueDate(ctx context.Context, loanID int64, due time.Time) error {
	const sqlq = `UPDATE loans SET due_date = $2 WHERE id = $1`
	_, err := q.tx.ExecContext(ctx, sqlq, loanID, due)
	return err
}

func (q *queries) GetLoanForUpdate(ctx context.Context, loanID int64) (*model.Loan, error) {
	const sqlq = `
		SELECT id, book_id, user_id, start_date, due_date, returned_at, fine
		FROM loans
		WHERE id = $1
		FOR UPDATE`
	l := &model.Loan{}
	err := q.tx.QueryRowContext(ctx, sqlq, loanID).Scan(
		&l.ID, &l.BookID, &l.UserID, &l.StartDate, &l.DueDate, &l.ReturnedAt, &l.Fine,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (q *queries) CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time, fine float64) error {
	const sqlq = `
		UPDATE loans
		SET returned_at = $2,
			fine = $3
		WHERE id = $1`
	_, err := q.tx.ExecContext(ctx, sqlq, loanID, returnedAt, fine)
	return err
}

func (q *queries) ExtendLoanDueDate(ctx context.Context, loanID int64, due time.Time) error {
	const sqlq = `UPDATE loans SET due_date = $2 WHERE id = $1`
	_, err := q.tx.ExecContext(ctx, sqlq, loanID, due)
	return err
}

func (q *queries) ActiveReservationExists(ctx context.Context, bookID int64) (bool, error) {
	const sqlq = `
		SELECT EXISTS (
			SELECT 1 FROM reservations WHERE book_id = $1 AND active
		)`
	var exists bool
	err := q.tx.QueryRowContext(ctx, sqlq, bookID).Scan(&exists)
	return exists, err
}

func (q *queries) UserHasActiveReservation(ctx context.Context, bookID, userID int64) (bool, error) {
	const sqlq = `
		SELECT EXISTS (
			SELECT 1 FROM reservations WHERE book_id = $1 AND user_id = $2 AND active
		)`
	var exists bool
	err := q.tx.QueryRowContext(ctx, sqlq, bookID, userID).Scan(&exists)
	return exists, err
}

func (q *queries) InsertReservation(ctx context.Context, bookID, userID int64) (*model.Reservation, error) {
	const sqlq = `
		INSERT INTO reservations (book_id, user_id)
		VALUES ($1, $2)
		RETURNING id, created_at`
	r := &model.Reservation{BookID: bookID, UserID: userID, Active: true}
	if err := q.tx.QueryRowContext(ctx, sqlq, bookID, userID).Scan(&r.ID, &r.CreatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

// NextReservation returns the oldest active reservation for the book,
// ties broken by insertion order. Returns (nil, nil) when the queue is
// empty.
func (q *queries) NextReservation(ctx context.Context, bookID int64) (*model.Reservation, error) {
	const sqlq = `
		SELECT id, book_id, user_id, created_at, active
		FROM reservations
		WHERE book_id = $1 AND active
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE`
	r := &model.Reservation{}
	err := q.tx.QueryRowContext(ctx, sqlq, bookID).Scan(&r.ID, &r.BookID, &r.UserID, &r.CreatedAt, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (q *queries) ServeReservation(ctx context.Context, reservationID int64) error {
	const sqlq = `UPDATE reservations SET active = FALSE WHERE id = $1 AND active`
	_, err := q.tx.ExecContext(ctx, sqlq, reservationID)
	return err
}

func (q *queries) InsertHistory(ctx context.Context, bookID, userID int64, start time.Time) error {
	const sqlq = `
		INSERT INTO loan_history (book_id, user_id, date_start)
		VALUES ($1, $2, $3)`
	_, err := q.tx.ExecContext(ctx, sqlq, bookID, userID, start)
	return err
}

// CloseLatestHistory fills date_end on the most recent open history row
// for (book, user). Reports false when no open row matched.
func (q *queries) CloseLatestHistory(ctx context.Context, bookID, userID int64, end time.Time) (bool, error) {
	const sqlq = `
		UPDATE loan_history
		SET date_end = $3
		WHERE id = (
			SELECT id FROM loan_history
			WHERE book_id = $1 AND user_id = $2 AND date_end IS NULL
			ORDER BY date_start DESC, id DESC
			LIMIT 1
		)`
	res, err := q.tx.ExecContext(ctx, sqlq, bookID, userID, end)
	if err != nil {
		return false, err
	}
	aff, _ := res.RowsAffected()
	return aff > 0, nil
}

func (q *queries) InsertFine(ctx context.Context, userID, loanID int64, amount float64) error {
	const sqlq = `
		INSERT INTO fines (user_id, loan_id, amount)
		VALUES ($1, $2, $3)`
	_, err := q.tx.ExecContext(ctx, sqlq, userID, loanID, amount)
	return err
}
