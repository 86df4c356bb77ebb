package reportrepo

import (
	"context"
	"database/sql"
	"time"

	"librarium/model"
)

type Repo interface {
	Snapshot(ctx context.Context, today time.Time) (*model.Report, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) Snapshot(ctx context.Context, today time.Time) (*model.Report, error) {
	rep := &model.Report{}

	const counts = `
		SELECT
			(SELECT COUNT(*) FROM books),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(DISTINCT category) FROM books WHERE category <> ''),
			(SELECT COUNT(*) FROM books WHERE is_available),
			(SELECT COUNT(*) FROM books WHERE NOT is_available),
			(SELECT COUNT(*) FROM loans WHERE start_date = $1)`
	if err := r.db.QueryRowContext(ctx, counts, today).Scan(
		&rep.TotalBooks, &rep.TotalUsers, &rep.TotalCategories,
		&rep.BooksAvailable, &rep.BooksLoaned, &rep.LoansToday,
	); err != nil {
		return nil, err
	}

	const topBooks = `
		SELECT b.id, b.name, COUNT(l.id) AS loan_count
		FROM books b
		LEFT JOIN loans l ON l.book_id = b.id
		GROUP BY b.id
		ORDER BY loan_count DESC, b.id
		LIMIT 5`
	rows, err := r.db.QueryContext(ctx, topBooks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var bc model.BookCount
		if err := rows.Scan(&bc.BookID, &bc.Name, &bc.LoanCount); err != nil {
			return nil, err
		}
		rep.TopBooks = append(rep.TopBooks, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const topUsers = `
		SELECT u.id, u.username, COUNT(l.id) AS loan_count
		FROM users u
		JOIN loans l ON l.user_id = u.id
		GROUP BY u.id
		ORDER BY loan_count DESC, u.id
		LIMIT 5`
	urows, err := r.db.QueryContext(ctx, topUsers)
	if err != nil {
		return nil, err
	}
	defer urows.Close()
	for urows.Next() {
		var uc model.UserCount
		if err := urows.Scan(&uc.UserID, &uc.Username, &uc.LoanCount); err != nil {
			return nil, err
		}
		rep.TopUsers = append(rep.TopUsers, uc)
	}
	return rep, urows.Err()
}
