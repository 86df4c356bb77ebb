package bookrepo

import (
	"context"
	"database/sql"
	"errors"

	"librarium/model"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Name     string
	Author   string
	Category string
	Year     int
}

type Repo interface {
	CreateBook(ctx context.Context, b *model.Book) (int64, error)
	List(ctx context.Context, f Filter) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.BookDetail, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) CreateBook(ctx context.Context, b *model.Book) (int64, error) {
	const q = `
INSERT INTO books (name, author, publisher, year, category, isbn, pages, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, q,
		b.Name, b.Author, b.Publisher, b.Year, b.Category, b.ISBN, b.Pages, b.Description,
	).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repo) List(ctx context.Context, f Filter) ([]model.Book, error) {
	const q = `
		SELECT id, name, author, publisher, COALESCE(year,0), category,
		       isbn, COALESCE(pages,0), description, is_available, created_at
		FROM books
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR author ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR category = $3)
		  AND ($4 = 0 OR year = $4)
		ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, q, f.Name, f.Author, f.Category, f.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(
			&b.ID, &b.Name, &b.Author, &b.Publisher, &b.Year, &b.Category,
			&b.ISBN, &b.Pages, &b.Description, &b.IsAvailable, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.BookDetail, error) {
	const q = `
		SELECT b.id, b.name, b.author, b.publisher, COALESCE(b.year,0), b.category,
		       b.isbn, COALESCE(b.pages,0), b.description, b.is_available, b.created_at,
		       COALESCE(AVG(rv.rating), 0),
		       COUNT(rv.id),
		       COUNT(rv.id) FILTER (WHERE rv.rating = 1),
		       COUNT(rv.id) FILTER (WHERE rv.rating = 2),
		       COUNT(rv.id) FILTER (WHERE rv.rating = 3),
		       COUNT(rv.id) FILTER (WHERE rv.rating = 4),
		       COUNT(rv.id) FILTER (WHERE rv.rating = 5)
		FROM books b
		LEFT JOIN reviews rv ON rv.book_id = b.id
		WHERE b.id = $1
		GROUP BY b.id`
	d := &model.BookDetail{}
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.Name, &d.Author, &d.Publisher, &d.Year, &d.Category,
		&d.ISBN, &d.Pages, &d.Description, &d.IsAvailable, &d.CreatedAt,
		&d.Ratings.Average, &d.Ratings.Total,
		&d.Ratings.Stars[0], &d.Ratings.Stars[1], &d.Ratings.Stars[2],
		&d.Ratings.Stars[3], &d.Ratings.Stars[4],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
