package reviewsvc

import (
	"context"
	"errors"

	"librarium/model"
	reviewrepo "librarium/repository/review"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrBadRating = errors.New("rating must be between 1 and 5")
	ErrNotFound  = errors.New("book not found")
)

type Service interface {
	// Rate creates or replaces the caller's review of a book.
	Rate(ctx context.Context, userID, bookID int64, rating int, comment string) (*model.Review, error)
	ListByBook(ctx context.Context, bookID int64) ([]model.Review, error)
}

type service struct{ r reviewrepo.Repo }

func New(r reviewrepo.Repo) Service { return &service{r: r} }

func (s *service) Rate(ctx context.Context, userID, bookID int64, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrBadRating
	}
	rv := &model.Review{BookID: bookID, UserID: userID, Rating: rating, Comment: comment}
	if err := s.r.Upsert(ctx, rv); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rv, nil
}

func (s *service) ListByBook(ctx context.Context, bookID int64) ([]model.Review, error) {
	return s.r.ListByBook(ctx, bookID)
}
