package booksvc

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"librarium/model"
	bookrepo "librarium/repository/book"
	"librarium/repository/openlibrary"
)

type Book = model.Book
type Filter = bookrepo.Filter

type Repo interface {
	CreateBook(ctx context.Context, b *model.Book) (int64, error)
	List(ctx context.Context, f Filter) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.BookDetail, error)
}

type Service interface {
	Create(ctx context.Context, b model.Book) (int64, error)
	List(ctx context.Context, f Filter) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.BookDetail, error)
}

type service struct {
	r    Repo
	meta openlibrary.Repo // nil when metadata lookup is disabled
}

func New(r Repo, meta openlibrary.Repo) Service { return &service{r: r, meta: meta} }

func (s *service) Create(ctx context.Context, b model.Book) (int64, error) {
	if s.meta != nil && b.ISBN != "" {
		s.fillFromMetadata(&b)
	}
	if b.Name == "" || b.Category == "" {
		return 0, errors.New("invalid payload")
	}
	return s.r.CreateBook(ctx, &b)
}

// fillFromMetadata fills empty fields from Open Library. Lookup failure
// is logged and ignored: the catalog entry is what the librarian typed.
func (s *service) fillFromMetadata(b *model.Book) {
	m, err := s.meta.ByISBN(b.ISBN)
	if err != nil {
		slog.Warn("isbn lookup failed", "isbn", b.ISBN, "err", err)
		return
	}
	if b.Name == "" {
		b.Name = m.Title
	}
	if b.Pages == 0 {
		b.Pages = m.Pages
	}
	if b.Year == 0 {
		b.Year = yearFrom(m.PublishDate)
	}
}

// yearFrom pulls the 4-digit year out of loosely formatted publish
// dates like "May 2004" or "2004".
func yearFrom(publishDate string) int {
	for _, tok := range strings.Fields(publishDate) {
		tok = strings.Trim(tok, ",.")
		if len(tok) == 4 {
			if y, err := strconv.Atoi(tok); err == nil && y > 0 {
				return y
			}
		}
	}
	return 0
}

func (s *service) List(ctx context.Context, f Filter) ([]model.Book, error) {
	return s.r.List(ctx, f)
}

func (s *service) Detail(ctx context.Context, id int64) (*model.BookDetail, error) {
	return s.r.Detail(ctx, id)
}
