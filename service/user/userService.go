package usersvc

import (
	"context"
	"database/sql"
	"errors"

	"librarium/model"
	userrepo "librarium/repository/user"
)

var ErrNotFound = errors.New("user not found")

type Service interface {
	Me(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileReq) (*model.User, error)
}

type service struct{ ur userrepo.Repo }

func New(ur userrepo.Repo) Service { return &service{ur: ur} }

func (s *service) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.ur.ByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileReq) (*model.User, error) {
	if err := s.ur.UpdateProfile(ctx, userID, req); err != nil {
		return nil, err
	}
	return s.Me(ctx, userID)
}
