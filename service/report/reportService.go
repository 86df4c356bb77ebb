package reportsvc

import (
	"context"
	"time"

	"librarium/model"
	reportrepo "librarium/repository/report"
)

type Service interface {
	Dashboard(ctx context.Context) (*model.Report, error)
}

type service struct {
	r   reportrepo.Repo
	now func() time.Time
}

func New(r reportrepo.Repo) Service { return &service{r: r, now: time.Now} }

func (s *service) Dashboard(ctx context.Context) (*model.Report, error) {
	return s.r.Snapshot(ctx, s.now().UTC())
}
