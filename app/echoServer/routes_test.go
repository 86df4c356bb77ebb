package echoServer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	reportctrl "librarium/app/echoServer/controller/report"
	userctrl "librarium/app/echoServer/controller/user"
	"librarium/model"
	jwtutil "librarium/util/jwt"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeUserSvc struct{ lastID int64 }

func (f *fakeUserSvc) Me(ctx context.Context, userID int64) (*model.User, error) {
	f.lastID = userID
	return &model.User{ID: userID, Username: "ana", Role: "user"}, nil
}

func (f *fakeUserSvc) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileReq) (*model.User, error) {
	return f.Me(ctx, userID)
}

type fakeReportSvc struct{}

func (fakeReportSvc) Dashboard(ctx context.Context) (*model.Report, error) {
	return &model.Report{}, nil
}

func newTestServer(us *fakeUserSvc) *echo.Echo {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	e := echo.New()
	Register(e, C{
		User:      &userctrl.Controller{Svc: us, V: validator.New(), Log: log},
		Report:    &reportctrl.Controller{Svc: fakeReportSvc{}, Log: log},
		JWTSecret: testSecret,
	})
	return e
}

func doGet(e *echo.Echo, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestProtectedRoute_BearerToken(t *testing.T) {
	us := &fakeUserSvc{}
	e := newTestServer(us)

	tok, err := jwtutil.Issue(testSecret, 42, "user", 1)
	require.NoError(t, err)

	rec := doGet(e, "/v1/users/me", "Bearer "+tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, int64(42), us.lastID, "sub claim must reach the handler as user_id")
}

func TestProtectedRoute_MissingOrBadToken(t *testing.T) {
	e := newTestServer(&fakeUserSvc{})

	// No Authorization header at all.
	rec := doGet(e, "/v1/users/me", "")
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Token without the Bearer prefix is malformed for this surface.
	tok, err := jwtutil.Issue(testSecret, 42, "user", 1)
	require.NoError(t, err)
	rec = doGet(e, "/v1/users/me", tok)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doGet(e, "/v1/users/me", "Bearer not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	other, err := jwtutil.Issue("other-secret", 42, "user", 1)
	require.NoError(t, err)
	rec = doGet(e, "/v1/users/me", "Bearer "+other)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
}

func TestRoleClaim_GatesAdminRoutes(t *testing.T) {
	e := newTestServer(&fakeUserSvc{})

	admin, err := jwtutil.Issue(testSecret, 1, "admin", 1)
	require.NoError(t, err)
	rec := doGet(e, "/v1/admin/reports", "Bearer "+admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user, err := jwtutil.Issue(testSecret, 2, "user", 1)
	require.NoError(t, err)
	rec = doGet(e, "/v1/admin/reports", "Bearer "+user)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}
