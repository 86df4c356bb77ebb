package echoServer

import (
	"net/http"

	authctrl "librarium/app/echoServer/controller/auth"
	bookctrl "librarium/app/echoServer/controller/book"
	loanctrl "librarium/app/echoServer/controller/loan"
	reportctrl "librarium/app/echoServer/controller/report"
	reviewctrl "librarium/app/echoServer/controller/review"
	userctrl "librarium/app/echoServer/controller/user"
	jwtutil "librarium/util/jwt"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

type C struct {
	Auth      *authctrl.Controller
	Book      *bookctrl.Controller
	Loan      *loanctrl.Controller
	Review    *reviewctrl.Controller
	User      *userctrl.Controller
	Report    *reportctrl.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(ctx echo.Context, token string) (interface{}, error) {
			return jwtutil.ParseAuth(token, c.JWTSecret)
		},
	}))
	// claims extraction: user_id + role for the handlers below
	auth.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			reqID := ctx.Response().Header().Get(echo.HeaderXRequestID)

			claims, ok := ctx.Get("user").(map[string]any)
			if !ok {
				ctx.Logger().Warnf("[AUTH] missing claims req_id=%s", reqID)
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			sub, ok := claims["sub"].(float64)
			if !ok {
				ctx.Logger().Warnf("[AUTH] missing sub claim req_id=%s claims=%v", reqID, claims)
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			ctx.Set("user_id", int64(sub))
			if role, ok := claims["role"].(string); ok {
				ctx.Set("role", role)
			}
			return next(ctx)
		}
	})

	// Catalog
	auth.GET("/books", c.Book.List)
	auth.GET("/books/:id", c.Book.Detail)
	auth.POST("/books", c.Book.Create) // admin

	// Lending
	auth.POST("/books/:id/borrow", c.Loan.Borrow)
	auth.POST("/books/:id/reserve", c.Loan.Reserve)
	auth.POST("/loans/:id/return", c.Loan.Return)
	auth.POST("/loans/:id/renew", c.Loan.Renew)
	auth.GET("/loans/my", c.Loan.MyLoans)
	auth.GET("/reservations/my", c.Loan.MyReservations)
	auth.GET("/fines/my", c.Loan.MyFines)

	// Reviews
	auth.POST("/books/:id/reviews", c.Review.Rate)
	auth.GET("/books/:id/reviews", c.Review.ListByBook)

	// Profile
	auth.GET("/users/me", c.User.Me)
	auth.PUT("/users/me", c.User.Update)

	// Admin
	auth.GET("/admin/reports", c.Report.Dashboard)
}
