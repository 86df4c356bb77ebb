// Package main library API.
//
// @title           Librarium API
// @version         1.0
// @description     Library service (catalog, loans, reservations, fines, reviews).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"librarium/app/echoServer"
	authctrl "librarium/app/echoServer/controller/auth"
	bookctrl "librarium/app/echoServer/controller/book"
	loanctrl "librarium/app/echoServer/controller/loan"
	reportctrl "librarium/app/echoServer/controller/report"
	reviewctrl "librarium/app/echoServer/controller/review"
	userctrl "librarium/app/echoServer/controller/user"
	"librarium/app/echoServer/validation"
	"librarium/config"
	bookrepo "librarium/repository/book"
	loanrepo "librarium/repository/loan"
	"librarium/repository/openlibrary"
	reportrepo "librarium/repository/report"
	reviewrepo "librarium/repository/review"
	userrepo "librarium/repository/user"
	authsvc "librarium/service/auth"
	booksvc "librarium/service/book"
	loansvc "librarium/service/loan"
	reportsvc "librarium/service/report"
	reviewsvc "librarium/service/review"
	usersvc "librarium/service/user"
	"librarium/util/database"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	lr := loanrepo.New(db)
	rvr := reviewrepo.New(db)
	rpr := reportrepo.New(db)

	var meta openlibrary.Repo
	if cfg.MetadataLookup {
		meta = openlibrary.NewHTTP()
	}

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(br, meta)
	ls := loansvc.New(lr, loansvc.Policy{
		LoanPeriodDays:    cfg.LoanPeriodDays,
		RenewalDays:       cfg.RenewalDays,
		RenewalWindowDays: cfg.RenewalWindowDays,
		FineRatePerDay:    cfg.FineRatePerDay,
	})
	us := usersvc.New(ur)
	rvs := reviewsvc.New(rvr)
	rps := reportsvc.New(rpr)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	loanC := &loanctrl.Controller{Svc: ls, V: v, Log: log}
	reviewC := &reviewctrl.Controller{Svc: rvs, V: v, Log: log}
	userC := &userctrl.Controller{Svc: us, V: v, Log: log}
	reportC := &reportctrl.Controller{Svc: rps, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:   authC,
		Book:   bookC,
		Loan:   loanC,
		Review: reviewC,
		User:   userC,
		Report: reportC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	slog.Info("starting server", "PORT_env", os.Getenv("PORT"), "chosen_port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
