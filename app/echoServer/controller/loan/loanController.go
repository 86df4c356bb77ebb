package loan

import (
	"log/slog"
	"net/http"
	"strconv"

	ls "librarium/service/loan"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc ls.Service
	V   *validator.Validate
	Log *slog.Logger
}

func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// POST /v1/books/:id/borrow
func (h *Controller) Borrow(c echo.Context) error {
	bookID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	loan, err := h.Svc.Borrow(c.Request().Context(), uid, bookID)
	if err != nil {
		switch ls.Code(err) {
		case ls.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case ls.ErrUnavailable:
			return c.JSON(http.StatusConflict, echo.Map{"message": "book unavailable"})
		case ls.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"message": "book already on loan"})
		default:
			h.Log.Error("borrow", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"loan_id":  loan.ID,
		"book_id":  loan.BookID,
		"due_date": loan.DueDate,
	})
}

// POST /v1/loans/:id/return
func (h *Controller) Return(c echo.Context) error {
	loanID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	out, err := h.Svc.Return(c.Request().Context(), uid, loanID)
	if err != nil {
		switch ls.Code(err) {
		case ls.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "loan not found"})
		case ls.ErrNotActive:
			return c.JSON(http.StatusConflict, echo.Map{"message": "loan already returned"})
		default:
			h.Log.Error("return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, out)
}

// POST /v1/loans/:id/renew
func (h *Controller) Renew(c echo.Context) error {
	loanID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	loan, err := h.Svc.Renew(c.Request().Context(), uid, loanID)
	if err != nil {
		switch ls.Code(err) {
		case ls.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "loan not found"})
		case ls.ErrNotActive:
			return c.JSON(http.StatusConflict, echo.Map{"message": "loan not active"})
		case ls.ErrNotRenewable:
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "loan not renewable"})
		default:
			h.Log.Error("renew", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"loan_id":  loan.ID,
		"due_date": loan.DueDate,
	})
}

// POST /v1/books/:id/reserve
func (h *Controller) Reserve(c echo.Context) error {
	bookID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	res, err := h.Svc.Reserve(c.Request().Context(), uid, bookID)
	if err != nil {
		switch ls.Code(err) {
		case ls.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case ls.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"message": "already reserved"})
		default:
			h.Log.Error("reserve", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID,
		"book_id":        res.BookID,
	})
}

// GET /v1/loans/my
func (h *Controller) MyLoans(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	rows, err := h.Svc.MyLoans(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("my loans", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/reservations/my
func (h *Controller) MyReservations(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	rows, err := h.Svc.MyReservations(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("my reservations", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/fines/my
func (h *Controller) MyFines(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	rows, err := h.Svc.MyFines(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("my fines", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}

	var total float64
	for _, f := range rows {
		total += f.Amount
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows, "total": total})
}
