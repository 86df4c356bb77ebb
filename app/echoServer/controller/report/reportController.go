package report

import (
	"log/slog"
	"net/http"

	reportsvc "librarium/service/report"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc reportsvc.Service
	Log *slog.Logger
}

// GET /v1/admin/reports  (admin)
func (h *Controller) Dashboard(c echo.Context) error {
	role, _ := c.Get("role").(string)
	if role != "admin" {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}

	rep, err := h.Svc.Dashboard(c.Request().Context())
	if err != nil {
		h.Log.Error("report", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, rep)
}
