package transport

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ConnectionCounter reports how many clients are registered.
type ConnectionCounter interface {
	Count() int
}

func NewHealthHandler(counter ConnectionCounter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": counter.Count(),
		})
	}
}
