package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/finsight/pulse/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// StoreResultHandler caches a scoring result obtained from the paid model.
func StoreResultHandler(c echo.Context) error {
	type storeResultBody struct {
		Text       string          `json:"text" validate:"required"`
		Result     json.RawMessage `json:"result" validate:"required"`
		TTLSeconds int64           `json:"ttl_seconds"`
	}

	type storeResultResponse struct {
		Message string `json:"message"`
		Stored  bool   `json:"stored"`
	}

	data := new(storeResultBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, storeResultResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, storeResultResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	stored := app.Cache.StoreResult(
		c.Request().Context(),
		data.Text,
		data.Result,
		time.Duration(data.TTLSeconds)*time.Second,
	)

	return c.JSON(http.StatusOK, storeResultResponse{
		Message: "OK",
		Stored:  stored,
	})
}
