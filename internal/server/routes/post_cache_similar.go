package routes

import (
	"encoding/json"
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"
	"github.com/finsight/pulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetSimilarHandler looks up a cached result for a semantically similar
// text. A miss is a 200 with hit=false, not an error: callers fall through
// to the paid model either way.
func GetSimilarHandler(c echo.Context) error {
	type getSimilarBody struct {
		Text string `json:"text" validate:"required"`
	}

	type getSimilarResponse struct {
		Message string          `json:"message"`
		Hit     bool            `json:"hit"`
		Result  json.RawMessage `json:"result,omitempty"`
	}

	data := new(getSimilarBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, getSimilarResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, getSimilarResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	result, err := app.Cache.GetSimilar(c.Request().Context(), data.Text)
	if err != nil {
		logger.Error("Cache lookup failed", "err", err)
		return c.JSON(http.StatusInternalServerError, getSimilarResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getSimilarResponse{
		Message: "OK",
		Hit:     result != nil,
		Result:  result,
	})
}
