package routes

import (
	"encoding/json"
	"net/http"

	"github.com/finsight/pulse/internal/queue"
	"github.com/finsight/pulse/internal/server/middleware"
	"github.com/finsight/pulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EnqueueScoreJobHandler hands a scoring job to the worker instead of
// processing it in the request path.
func EnqueueScoreJobHandler(c echo.Context) error {
	type enqueueResponse struct {
		Message string `json:"message"`
	}

	data := new(queue.ScoreJobMsg)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, enqueueResponse{
			Message: "Invalid request body",
		})
	}
	if data.Text == "" {
		return c.JSON(http.StatusBadRequest, enqueueResponse{
			Message: "Invalid request body",
		})
	}

	msgBytes, err := json.Marshal(data)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, enqueueResponse{
			Message: "Internal server error",
		})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, queue.ScoreQueue, msgBytes); err != nil {
		logger.Error("Failed to publish score job", "err", err)
		return c.JSON(http.StatusInternalServerError, enqueueResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, enqueueResponse{
		Message: "Queued",
	})
}
