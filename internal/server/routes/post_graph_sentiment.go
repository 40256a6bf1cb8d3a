package routes

import (
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// PropagateSentimentHandler diffuses a sentiment reading from a seed entity
// to its linked entities.
func PropagateSentimentHandler(c echo.Context) error {
	type propagateBody struct {
		Seed      string  `json:"seed" validate:"required"`
		Sentiment float64 `json:"sentiment" validate:"min=-1,max=1"`
	}

	type propagateResponse struct {
		Message string             `json:"message"`
		Scores  map[string]float64 `json:"scores,omitempty"`
	}

	data := new(propagateBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, propagateResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, propagateResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	scores := app.Graph.PropagateSentiment(data.Seed, data.Sentiment)
	if scores == nil {
		return c.JSON(http.StatusNotFound, propagateResponse{
			Message: "Unknown seed entity",
		})
	}

	return c.JSON(http.StatusOK, propagateResponse{
		Message: "OK",
		Scores:  scores,
	})
}
