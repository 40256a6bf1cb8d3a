package routes

import (
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"
	"github.com/finsight/pulse/pkg/graph"
	"github.com/finsight/pulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ProcessTextHandler runs one text through entity and relation extraction
// and merges the findings into the knowledge graph.
func ProcessTextHandler(c echo.Context) error {
	type processTextBody struct {
		Text      string  `json:"text" validate:"required"`
		Sentiment float64 `json:"sentiment" validate:"min=-1,max=1"`
	}

	type processTextResponse struct {
		Message   string                  `json:"message"`
		Extracted *graph.ExtractionResult `json:"extracted,omitempty"`
	}

	data := new(processTextBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, processTextResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, processTextResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	extracted, err := app.Graph.ProcessText(c.Request().Context(), data.Text, data.Sentiment)
	if err != nil {
		logger.Error("Text processing failed", "err", err)
		return c.JSON(http.StatusInternalServerError, processTextResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, processTextResponse{
		Message:   "OK",
		Extracted: extracted,
	})
}
