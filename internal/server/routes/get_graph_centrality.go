package routes

import (
	"net/http"
	"strconv"

	"github.com/finsight/pulse/internal/server/middleware"
	"github.com/finsight/pulse/pkg/graph"

	"github.com/labstack/echo/v4"
)

func GetCentralityHandler(c echo.Context) error {
	type centralityResponse struct {
		Message string             `json:"message"`
		Scores  []graph.EntityScore `json:"scores"`
	}

	topN := 20
	if raw := c.QueryParam("top_n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, centralityResponse{
				Message: "Invalid top_n parameter",
			})
		}
		topN = parsed
	}

	app := c.(*middleware.AppContext).App
	scores := app.Graph.EntityCentrality(topN)

	return c.JSON(http.StatusOK, centralityResponse{
		Message: "OK",
		Scores:  scores,
	})
}
