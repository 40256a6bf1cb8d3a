package routes

import (
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// GetShortestPathHandler returns the shortest directed path between two
// entities, addressed by name, alias or id via the from/to query params.
func GetShortestPathHandler(c echo.Context) error {
	type pathResponse struct {
		Message string   `json:"message"`
		Found   bool     `json:"found"`
		Path    []string `json:"path,omitempty"`
	}

	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if from == "" || to == "" {
		return c.JSON(http.StatusBadRequest, pathResponse{
			Message: "Missing from or to parameter",
		})
	}

	app := c.(*middleware.AppContext).App
	path := app.Graph.FindShortestPath(from, to)

	return c.JSON(http.StatusOK, pathResponse{
		Message: "OK",
		Found:   path != nil,
		Path:    path,
	})
}
