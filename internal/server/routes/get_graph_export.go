package routes

import (
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// ExportGraphHandler serializes the whole graph. The format query param
// selects the output shape: json (default) or cytoscape.
func ExportGraphHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	export, err := app.Graph.ExportGraph(c.QueryParam("format"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, export)
}
