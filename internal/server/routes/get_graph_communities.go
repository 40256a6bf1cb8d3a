package routes

import (
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func GetCommunitiesHandler(c echo.Context) error {
	type communitiesResponse struct {
		Message     string         `json:"message"`
		Communities map[string]int `json:"communities"`
	}

	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, communitiesResponse{
		Message:     "OK",
		Communities: app.Graph.DetectCommunities(),
	})
}
