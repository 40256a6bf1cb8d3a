package routes

import (
	"net/http"

	"github.com/finsight/pulse/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func GetCacheStatsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, app.Cache.Stats())
}
