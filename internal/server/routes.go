package server

import (
	"github.com/finsight/pulse/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Semantic cache routes
	apiRoutes.POST("/cache/similar", routes.GetSimilarHandler)
	apiRoutes.POST("/cache/results", routes.StoreResultHandler)
	apiRoutes.GET("/cache/stats", routes.GetCacheStatsHandler)

	// Knowledge graph routes
	apiRoutes.POST("/graph/texts", routes.ProcessTextHandler)
	apiRoutes.GET("/graph/centrality", routes.GetCentralityHandler)
	apiRoutes.GET("/graph/communities", routes.GetCommunitiesHandler)
	apiRoutes.GET("/graph/path", routes.GetShortestPathHandler)
	apiRoutes.POST("/graph/sentiment", routes.PropagateSentimentHandler)
	apiRoutes.GET("/graph/export", routes.ExportGraphHandler)

	// Scoring job routes
	apiRoutes.POST("/jobs/score", routes.EnqueueScoreJobHandler)
}
