package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the map API on router.
func SetupRoutes(router *gin.Engine, handler *Handler, allowedOrigins []string) {
	corsConfig := cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.GET("/clusters", handler.GetClusters)
		api.GET("/clusters/:id/leaves", handler.GetClusterLeaves)
		api.GET("/clusters/:id/region", handler.GetClusterRegion)
		api.GET("/clusters/:id/hull", handler.GetClusterHull)
		api.POST("/clusters/:id/tap", handler.TapCluster)

		api.POST("/listings", handler.PostListings)
		api.GET("/listings", handler.GetListings)

		api.PUT("/favorites/:id", handler.PutFavorite)
		api.DELETE("/favorites/:id", handler.DeleteFavorite)
		api.PUT("/favorites-only", handler.PutFavoritesOnly)

		api.POST("/select/building/:key", handler.SelectBuilding)
		api.POST("/select/unit/:id", handler.SelectUnit)
		api.POST("/select/background", handler.SelectBackground)
		api.POST("/select/close", handler.CloseSheet)
		api.GET("/selection", handler.GetSelection)

		api.GET("/search-pin", handler.GetSearchPin)
		api.DELETE("/search-pin", handler.DeleteSearchPin)

		api.POST("/location", handler.GoToCurrentLocation)
		api.GET("/camera", handler.GetCamera)

		api.GET("/regions", handler.GetRegions)
		api.GET("/regions/:name", handler.GetRegion)
	}
}
