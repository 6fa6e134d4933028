package routes

import (
	"net/http"

	"bioguard/controllers"
	"bioguard/middlewares"
	"bioguard/utils"

	"github.com/gin-gonic/gin"
)

// Deps carries the controllers the router mounts.
type Deps struct {
	JWTSecret   string
	CORSOrigins []string
	Log         *utils.Logger

	Scan      *controllers.ScanController
	Nutrition *controllers.NutritionController
	Graph     *controllers.GraphController
	History   *controllers.HistoryController
	Analytics *controllers.AnalyticsController
	User      *controllers.UserController
	Device    *controllers.DeviceController
	Realtime  *controllers.RealtimeController
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(d.Log), middlewares.CORS(d.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/")
	api.Use(middlewares.AuthMiddleware(d.JWTSecret))

	scan := api.Group("/scan")
	{
		scan.POST("", d.Scan.Analyze)
		scan.POST("/detect", d.Scan.Detect)
		scan.GET("/state", d.Scan.State)
		scan.DELETE("/active", d.Scan.Cancel)
	}

	api.GET("/nutrition", d.Nutrition.Lookup)

	graph := api.Group("/graph")
	{
		graph.POST("/conflicts", d.Graph.Conflicts)
		graph.GET("/edges", d.Graph.Edges)
		graph.POST("/edges", d.Graph.AddEdge)
	}

	api.GET("/history", d.History.List)
	api.GET("/history/:id", d.History.Get)
	api.GET("/dashboard", d.Analytics.Dashboard)

	user := api.Group("/user")
	{
		user.GET("/profile", d.User.GetProfile)
		user.PUT("/profile", d.User.UpdateProfile)
		user.POST("/devices", d.Device.Register)
		user.POST("/notifications/toggle", d.Device.ToggleNotifications)
	}

	api.GET("/alerts", d.Realtime.ListAlerts)
	api.GET("/ws/alerts", d.Realtime.AlertsWS)

	return r
}
