package controllers

import (
	"net/http"
	"time"

	"bioguard/middlewares"
	"bioguard/services"

	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	Svc *services.AnalyticsService
}

func NewAnalyticsController(s *services.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{Svc: s}
}

// GET /dashboard?from=YYYY-MM-DD&to=YYYY-MM-DD (defaults to the last 7 days)
func (ac *AnalyticsController) Dashboard(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -6)
	var err error
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(time.DateOnly, s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from (YYYY-MM-DD)"})
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(time.DateOnly, s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to (YYYY-MM-DD)"})
			return
		}
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	out, err := ac.Svc.Dashboard(c.Request.Context(), middlewares.UserID(c), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
