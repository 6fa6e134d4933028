package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"bioguard/middlewares"
	"bioguard/services"

	"github.com/gin-gonic/gin"
)

type HistoryController struct {
	History *services.HistoryService
}

func NewHistoryController(h *services.HistoryService) *HistoryController {
	return &HistoryController{History: h}
}

// GET /history?limit=10
func (hc *HistoryController) List(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 0 and 100"})
			return
		}
		limit = n
	}
	out, err := hc.History.ListRecent(c.Request.Context(), middlewares.UserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": out})
}

// GET /history/:id
func (hc *HistoryController) Get(c *gin.Context) {
	out, err := hc.History.Get(c.Request.Context(), middlewares.UserID(c), c.Param("id"))
	if errors.Is(err, services.ErrScanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
