package controllers

import (
	"net/http"
	"strings"

	"bioguard/models"
	"bioguard/services"

	"github.com/gin-gonic/gin"
)

type NutritionController struct {
	Resolver *services.NutritionResolver
}

func NewNutritionController(r *services.NutritionResolver) *NutritionController {
	return &NutritionController{Resolver: r}
}

// GET /nutrition?barcode=...&q=...&sources=openfoodfacts,fooddata
func (nc *NutritionController) Lookup(c *gin.Context) {
	barcode := strings.TrimSpace(c.Query("barcode"))
	query := strings.TrimSpace(c.Query("q"))
	if barcode == "" && query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "barcode or q is required"})
		return
	}
	snap := nc.Resolver.Resolve(c.Request.Context(), services.ResolveRequest{
		Barcode:          barcode,
		Query:            query,
		PreferredSources: models.SplitList(c.Query("sources")),
	})
	if !snap.Found() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no nutrition data found", "attempts": snap.Attempts})
		return
	}
	c.JSON(http.StatusOK, snap)
}
