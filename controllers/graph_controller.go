package controllers

import (
	"net/http"
	"strings"

	"bioguard/models"
	"bioguard/services"
	"bioguard/utils"

	"github.com/gin-gonic/gin"
)

type GraphController struct {
	Graph *services.ConflictGraph
	Store *services.GraphStore // optional Neo4j mirror
	Log   *utils.Logger
}

func NewGraphController(g *services.ConflictGraph, store *services.GraphStore, log *utils.Logger) *GraphController {
	if log == nil {
		log = utils.NopLogger()
	}
	return &GraphController{Graph: g, Store: store, Log: log}
}

type conflictsReq struct {
	Ingredients []string `json:"ingredients" binding:"required"`
	Conditions  []string `json:"conditions" binding:"required"`
}

// POST /graph/conflicts
func (gc *GraphController) Conflicts(c *gin.Context) {
	var req conflictsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": gc.Graph.FindConflicts(req.Ingredients, req.Conditions)})
}

// GET /graph/edges
func (gc *GraphController) Edges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"edges": gc.Graph.Edges(), "count": gc.Graph.Len()})
}

// POST /graph/edges
func (gc *GraphController) AddEdge(c *gin.Context) {
	var e models.ConflictEdge
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	e.Ingredient = strings.ToLower(strings.TrimSpace(e.Ingredient))
	e.Condition = strings.ToLower(strings.TrimSpace(e.Condition))
	if e.Ingredient == "" || e.Condition == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ingredient and condition are required"})
		return
	}
	if !e.Relationship.Valid() || !e.Severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown relationship or severity"})
		return
	}
	gc.Graph.AddEdge(e)
	if gc.Store != nil {
		if err := gc.Store.SyncEdges(c.Request.Context(), []models.ConflictEdge{e}); err != nil {
			gc.Log.Warn("graph mirror failed", "ingredient", e.Ingredient, "error", err)
		}
	}
	c.JSON(http.StatusCreated, e)
}
