package controllers

import (
	"errors"
	"net/http"

	"bioguard/middlewares"
	"bioguard/services"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	Users *services.UserService
}

func NewUserController(u *services.UserService) *UserController {
	return &UserController{Users: u}
}

// GET /user/profile
func (uc *UserController) GetProfile(c *gin.Context) {
	p, err := uc.Users.GetHealthProfile(c.Request.Context(), middlewares.UserID(c))
	if errors.Is(err, services.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// PUT /user/profile
func (uc *UserController) UpdateProfile(c *gin.Context) {
	var in services.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	p, err := uc.Users.UpsertProfile(c.Request.Context(), middlewares.UserID(c), in)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}
