package controllers

import (
	"net/http"
	"strconv"
	"time"

	"bioguard/middlewares"
	"bioguard/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type RealtimeController struct {
	RT     *services.RealtimeHub
	Alerts *services.AlertBus
}

func NewRealtimeController(rt *services.RealtimeHub, alerts *services.AlertBus) *RealtimeController {
	return &RealtimeController{RT: rt, Alerts: alerts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // tighten behind ALB/CloudFront if needed
}

// GET /ws/alerts
func (rc *RealtimeController) AlertsWS(c *gin.Context) {
	uid := middlewares.UserID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &services.WSClient{UserID: uid, Conn: conn}
	rc.RT.Register(cl)

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(25 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := cl.Ping(); err != nil {
					return
				}
			}
		}
	}()

	// read loop ends on client close/error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			rc.RT.Unregister(cl)
			return
		}
	}
}

// GET /alerts?limit=20
func (rc *RealtimeController) ListAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := rc.Alerts.Recent(c.Request.Context(), middlewares.UserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}
