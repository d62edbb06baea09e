package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/countershard/countershard/internal/apierr"
)

// Handler exposes an Engine over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler builds a Handler for engine.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts every route this handler serves onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.POST("/enqueue", h.enqueue)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "queue up"})
}

type enqueueRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
}

func (h *Handler) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Action == "" || req.Key == "" {
		apierr.Respond(c, apierr.New(apierr.BadRequest, "must provide JSON with 'action' and 'key'"))
		return
	}

	status, err := h.engine.Enqueue(req.Key)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}
