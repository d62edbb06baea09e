package store

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/countershard/countershard/internal/apierr"
)

// Handler exposes a Store over HTTP. It holds only the dependency it needs,
// following the same struct-holds-dependencies shape used throughout this
// codebase's HTTP surfaces.
type Handler struct {
	store *Store
}

// NewHandler builds a Handler for store.
func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

// Register mounts every route this handler serves onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/store/:key", h.get)
	r.POST("/store/:key", h.put)
	r.POST("/store/:key/increment", h.increment)
	r.POST("/store/:key/compact", h.compact)
	r.DELETE("/store/:key", h.delete)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "storenode up"})
}

func (h *Handler) get(c *gin.Context) {
	key := c.Param("key")
	v, ok := h.store.Get(key)
	if !ok {
		apierr.Respond(c, apierr.New(apierr.NotFound, "key not found").WithKey(key))
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": v})
}

type putRequest struct {
	Value string `json:"value"`
}

func (h *Handler) put(c *gin.Context) {
	key := c.Param("key")
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == "" {
		apierr.Respond(c, apierr.New(apierr.BadRequest, "must provide JSON body with 'value'").WithKey(key))
		return
	}
	v, err := h.store.Put(key, req.Value)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "value": v})
}

func (h *Handler) increment(c *gin.Context) {
	key := c.Param("key")
	v, err := h.store.Increment(key)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "value": v})
}

func (h *Handler) delete(c *gin.Context) {
	key := c.Param("key")
	existed, err := h.store.Delete(key)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if !existed {
		apierr.Respond(c, apierr.New(apierr.NotFound, "key not found").WithKey(key))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) compact(c *gin.Context) {
	if err := h.store.Compact(); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
