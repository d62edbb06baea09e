// Package gateway implements the thin HTTP front door: it proxies enqueue
// requests to the queue service verbatim, and serves counter reads by
// routing through the consistent-hash ring with a single retry against a
// secondary on transport failure. It is intentionally minimal — routing
// and retry only, per this system's scope.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/countershard/countershard/internal/apierr"
	"github.com/countershard/countershard/internal/ring"
)

const readDeadline = time.Second

// Handler serves the gateway's HTTP surface.
type Handler struct {
	ring *ring.Ring
	// secondaries maps a primary store node URL to its aligned secondary
	// URL, used for the single documented read-fallback retry.
	secondaries map[string]string
	queueURL    string
	client      *http.Client
	logger      zerolog.Logger
}

// Config configures a new Handler.
type Config struct {
	Ring        *ring.Ring
	Secondaries map[string]string
	QueueURL    string
	Logger      zerolog.Logger
}

// NewHandler builds a gateway Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		ring:        cfg.Ring,
		secondaries: cfg.Secondaries,
		queueURL:    cfg.QueueURL,
		client:      &http.Client{Timeout: readDeadline},
		logger:      cfg.Logger,
	}
}

// Register mounts every route this handler serves onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.POST("/enqueue", h.enqueue)
	r.GET("/counter/:key", h.getCounter)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "gateway up"})
}

// enqueue proxies the request body verbatim to the queue service and
// mirrors whatever it returns, unchanged.
func (h *Handler) enqueue(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apierr.Respond(c, apierr.New(apierr.BadRequest, "could not read request body"))
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.queueURL, bytes.NewReader(body))
	if err != nil {
		apierr.Respond(c, apierr.Wrap(apierr.Upstream, "build enqueue request", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		apierr.Respond(c, apierr.Wrap(apierr.Upstream, "reach queue service", err))
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	c.Data(resp.StatusCode, "application/json", respBody)
}

// getCounter looks up key's primary via the ring, reads it, and retries
// exactly once against the aligned secondary on a transport error. An
// absent key (404 from the SN) reads as 0, matching the contract that
// unknown keys never surface as "not found" at the gateway layer. A
// secondary promotion protocol would resolve this path more gracefully on
// sustained primary failure, but that's explicitly out of scope here.
func (h *Handler) getCounter(c *gin.Context) {
	key := c.Param("key")

	primary, ok := h.ring.Lookup(key)
	if !ok {
		apierr.Respond(c, apierr.New(apierr.Upstream, "no store node available"))
		return
	}

	value, found, err := h.readFrom(c.Request.Context(), primary, key)
	if err != nil {
		secondary, hasSecondary := h.secondaries[primary]
		if !hasSecondary {
			apierr.Respond(c, apierr.Wrap(apierr.Upstream, "primary unreachable, no secondary configured", err).WithKey(key).WithRemote(primary))
			return
		}
		value, found, err = h.readFrom(c.Request.Context(), secondary, key)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "primary and secondary both unreachable"})
			return
		}
	}

	if !found {
		c.JSON(http.StatusOK, gin.H{"key": key, "value": "0"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (h *Handler) readFrom(ctx context.Context, node, key string) (value string, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, readDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node+"/store/"+key, nil)
	if err != nil {
		return "", false, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, apierr.New(apierr.Upstream, "store node returned unexpected status").WithRemote(node)
	}

	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", false, err
	}
	return payload.Value, true, nil
}
