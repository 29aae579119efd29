package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/model"
	"github.com/stemsi/docquiz-backend/internal/response"
	"github.com/stemsi/docquiz-backend/internal/service"
)

// MonitorHandler streams export progress as server-sent events for clients
// that cannot hold a WebSocket.
type MonitorHandler struct {
	rdb     *redis.Client
	exports *service.ExportService
	log     zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, exports *service.ExportService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		exports: exports,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ExportEventsSSE godoc
// GET /api/v1/exports/:id/events
func (h *MonitorHandler) ExportEventsSSE(c *gin.Context) {
	id, ok := exportID(c)
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExportEventsChannel(id.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Msg("subscribe export events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	snapshot, err := h.exports.Status(reqCtx, id)
	if err != nil {
		if errors.Is(err, service.ErrExportNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()
	if snapshot.State.Terminal() {
		return
	}

	ch := pubsub.Channel()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON; only the state is peeked to know when to stop.
			c.Writer.Write([]byte("event: state\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
			if terminalPayload(msg.Payload) {
				return
			}

		case <-keepAlive.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

func terminalPayload(payload string) bool {
	var ev model.ExportEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.State.Terminal()
}
