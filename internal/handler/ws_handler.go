package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/model"
	"github.com/stemsi/docquiz-backend/internal/response"
	"github.com/stemsi/docquiz-backend/internal/service"
	ws "github.com/stemsi/docquiz-backend/internal/websocket"
)

const keepAliveInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams export progress over WebSocket.
type WSHandler struct {
	rdb      *redis.Client
	exports  *service.ExportService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(rdb *redis.Client, exports *service.ExportService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:      rdb,
		exports:  exports,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExportStream godoc
// WS /ws/v1/exports/:id/stream
// Sends a snapshot of the export followed by every state change until the
// export reaches DONE or FAILED.
func (h *WSHandler) ExportStream(c *gin.Context) {
	id, ok := exportID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Subscribe before reading the snapshot so no transition falls between them.
	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.ExportEventsChannel(id.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Error().Err(err).Msg("subscribe export events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	snapshot, err := h.exports.Status(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrExportNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Msg("load export snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("export_id", id.String()).Logger()
	wsLog.Debug().Msg("Client attached to export stream")

	if err := ws.WriteTyped(conn, ws.SnapshotResponse{Event: ws.EventSnapshot, Export: snapshot}); err != nil {
		return
	}
	if snapshot.State.Terminal() {
		ws.Close(conn, string(snapshot.State))
		return
	}

	// Only this goroutine writes; the reader hands pings over.
	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go h.readLoop(conn, wsLog, pings, done)

	events := pubsub.Channel()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			wsLog.Debug().Msg("Client left export stream")
			return

		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}

		case <-keepAlive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}

		case msg, ok := <-events:
			if !ok {
				return
			}
			var ev model.ExportEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed export event")
				continue
			}
			if err := ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, State: &ev}); err != nil {
				return
			}
			if ev.State.Terminal() {
				ws.Close(conn, string(ev.State))
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, log zerolog.Logger, pings chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.ReadWait))
	})
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		if msg.Action != ws.ActionPing {
			log.Debug().Str("action", string(msg.Action)).Msg("Ignoring unknown action")
			continue
		}
		select {
		case pings <- struct{}{}:
		default:
		}
	}
}
