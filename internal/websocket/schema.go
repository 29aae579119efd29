package websocket

import "github.com/stemsi/docquiz-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventState    Event = "state"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SnapshotResponse is the first message on a stream: the export as it is
// recorded when the client connects.
type SnapshotResponse struct {
	Event  Event                       `json:"event"`
	Export *model.ExportStatusResponse `json:"export"`
}

// StateResponse relays one state change.
type StateResponse struct {
	Event Event              `json:"event"`
	State *model.ExportEvent `json:"state"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
