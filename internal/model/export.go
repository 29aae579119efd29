package model

import (
	"time"

	"github.com/google/uuid"
)

// ExportState is a step of the form export flow.
type ExportState string

const (
	ExportIdle                  ExportState = "IDLE"
	ExportSaving                ExportState = "SAVING"
	ExportAwaitingAuthorization ExportState = "AWAITING_AUTHORIZATION"
	ExportAuthorized            ExportState = "AUTHORIZED"
	ExportExchanging            ExportState = "EXCHANGING"
	ExportCreating              ExportState = "CREATING"
	ExportDone                  ExportState = "DONE"
	ExportFailed                ExportState = "FAILED"
)

// exportTransitions lists the allowed next states for every state.
// FAILED may move back to SAVING when a failed export is retried.
var exportTransitions = map[ExportState][]ExportState{
	ExportIdle:                  {ExportSaving, ExportFailed},
	ExportSaving:                {ExportAwaitingAuthorization, ExportFailed},
	ExportAwaitingAuthorization: {ExportAuthorized, ExportFailed},
	ExportAuthorized:            {ExportExchanging, ExportFailed},
	ExportExchanging:            {ExportCreating, ExportFailed},
	ExportCreating:              {ExportDone, ExportFailed},
	ExportFailed:                {ExportSaving},
}

// Terminal reports whether no further automatic transition is expected.
func (s ExportState) Terminal() bool {
	return s == ExportDone || s == ExportFailed
}

// CanTransition reports whether moving from s to next is permitted.
func (s ExportState) CanTransition(next ExportState) bool {
	for _, allowed := range exportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FormExport is one export attempt as recorded in the export ledger.
type FormExport struct {
	ID        uuid.UUID    `json:"id"`
	State     ExportState  `json:"state"`
	Title     string       `json:"title"`
	Document  QuizDocument `json:"-"`
	FormID    string       `json:"form_id,omitempty"`
	FormURL   string       `json:"form_url,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Partial reports a failed export whose form was created but never populated.
func (e *FormExport) Partial() bool {
	return e.State == ExportFailed && e.FormID != ""
}

// ExportEvent is published on every export state change.
type ExportEvent struct {
	ExportID string      `json:"export_id"`
	State    ExportState `json:"state"`
	FormID   string      `json:"form_id,omitempty"`
	FormURL  string      `json:"form_url,omitempty"`
	Error    string      `json:"error,omitempty"`
	At       int64       `json:"at"`
}

// StartExportResponse is returned when an export begins or is retried.
type StartExportResponse struct {
	URL      string `json:"url"`
	ExportID string `json:"export_id"`
}

// ExportStatusResponse describes the current state of an export.
type ExportStatusResponse struct {
	*FormExport
	Partial bool `json:"partial"`
}
