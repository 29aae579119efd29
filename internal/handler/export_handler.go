package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/forms"
	"github.com/stemsi/docquiz-backend/internal/model"
	"github.com/stemsi/docquiz-backend/internal/response"
	"github.com/stemsi/docquiz-backend/internal/service"
	"github.com/stemsi/docquiz-backend/internal/validator"
)

// ExportHandler handles the Google Forms export flow.
type ExportHandler struct {
	exports *service.ExportService
	cfg     *config.Config
	log     zerolog.Logger
}

func NewExportHandler(exports *service.ExportService, cfg *config.Config, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		cfg:     cfg,
		log:     log.With().Str("component", "export_handler").Logger(),
	}
}

// StartExport godoc
// POST /api/v1/form
// Stores the quiz and returns the Google consent URL.
func (h *ExportHandler) StartExport(c *gin.Context) {
	var req model.ExportRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	res, err := h.exports.Begin(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Callback godoc
// GET /oauth2callback
// Finishes authorization and redirects to the dashboard with the outcome.
func (h *ExportHandler) Callback(c *gin.Context) {
	out := h.exports.Complete(c.Request.Context(), service.CallbackParams{
		Code:  c.Query("code"),
		State: c.Query("state"),
		Error: c.Query("error"),
	})

	ev := h.log.Info()
	if !out.Success() {
		ev = h.log.Warn().Str("error", out.Error)
	}
	ev.Str("export_id", out.ExportID).Str("form_id", out.FormID).Msg("authorization callback handled")

	c.Redirect(http.StatusFound, out.RedirectURL(h.cfg.DashboardURL))
}

// GetExport godoc
// GET /api/v1/exports/:id
func (h *ExportHandler) GetExport(c *gin.Context) {
	id, ok := exportID(c)
	if !ok {
		return
	}
	res, err := h.exports.Status(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// RetryExport godoc
// POST /api/v1/exports/:id/retry
// Restarts a failed export and returns a fresh consent URL.
func (h *ExportHandler) RetryExport(c *gin.Context) {
	id, ok := exportID(c)
	if !ok {
		return
	}
	res, err := h.exports.Retry(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *ExportHandler) fail(c *gin.Context, err error) {
	var ce *forms.CompileError
	switch {
	case errors.As(err, &ce):
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrAnswerMismatch, issueFields(ce.Issues))
	case errors.Is(err, forms.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrExportNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotRetryable):
		response.Fail(c, http.StatusConflict, response.ErrNotRetryable)
	default:
		h.log.Error().Err(err).Msg("export request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// issueFields keys each issue by the item it belongs to, e.g. "mcqs[2]".
func issueFields(issues []model.ItemIssue) map[string]string {
	fields := make(map[string]string, len(issues))
	for _, is := range issues {
		key := "mcqs[" + strconv.Itoa(is.Index) + "]"
		if prev, ok := fields[key]; ok {
			fields[key] = prev + "; " + is.Detail
			continue
		}
		fields[key] = is.Detail
	}
	return fields
}

func exportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
