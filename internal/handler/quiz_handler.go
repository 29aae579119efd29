package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/generation"
	"github.com/stemsi/docquiz-backend/internal/response"
	"github.com/stemsi/docquiz-backend/internal/service"
)

// multipartOverhead is allowed on top of the file limits for form fields
// and part headers.
const multipartOverhead = 1 << 20

// QuizHandler handles quiz generation from uploads and pasted text.
type QuizHandler struct {
	uploads *service.UploadService
	quiz    *service.QuizService
	cfg     *config.Config
	log     zerolog.Logger
}

func NewQuizHandler(uploads *service.UploadService, quiz *service.QuizService, cfg *config.Config, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		uploads: uploads,
		quiz:    quiz,
		cfg:     cfg,
		log:     log.With().Str("component", "quiz_handler").Logger(),
	}
}

// Generate godoc
// POST /api/v1/quiz/generate
// Accepts multipart "files" plus optional "text" (or "textInput") and
// returns a summary with multiple-choice questions.
func (h *QuizHandler) Generate(c *gin.Context) {
	limit := int64(h.cfg.MaxUploadFiles)*h.cfg.MaxUploadBytes + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var headers []*multipart.FileHeader
	form, err := c.MultipartForm()
	switch {
	case err == nil:
		headers = form.File["files"]
	case errors.Is(err, http.ErrNotMultipart):
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	text := c.PostForm("text")
	if text == "" {
		text = c.PostForm("textInput")
	}

	sources, err := h.uploads.Stage(headers)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTooManyFiles):
			response.Fail(c, http.StatusBadRequest, response.ErrTooManyFiles)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		default:
			h.log.Error().Err(err).Msg("stage uploads")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	res, err := h.quiz.Generate(c.Request.Context(), sources, text)
	if err != nil {
		var ie *service.InputError
		if (errors.As(err, &ie) && ie.Extraction == nil) || errors.Is(err, service.ErrExtractionAborted) {
			// Extraction never finished, so staged files are still on disk.
			// Files that failed extraction are kept for diagnosis.
			h.uploads.Discard(sources)
		}
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

func (h *QuizHandler) fail(c *gin.Context, err error) {
	var ie *service.InputError
	if errors.As(err, &ie) {
		switch {
		case errors.Is(err, service.ErrTextTooLong):
			response.Fail(c, http.StatusBadRequest, response.ErrTextTooLong)
		case errors.Is(err, generation.ErrInputTooShort):
			response.FailWithData(c, http.StatusUnprocessableEntity, response.ErrInputTooShort, gin.H{"extraction": ie.Extraction})
		case errors.Is(err, generation.ErrEmptyInput) && len(ie.Extraction) > 0:
			response.FailWithData(c, http.StatusUnprocessableEntity, response.ErrNoUsableText, gin.H{"extraction": ie.Extraction})
		default:
			response.Fail(c, http.StatusBadRequest, response.ErrNoInput)
		}
		return
	}

	switch {
	case errors.Is(err, generation.ErrUnavailable):
		h.log.Warn().Err(err).Msg("generation unavailable")
		response.Fail(c, http.StatusBadGateway, response.ErrGenerationUnavailable)
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		h.log.Error().Err(err).Msg("generate quiz")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
