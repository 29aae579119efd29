package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/extractor"
	"github.com/stemsi/docquiz-backend/internal/generation"
	"github.com/stemsi/docquiz-backend/internal/model"
)

// Generator produces a quiz from normalized text.
type Generator interface {
	Generate(ctx context.Context, text string) (*generation.Result, error)
}

// QuizResult is the response of the generate endpoint.
type QuizResult struct {
	model.QuizDocument
	Issues     []model.ItemIssue  `json:"issues"`
	Fallback   bool               `json:"fallback"`
	Extraction []extractor.Result `json:"extraction"`
}

// InputError is returned when no usable text could be assembled. It keeps
// the per-file results so the caller can say why.
type InputError struct {
	Err        error
	Extraction []extractor.Result
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// QuizService runs extraction followed by generation.
type QuizService struct {
	extractor    *extractor.Extractor
	gen          Generator
	maxTextChars int
	log          zerolog.Logger
}

func NewQuizService(ex *extractor.Extractor, gen Generator, maxTextChars int, log zerolog.Logger) *QuizService {
	return &QuizService{
		extractor:    ex,
		gen:          gen,
		maxTextChars: maxTextChars,
		log:          log.With().Str("component", "quiz").Logger(),
	}
}

// Generate extracts the staged sources plus pasted text and asks the
// generator for a quiz.
func (s *QuizService) Generate(ctx context.Context, sources []extractor.Source, pasted string) (*QuizResult, error) {
	if len(sources) == 0 && pasted == "" {
		return nil, &InputError{Err: ErrNoInput}
	}
	if n := utf8.RuneCountInString(pasted); s.maxTextChars > 0 && n > s.maxTextChars {
		return nil, &InputError{Err: fmt.Errorf("%w: %d characters (max: %d)", ErrTextTooLong, n, s.maxTextChars)}
	}

	batch, err := s.extractor.Extract(ctx, sources, pasted)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionAborted, err)
	}
	if failures := batch.Failures(); len(failures) > 0 {
		s.log.Warn().Int("failed", len(failures)).Int("files", len(sources)).Msg("some uploads produced no text")
	}

	res, err := s.gen.Generate(ctx, batch.Text)
	if err != nil {
		if errors.Is(err, generation.ErrEmptyInput) || errors.Is(err, generation.ErrInputTooShort) {
			return nil, &InputError{Err: err, Extraction: batch.Results}
		}
		return nil, err
	}

	return &QuizResult{
		QuizDocument: res.Document,
		Issues:       nonNil(res.Issues),
		Fallback:     res.Fallback,
		Extraction:   nonNil(batch.Results),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
