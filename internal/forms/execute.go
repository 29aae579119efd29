package forms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	formsapi "google.golang.org/api/forms/v1"
)

var ErrCreate = errors.New("create form failed")

// PartialError means the form exists but holds none of the questions.
// Retrying with FormID as the existing form resumes without a duplicate.
type PartialError struct {
	FormID string
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("form %s was created but adding questions failed: %v", e.FormID, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// API is the subset of the Forms service the executor needs.
type API interface {
	Create(ctx context.Context, form *formsapi.Form) (*formsapi.Form, error)
	Get(ctx context.Context, formID string) (*formsapi.Form, error)
	BatchUpdate(ctx context.Context, formID string, req *formsapi.BatchUpdateFormRequest) error
}

type Result struct {
	FormID  string
	FormURL string
}

// EditURL is the owner-facing address of a form.
func EditURL(formID string) string {
	return "https://docs.google.com/forms/d/" + url.PathEscape(formID) + "/edit"
}

type Executor struct {
	api     API
	timeout time.Duration
	log     zerolog.Logger
}

func NewExecutor(api API, timeout time.Duration, log zerolog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		api:     api,
		timeout: timeout,
		log:     log.With().Str("component", "forms").Logger(),
	}
}

// Execute creates the form and populates it in one batch. When
// existingFormID is set the create call is skipped; a form that already has
// items is taken as populated by an earlier attempt.
func (e *Executor) Execute(ctx context.Context, plan *Plan, existingFormID string) (*Result, error) {
	formID := existingFormID

	if formID == "" {
		cctx, cancel := context.WithTimeout(ctx, e.timeout)
		created, err := e.api.Create(cctx, plan.Create)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreate, err)
		}
		if created == nil || created.FormId == "" {
			return nil, fmt.Errorf("%w: response carried no form id", ErrCreate)
		}
		formID = created.FormId
		e.log.Info().Str("form_id", formID).Msg("form created")
	} else {
		gctx, cancel := context.WithTimeout(ctx, e.timeout)
		existing, err := e.api.Get(gctx, formID)
		cancel()
		if err != nil {
			return nil, &PartialError{FormID: formID, Err: fmt.Errorf("read existing form: %w", err)}
		}
		if len(existing.Items) > 0 {
			e.log.Info().Str("form_id", formID).Int("items", len(existing.Items)).Msg("form already populated, skipping batch")
			return &Result{FormID: formID, FormURL: EditURL(formID)}, nil
		}
	}

	bctx, cancel := context.WithTimeout(ctx, e.timeout)
	err := e.api.BatchUpdate(bctx, formID, plan.Batch())
	cancel()
	if err != nil {
		e.log.Error().Err(err).Str("form_id", formID).Msg("populate form failed")
		return nil, &PartialError{FormID: formID, Err: err}
	}

	e.log.Info().Str("form_id", formID).Int("items", len(plan.Items)).Msg("form populated")
	return &Result{FormID: formID, FormURL: EditURL(formID)}, nil
}
