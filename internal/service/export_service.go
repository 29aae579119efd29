package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/forms"
	"github.com/stemsi/docquiz-backend/internal/handoff"
	"github.com/stemsi/docquiz-backend/internal/model"
	"github.com/stemsi/docquiz-backend/internal/repository"
)

// Export errors returned to JSON callers.
var (
	ErrExportNotFound = errors.New("export not found")
	ErrNotRetryable   = errors.New("only failed exports can be retried")
)

// Messages carried back to the dashboard in the error parameter.
const (
	MsgNoFormData       = "No form data found. Please try generating the form again."
	MsgMissingCode      = "Missing authorization code. Please try again."
	MsgAccessDenied     = "Google authorization was cancelled or denied. Please try again."
	MsgExchangeFailed   = "Could not complete Google authorization. Please try again."
	MsgInvalidQuiz      = "The quiz has questions whose answer does not match exactly one option."
	MsgCreateFailed     = "Failed to create the Google Form. Please try again."
	MsgPopulateFailed   = "The form was created but adding the questions failed. Retry the export to finish it."
	MsgWindowExpired    = "Authorization window expired. Please try exporting again."
	MsgInternalCallback = "Something went wrong while creating the form. Please try again."
	MsgInProgress       = "This export is already being completed. Check its status on the dashboard."
)

// ExportLedger persists export attempts and their state.
type ExportLedger interface {
	Create(ctx context.Context, e *model.FormExport) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.FormExport, error)
	Transition(ctx context.Context, id uuid.UUID, from, to model.ExportState, errMsg string) error
	SetForm(ctx context.Context, id uuid.UUID, formID, formURL string) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.FormExport, error)
}

// FormsAPIFactory builds a Forms client from an authorized HTTP client.
type FormsAPIFactory func(ctx context.Context, client *http.Client) (forms.API, error)

// CallbackParams are the query parameters of the OAuth callback.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// Outcome is the terminal result of a callback, rendered as a dashboard
// redirect.
type Outcome struct {
	ExportID string
	FormID   string
	FormURL  string
	Error    string
}

func (o *Outcome) Success() bool { return o.Error == "" }

// RedirectURL appends the outcome to base as query parameters.
func (o *Outcome) RedirectURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{Path: "/dashboard"}
	}
	q := u.Query()
	if o.ExportID != "" {
		q.Set("exportId", o.ExportID)
	}
	if o.Error != "" {
		q.Set("error", o.Error)
		if o.FormID != "" {
			q.Set("formId", o.FormID)
		}
	} else {
		q.Set("formId", o.FormID)
		q.Set("formUrl", o.FormURL)
		q.Set("success", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ExportService drives a quiz through authorization into a Google Form.
type ExportService struct {
	ledger       ExportLedger
	store        handoff.Store
	auth         Authorizer
	state        *StateSigner
	newForms     FormsAPIFactory
	rdb          *redis.Client
	formsTimeout time.Duration
	log          zerolog.Logger
}

func NewExportService(
	ledger ExportLedger,
	store handoff.Store,
	auth Authorizer,
	state *StateSigner,
	newForms FormsAPIFactory,
	rdb *redis.Client,
	formsTimeout time.Duration,
	log zerolog.Logger,
) *ExportService {
	return &ExportService{
		ledger:       ledger,
		store:        store,
		auth:         auth,
		state:        state,
		newForms:     newForms,
		rdb:          rdb,
		formsTimeout: formsTimeout,
		log:          log.With().Str("component", "export").Logger(),
	}
}

// Begin records a new export, stores its quiz for the callback and returns
// the consent URL. Documents that cannot be compiled are rejected before
// anything is stored.
func (s *ExportService) Begin(ctx context.Context, req *model.ExportRequest) (*model.StartExportResponse, error) {
	if _, err := forms.Compile(req.Title, req.QuizDocument); err != nil {
		return nil, err
	}

	e := &model.FormExport{
		ID:       uuid.New(),
		State:    model.ExportIdle,
		Title:    req.Title,
		Document: req.QuizDocument,
	}
	if err := s.ledger.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create export: %w", err)
	}
	return s.authorize(ctx, e)
}

// Retry restarts a failed export from the ledger copy of its quiz. A form
// left behind by a failed populate call is reused by the next callback.
func (s *ExportService) Retry(ctx context.Context, id uuid.UUID) (*model.StartExportResponse, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.State != model.ExportFailed {
		return nil, ErrNotRetryable
	}
	if _, err := forms.Compile(e.Title, e.Document); err != nil {
		return nil, err
	}
	return s.authorize(ctx, e)
}

func (s *ExportService) Status(ctx context.Context, id uuid.UUID) (*model.ExportStatusResponse, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ExportStatusResponse{FormExport: e, Partial: e.Partial()}, nil
}

func (s *ExportService) authorize(ctx context.Context, e *model.FormExport) (*model.StartExportResponse, error) {
	if err := s.move(ctx, e, model.ExportSaving, ""); err != nil {
		return nil, err
	}

	handle, err := s.store.Save(ctx, &handoff.Record{
		ExportID:  e.ID,
		Title:     e.Title,
		Document:  e.Document,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.fail(ctx, e, MsgInternalCallback)
		return nil, fmt.Errorf("save handoff: %w", err)
	}

	state, err := s.state.Sign(handle, e.ID)
	if err != nil {
		s.fail(ctx, e, MsgInternalCallback)
		return nil, err
	}
	authURL := s.auth.AuthCodeURL(state)

	if err := s.move(ctx, e, model.ExportAwaitingAuthorization, ""); err != nil {
		return nil, err
	}
	return &model.StartExportResponse{URL: authURL, ExportID: e.ID.String()}, nil
}

// Complete handles the authorization callback: it recovers the quiz,
// exchanges the code and runs the create-then-populate protocol. It never
// returns an error; every failure is an Outcome with a readable message.
func (s *ExportService) Complete(ctx context.Context, p CallbackParams) *Outcome {
	// The form calls run to completion even if the browser goes away.
	ctx = context.WithoutCancel(ctx)

	claims, exportID, stateErr := s.state.Parse(p.State)

	if p.Code == "" {
		msg := MsgMissingCode
		if p.Error != "" {
			msg = MsgAccessDenied
		}
		if stateErr != nil {
			return &Outcome{Error: msg}
		}
		if _, err := s.store.Load(ctx, claims.Handle); err != nil && !errors.Is(err, handoff.ErrNotFound) {
			s.log.Warn().Err(err).Msg("discard handoff after missing code")
		}
		return s.failByID(ctx, exportID, msg)
	}

	if stateErr != nil {
		s.log.Warn().Err(stateErr).Msg("callback with unusable state")
		return &Outcome{Error: MsgNoFormData}
	}

	rec, err := s.store.Load(ctx, claims.Handle)
	if errors.Is(err, handoff.ErrNotFound) || (err == nil && rec.ExportID != exportID) {
		return s.failByID(ctx, exportID, MsgNoFormData)
	}
	if err != nil {
		s.log.Error().Err(err).Str("export_id", exportID.String()).Msg("load handoff")
		return s.failByID(ctx, exportID, MsgInternalCallback)
	}

	e, err := s.get(ctx, exportID)
	if err != nil {
		return &Outcome{ExportID: exportID.String(), Error: MsgNoFormData}
	}

	if err := s.move(ctx, e, model.ExportAuthorized, ""); err != nil {
		return s.outcome(e, MsgNoFormData)
	}

	if err := s.move(ctx, e, model.ExportExchanging, ""); err != nil {
		return s.outcome(e, MsgInternalCallback)
	}
	xctx, cancel := context.WithTimeout(ctx, s.formsTimeout)
	client, err := s.auth.Exchange(xctx, p.Code)
	cancel()
	if err != nil {
		s.log.Error().Err(err).Str("export_id", e.ID.String()).Msg("token exchange failed")
		return s.fail(ctx, e, MsgExchangeFailed)
	}

	if err := s.move(ctx, e, model.ExportCreating, ""); err != nil {
		return s.outcome(e, MsgInternalCallback)
	}
	return s.create(ctx, e, rec, client)
}

func (s *ExportService) create(ctx context.Context, e *model.FormExport, rec *handoff.Record, client *http.Client) *Outcome {
	plan, err := forms.Compile(rec.Title, rec.Document)
	if err != nil {
		s.log.Error().Err(err).Str("export_id", e.ID.String()).Msg("stored quiz does not compile")
		return s.fail(ctx, e, MsgInvalidQuiz)
	}

	api, err := s.newForms(ctx, client)
	if err != nil {
		s.log.Error().Err(err).Msg("build forms client")
		return s.fail(ctx, e, MsgCreateFailed)
	}

	res, err := forms.NewExecutor(api, s.formsTimeout, s.log).Execute(ctx, plan, e.FormID)
	if err != nil {
		var partial *forms.PartialError
		if errors.As(err, &partial) {
			e.FormID = partial.FormID
			if serr := s.ledger.SetForm(ctx, e.ID, partial.FormID, ""); serr != nil {
				s.log.Error().Err(serr).Str("form_id", partial.FormID).Msg("record orphaned form")
			}
			return s.fail(ctx, e, MsgPopulateFailed)
		}
		s.log.Error().Err(err).Str("export_id", e.ID.String()).Msg("create form failed")
		return s.fail(ctx, e, MsgCreateFailed)
	}

	e.FormID, e.FormURL = res.FormID, res.FormURL
	if err := s.ledger.SetForm(ctx, e.ID, res.FormID, res.FormURL); err != nil {
		s.log.Error().Err(err).Str("form_id", res.FormID).Msg("record form")
	}
	if err := s.move(ctx, e, model.ExportDone, ""); err != nil {
		s.log.Error().Err(err).Str("export_id", e.ID.String()).Str("form_id", res.FormID).Msg("mark export done")
		return s.outcome(e, MsgInternalCallback)
	}

	s.log.Info().Str("export_id", e.ID.String()).Str("form_id", res.FormID).Msg("export completed")
	return s.outcome(e, "")
}

// ExpireStale fails exports that have been waiting longer than maxAge.
func (s *ExportService) ExpireStale(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	stale, err := s.ledger.ListStale(ctx, time.Now().Add(-maxAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale exports: %w", err)
	}
	expired := 0
	for _, e := range stale {
		if err := s.move(ctx, e, model.ExportFailed, MsgWindowExpired); err != nil {
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *ExportService) get(ctx context.Context, id uuid.UUID) (*model.FormExport, error) {
	e, err := s.ledger.GetByID(ctx, id)
	if errors.Is(err, repository.ErrExportNotFound) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return e, nil
}

// move persists a state change and publishes it.
func (s *ExportService) move(ctx context.Context, e *model.FormExport, to model.ExportState, errMsg string) error {
	if !e.State.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrStateConflict, e.State, to)
	}
	if err := s.ledger.Transition(ctx, e.ID, e.State, to, errMsg); err != nil {
		s.log.Warn().Err(err).Str("export_id", e.ID.String()).Str("from", string(e.State)).Str("to", string(to)).Msg("transition rejected")
		return err
	}

	s.log.Debug().Str("export_id", e.ID.String()).Str("from", string(e.State)).Str("to", string(to)).Msg("export transition")
	e.State, e.Error = to, errMsg
	s.publish(ctx, e)
	return nil
}

func (s *ExportService) publish(ctx context.Context, e *model.FormExport) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(model.ExportEvent{
		ExportID: e.ID.String(),
		State:    e.State,
		FormID:   e.FormID,
		FormURL:  e.FormURL,
		Error:    e.Error,
		At:       time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExportEventsChannel(e.ID.String()), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("export_id", e.ID.String()).Msg("publish export event")
	}
}

func (s *ExportService) fail(ctx context.Context, e *model.FormExport, msg string) *Outcome {
	if err := s.move(ctx, e, model.ExportFailed, msg); err != nil {
		s.log.Error().Err(err).Str("export_id", e.ID.String()).Msg("mark export failed")
	}
	return s.outcome(e, msg)
}

func (s *ExportService) failByID(ctx context.Context, id uuid.UUID, msg string) *Outcome {
	e, err := s.get(ctx, id)
	if err != nil {
		return &Outcome{ExportID: id.String(), Error: msg}
	}
	switch e.State {
	case model.ExportIdle, model.ExportSaving, model.ExportAwaitingAuthorization:
		return s.fail(ctx, e, msg)
	case model.ExportAuthorized, model.ExportExchanging, model.ExportCreating:
		// Another callback owns this export; a replay must not touch it.
		s.log.Warn().Str("export_id", id.String()).Str("state", string(e.State)).Msg("callback replayed while export in progress")
		return s.outcome(e, MsgInProgress)
	default:
		return s.outcome(e, msg)
	}
}

func (s *ExportService) outcome(e *model.FormExport, msg string) *Outcome {
	return &Outcome{ExportID: e.ID.String(), FormID: e.FormID, FormURL: e.FormURL, Error: msg}
}
