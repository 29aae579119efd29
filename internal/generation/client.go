// Package generation turns extracted study notes into a QuizDocument using
// a generative language service.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/model"
	"google.golang.org/api/googleapi"
)

var (
	ErrEmptyInput    = errors.New("no input text provided")
	ErrInputTooShort = errors.New("input text is too short to generate a quiz")
	ErrUnavailable   = errors.New("generation service unavailable")
)

// Model is a single round trip to a generative service.
type Model interface {
	Complete(ctx context.Context, text string) (string, error)
}

type Options struct {
	MinChars   int
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// Result is a generated quiz. Fallback is set when the service reply could
// not be read as a structured quiz; Issues lists items whose correct answer
// does not resolve to exactly one option.
type Result struct {
	Document model.QuizDocument
	Fallback bool
	Reason   string
	Issues   []model.ItemIssue
}

type Client struct {
	model Model
	opts  Options
	log   zerolog.Logger
}

func NewClient(m Model, opts Options, log zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	return &Client{
		model: m,
		opts:  opts,
		log:   log.With().Str("component", "generation").Logger(),
	}
}

// Generate validates the input, calls the model with bounded retries and
// parses the reply. Malformed replies are not errors; only invalid input,
// cancellation and an unreachable service are.
func (c *Client) Generate(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if n := utf8.RuneCountInString(text); n < c.opts.MinChars {
		return nil, fmt.Errorf("%w: %d characters, need at least %d", ErrInputTooShort, n, c.opts.MinChars)
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		raw, err := c.model.Complete(attemptCtx, text)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return "", backoff.Permanent(err)
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("generation attempt failed, retrying")
		return "", err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.BaseDelay
	eb.MaxInterval = 10 * time.Second

	start := time.Now()
	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(c.opts.MaxRetries+1)),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.log.Error().Err(err).Int("attempts", attempt).Msg("generation failed")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	parsed := Parse(raw)
	if !parsed.OK {
		c.log.Warn().Str("reason", parsed.Reason).Int("raw_len", len(raw)).Msg("generation reply not structured, falling back to summary only")
	}
	issues := parsed.Document.Validate()

	c.log.Info().
		Int("attempts", attempt).
		Int("mcqs", len(parsed.Document.Mcqs)).
		Int("issues", len(issues)).
		Dur("duration", time.Since(start)).
		Msg("quiz generated")

	return &Result{
		Document: parsed.Document,
		Fallback: !parsed.OK,
		Reason:   parsed.Reason,
		Issues:   issues,
	}, nil
}

// retryable reports whether err is a transient transport or service fault.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return transientStatus(code)
		}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return transientStatus(gErr.Code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
