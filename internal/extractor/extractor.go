// Package extractor turns uploaded study material into one normalized
// plain-text string.
//
// Supported formats are dispatched by file extension:
//   - .pdf: PDF text layer
//   - .docx: Word 2007+ document body
//   - .doc: Word 97-2003 document body (OLE2 piece table)
//   - .txt: passthrough (UTF-8, or UTF-16 with BOM)
//
// Any other extension is reported as skipped. Files are read with bounded
// concurrency but always aggregated in the order they were supplied.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sentinel errors for per-file extraction failures.
var (
	ErrUnsupportedExtension = errors.New("unsupported extension")
	ErrNoText               = errors.New("no extractable text")
	ErrEncrypted            = errors.New("document is encrypted")
)

// Status is the outcome of extracting one source file.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Source is one uploaded file awaiting extraction.
type Source struct {
	// Path is where the file lives in transient storage.
	Path string
	// Name is the client-supplied file name, used for reporting. Falls back
	// to the base of Path.
	Name string
}

func (s Source) displayName() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.Path)
}

// Result is the per-file extraction status.
type Result struct {
	File    string `json:"file"`
	Status  Status `json:"status"`
	Chars   int    `json:"chars,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Removed bool   `json:"removed,omitempty"`

	text string
}

// Batch is the aggregated output of one extraction request.
type Batch struct {
	Text    string   `json:"-"`
	Results []Result `json:"results"`
}

// Failures returns the results that did not contribute text, in input order.
func (b *Batch) Failures() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.Status != StatusOK {
			out = append(out, r)
		}
	}
	return out
}

type readFunc func(path string) (string, error)

// readers is the fixed extension dispatch table.
var readers = map[string]readFunc{
	".pdf":  readPDF,
	".docx": readDocx,
	".doc":  readDoc,
	".txt":  readText,
}

// SupportedExtensions lists the accepted extensions without the dot.
func SupportedExtensions() []string {
	return []string{"pdf", "doc", "docx", "txt"}
}

// Supported reports whether name has an extension the extractor can read.
func Supported(name string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Options tunes an Extractor.
type Options struct {
	// Concurrency bounds how many files are read at once. Values below 1 mean 1.
	Concurrency int
	// RemoveExtracted deletes a source file once its text is part of the
	// aggregate. Failed and skipped files are always left in place.
	RemoveExtracted bool
}

// Extractor reads source files and aggregates their normalized text.
type Extractor struct {
	opts Options
	log  zerolog.Logger
}

// New creates an Extractor.
func New(opts Options, log zerolog.Logger) *Extractor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Extractor{
		opts: opts,
		log:  log.With().Str("component", "extractor").Logger(),
	}
}

// Extract reads every source and appends pasted text last. A failing file
// never aborts the batch; it is reported in Batch.Results instead. The only
// error returned is context cancellation.
func (e *Extractor) Extract(ctx context.Context, sources []Source, pasted string) (*Batch, error) {
	results := make([]Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.extractOne(src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract batch: %w", err)
	}

	parts := make([]string, 0, len(sources)+1)
	for i := range results {
		r := &results[i]
		if r.Status != StatusOK {
			continue
		}
		parts = append(parts, r.text)
		if e.opts.RemoveExtracted {
			if err := os.Remove(sources[i].Path); err != nil {
				e.log.Warn().Err(err).Str("file", r.File).Msg("Failed to remove extracted upload")
			} else {
				r.Removed = true
			}
		}
	}
	if p := Normalize(pasted); p != "" {
		parts = append(parts, p)
	}

	return &Batch{
		Text:    strings.Join(parts, "\n\n"),
		Results: results,
	}, nil
}

func (e *Extractor) extractOne(src Source) Result {
	name := src.displayName()
	ext := strings.ToLower(filepath.Ext(name))
	read, ok := readers[ext]
	if !ok {
		e.log.Info().Str("file", name).Str("ext", ext).Msg("Skipping unsupported file")
		return Result{
			File:   name,
			Status: StatusSkipped,
			Reason: fmt.Sprintf("%v: %q", ErrUnsupportedExtension, ext),
		}
	}

	raw, err := read(src.Path)
	if err == nil {
		raw = Normalize(raw)
		if raw == "" {
			err = ErrNoText
		}
	}
	if err != nil {
		e.log.Warn().Err(err).Str("file", name).Msg("Extraction failed")
		return Result{File: name, Status: StatusFailed, Reason: err.Error()}
	}

	e.log.Debug().Str("file", name).Int("chars", len(raw)).Msg("Extracted")
	return Result{File: name, Status: StatusOK, Chars: len(raw), text: raw}
}
