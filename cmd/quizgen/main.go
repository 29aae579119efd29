// Command quizgen turns local study material into a quiz without the HTTP
// server. Source files are read in place and never deleted.
//
//	quizgen [-text "..."] [-compile] notes.pdf slides.docx
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/extractor"
	"github.com/stemsi/docquiz-backend/internal/forms"
	"github.com/stemsi/docquiz-backend/internal/generation"
	"github.com/stemsi/docquiz-backend/internal/logger"
	"github.com/stemsi/docquiz-backend/internal/model"
	"golang.org/x/term"
	formsapi "google.golang.org/api/forms/v1"
)

type output struct {
	model.QuizDocument
	Issues   []model.ItemIssue `json:"issues,omitempty"`
	Fallback bool              `json:"fallback,omitempty"`
	Form     *compiledForm     `json:"form,omitempty"`
}

// compiledForm is the export as it would be sent to Google Forms.
type compiledForm struct {
	Create *formsapi.Form                   `json:"create"`
	Batch  *formsapi.BatchUpdateFormRequest `json:"batchUpdate"`
}

func main() {
	var (
		text    string
		compile bool
		title   string
	)
	flag.StringVar(&text, "text", "", "Pasted text appended after the files")
	flag.BoolVar(&compile, "compile", false, "Also print the Google Forms requests for the quiz")
	flag.StringVar(&title, "title", "", "Form title used with -compile")
	flag.Parse()

	cfg := config.Load()
	log := logger.SetupWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := make([]extractor.Source, 0, flag.NArg())
	for _, p := range flag.Args() {
		sources = append(sources, extractor.Source{Path: p, Name: filepath.Base(p)})
	}
	if len(sources) == 0 && text == "" {
		flag.Usage()
		os.Exit(2)
	}

	ex := extractor.New(extractor.Options{Concurrency: cfg.ExtractConcurrency}, log)
	batch, err := ex.Extract(ctx, sources, text)
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	for _, r := range batch.Results {
		if r.Status != extractor.StatusOK {
			log.Warn().Str("file", r.File).Str("status", string(r.Status)).Str("reason", r.Reason).Msg("File contributed no text")
		}
	}

	gm, err := generation.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTemperature)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize generative model")
	}
	defer gm.Close()

	client := generation.NewClient(gm, generation.Options{
		MinChars:   cfg.MinInputChars,
		Timeout:    cfg.GenerationTimeout,
		MaxRetries: cfg.GenerationMaxRetries,
	}, log)

	res, err := client.Generate(ctx, batch.Text)
	if err != nil {
		log.Fatal().Err(err).Msg("Generation failed")
	}
	if res.Fallback {
		log.Warn().Str("reason", res.Reason).Msg("Model reply was not a quiz; printing it as the summary")
	}

	out := output{QuizDocument: res.Document, Issues: res.Issues, Fallback: res.Fallback}
	if compile {
		plan, err := forms.Compile(title, res.Document)
		if err != nil {
			log.Error().Err(err).Msg("Quiz cannot be exported")
		} else {
			out.Form = &compiledForm{Create: plan.Create, Batch: plan.Batch()}
		}
	}

	if err := write(os.Stdout, out, term.IsTerminal(int(os.Stdout.Fd()))); err != nil {
		log.Fatal().Err(err).Msg("Write output")
	}
	if len(res.Issues) > 0 {
		os.Exit(1)
	}
}

// write prints v as JSON, indented for a human reader.
func write(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
