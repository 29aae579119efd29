package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/extractor"
)

// Sentinel errors for study material uploads.
var (
	ErrFileTooLarge  = errors.New("file too large")
	ErrTooManyFiles  = errors.New("too many files")
	ErrTextTooLong   = errors.New("text too long")
	ErrNoInput       = errors.New("no files or text provided")
	ErrUploadStorage = errors.New("could not store upload")

	// ErrExtractionAborted marks a request stopped before extraction
	// finished, so every staged file is still on disk.
	ErrExtractionAborted = errors.New("extraction aborted")
)

// UploadService moves uploaded study material into transient storage.
type UploadService struct {
	cfg *config.Config
}

func NewUploadService(cfg *config.Config) *UploadService {
	return &UploadService{cfg: cfg}
}

// Stage stores each supported upload under a random name and returns the
// sources in upload order. Unsupported files are not written; they are
// passed on by name so extraction reports them as skipped.
func (s *UploadService) Stage(headers []*multipart.FileHeader) ([]extractor.Source, error) {
	if len(headers) > s.cfg.MaxUploadFiles {
		return nil, fmt.Errorf("%w: %d (max: %d)", ErrTooManyFiles, len(headers), s.cfg.MaxUploadFiles)
	}
	for _, h := range headers {
		if h.Size > s.cfg.MaxUploadBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes (max: %d)", ErrFileTooLarge, h.Filename, h.Size, s.cfg.MaxUploadBytes)
		}
	}

	sources := make([]extractor.Source, 0, len(headers))
	for _, h := range headers {
		name := filepath.Base(h.Filename)
		if !extractor.Supported(name) {
			sources = append(sources, extractor.Source{Name: name})
			continue
		}
		path, err := s.save(h)
		if err != nil {
			s.Discard(sources)
			return nil, err
		}
		sources = append(sources, extractor.Source{Path: path, Name: name})
	}
	return sources, nil
}

// Discard removes staged files, used when a request is abandoned before
// extraction.
func (s *UploadService) Discard(sources []extractor.Source) {
	for _, src := range sources {
		if src.Path != "" {
			_ = os.Remove(src.Path)
		}
	}
}

func (s *UploadService) save(h *multipart.FileHeader) (string, error) {
	file, err := h.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrUploadStorage, h.Filename, err)
	}
	defer file.Close()

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create upload dir: %v", ErrUploadStorage, err)
	}

	filename := uuid.New().String() + strings.ToLower(filepath.Ext(h.Filename))
	destPath := filepath.Join(s.cfg.UploadDir, filename)

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("%w: create file: %v", ErrUploadStorage, err)
	}

	// The header size is client-declared; enforce the limit on the bytes.
	n, err := io.Copy(dst, io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	closeErr := dst.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("%w: write file: %v", ErrUploadStorage, err)
	case closeErr != nil:
		err = fmt.Errorf("%w: close file: %v", ErrUploadStorage, closeErr)
	case n > s.cfg.MaxUploadBytes:
		err = fmt.Errorf("%w: %s (max: %d bytes)", ErrFileTooLarge, h.Filename, s.cfg.MaxUploadBytes)
	}
	if err != nil {
		_ = os.Remove(destPath)
		return "", err
	}
	return destPath, nil
}
