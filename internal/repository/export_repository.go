package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/docquiz-backend/internal/model"
)

var (
	ErrExportNotFound = errors.New("export not found")
	// ErrStateConflict means the row was not in the expected state, usually
	// because another request moved it first.
	ErrStateConflict = errors.New("export state changed concurrently")
)

// ExportRepository is the form export ledger.
type ExportRepository struct {
	pool *pgxpool.Pool
}

func NewExportRepository(pool *pgxpool.Pool) *ExportRepository {
	return &ExportRepository{pool: pool}
}

// Create inserts a new export in its initial state.
func (r *ExportRepository) Create(ctx context.Context, e *model.FormExport) error {
	doc, err := json.Marshal(e.Document)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO form_exports (id, state, title, document)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		e.ID, e.State, e.Title, doc,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *ExportRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.FormExport, error) {
	e := &model.FormExport{}
	var doc []byte
	var formID, formURL, errMsg *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, state, title, document, form_id, form_url, error, created_at, updated_at
		 FROM form_exports WHERE id = $1`, id,
	).Scan(&e.ID, &e.State, &e.Title, &doc, &formID, &formURL, &errMsg, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, &e.Document); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	e.FormID = deref(formID)
	e.FormURL = deref(formURL)
	e.Error = deref(errMsg)
	return e, nil
}

// Transition moves an export from one state to the next. errMsg is stored
// when entering FAILED and cleared otherwise.
func (r *ExportRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.ExportState, errMsg string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE form_exports
		 SET state = $3, error = NULLIF($4, ''), updated_at = NOW()
		 WHERE id = $1 AND state = $2`,
		id, from, to, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetForm records the created form. form_url stays empty until the form is
// populated.
func (r *ExportRepository) SetForm(ctx context.Context, id uuid.UUID, formID, formURL string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE form_exports
		 SET form_id = $2, form_url = NULLIF($3, ''), updated_at = NOW()
		 WHERE id = $1`,
		id, formID, formURL)
	return err
}

// ListStale returns exports still in flight that have not moved since before.
func (r *ExportRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.FormExport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, state, updated_at
		 FROM form_exports
		 WHERE state NOT IN ('DONE', 'FAILED') AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []*model.FormExport
	for rows.Next() {
		e := &model.FormExport{}
		if err := rows.Scan(&e.ID, &e.State, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
