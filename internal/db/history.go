package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/quick-resume/internal/types"
)

const requestColumns = `id, employer, role_title, state, source_text, document, base_name,
	document_path, error_message, elapsed_ms, created_at, updated_at`

// RecordRequest inserts or updates the record for a request id.
func (db *DB) RecordRequest(ctx context.Context, rec *RequestRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid request id %q: %w", rec.ID, err)
	}

	document, err := encodeDocument(rec.Document)
	if err != nil {
		return err
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO capture_requests (id, employer, role_title, state, source_text, document,
		     base_name, document_path, error_message, elapsed_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		     employer = COALESCE(NULLIF(EXCLUDED.employer, ''), capture_requests.employer),
		     role_title = COALESCE(NULLIF(EXCLUDED.role_title, ''), capture_requests.role_title),
		     state = EXCLUDED.state,
		     document = COALESCE(EXCLUDED.document, capture_requests.document),
		     base_name = EXCLUDED.base_name,
		     document_path = EXCLUDED.document_path,
		     error_message = EXCLUDED.error_message,
		     elapsed_ms = GREATEST(EXCLUDED.elapsed_ms, capture_requests.elapsed_ms),
		     updated_at = NOW()`,
		id, rec.Employer, rec.RoleTitle, rec.State, rec.SourceText, document,
		rec.BaseName, rec.DocumentPath, rec.ErrorMessage, rec.ElapsedMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request record by id. Returns nil when not found.
func (db *DB) GetRequest(ctx context.Context, id string) (*RequestRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", id, err)
	}

	row := db.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM capture_requests WHERE id = $1`, parsed)
	rec, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return rec, nil
}

// ListRequests retrieves request records, newest first, with optional filters.
func (db *DB) ListRequests(ctx context.Context, filters RequestFilters) ([]RequestRecord, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}

	query := `SELECT ` + requestColumns + ` FROM capture_requests WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Employer != "" {
		query += fmt.Sprintf(" AND employer = $%d", argNum)
		args = append(args, filters.Employer)
		argNum++
	}
	if filters.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argNum)
		args = append(args, filters.State)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var records []RequestRecord
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ExportedEmployers returns the distinct employers with at least one export.
func (db *DB) ExportedEmployers(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT employer FROM capture_requests
		 WHERE state = 'exported' AND employer <> '' ORDER BY employer`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employers: %w", err)
	}
	defer rows.Close()

	var employers []string
	for rows.Next() {
		var employer string
		if err := rows.Scan(&employer); err != nil {
			return nil, fmt.Errorf("failed to scan employer: %w", err)
		}
		employers = append(employers, employer)
	}
	return employers, rows.Err()
}

func encodeDocument(doc *types.GeneratedDocument) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

func scanRequest(row pgx.Row) (*RequestRecord, error) {
	var rec RequestRecord
	var id uuid.UUID
	var document []byte

	err := row.Scan(&id, &rec.Employer, &rec.RoleTitle, &rec.State, &rec.SourceText, &document,
		&rec.BaseName, &rec.DocumentPath, &rec.ErrorMessage, &rec.ElapsedMS, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.ID = id.String()
	if len(document) > 0 {
		var doc types.GeneratedDocument
		if err := json.Unmarshal(document, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
		rec.Document = &doc
	}
	return &rec, nil
}
