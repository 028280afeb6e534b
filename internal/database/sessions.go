package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kamilpajak/nourish/pkg/models"
)

// sessionColumns is the standard column list for session queries.
const sessionColumns = `id, child_name, date_of_birth, consultant, created_at`

// scanSession scans a row into a Session. A missing row yields (nil, nil).
func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.ChildName, &s.DateOfBirth, &s.Consultant, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession creates a new consultation session.
func (db *DB) CreateSession(ctx context.Context, params models.NewSessionParams) (*models.Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO sessions (child_name, date_of_birth, consultant)
		 VALUES ($1, $2, $3)
		 RETURNING `+sessionColumns,
		params.ChildName, params.DateOfBirth, params.Consultant,
	)
	return scanSession(row)
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`,
		id,
	)
	return scanSession(row)
}

// ListSessions returns sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, limit, offset int) ([]models.Session, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 ORDER BY created_at DESC, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

const artifactColumns = `id, session_id, kind, filename, content, created_at`

func scanArtifact(row pgx.Row) (*models.Artifact, error) {
	var a models.Artifact
	var kind string
	if err := row.Scan(&a.ID, &a.SessionID, &kind, &a.Filename, &a.Content, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Kind = models.ArtifactKind(kind)
	return &a, nil
}

// AddArtifact stores the extracted text of an uploaded report.
func (db *DB) AddArtifact(ctx context.Context, sessionID uuid.UUID, kind models.ArtifactKind, filename, content string) (*models.Artifact, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO artifacts (session_id, kind, filename, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+artifactColumns,
		sessionID, string(kind), filename, content,
	)
	a, err := scanArtifact(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns a session's artifacts in upload order. An empty
// kind lists every kind.
func (db *DB) ListArtifacts(ctx context.Context, sessionID uuid.UUID, kind models.ArtifactKind) ([]models.Artifact, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE session_id = $1 AND ($2 = '' OR kind = $2)
		 ORDER BY id`,
		sessionID, string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := []models.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}
