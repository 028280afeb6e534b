package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/pkg/models"
)

const sessionColumns = `id, child_name, date_of_birth, consultant, created_at`

func scanSession(s scanner) (*models.Session, error) {
	var sess models.Session
	var id string
	err := s.Scan(&id, &sess.ChildName, &sess.DateOfBirth, &sess.Consultant, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	return &sess, nil
}

// CreateSession stores a new session with a random ID.
func (s *Store) CreateSession(ctx context.Context, params models.NewSessionParams) (*models.Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	sess := &models.Session{
		ID:          uuid.New(),
		ChildName:   params.ChildName,
		DateOfBirth: params.DateOfBirth,
		Consultant:  params.Consultant,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.ChildName, sess.DateOfBirth, sess.Consultant, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`,
		id.String(),
	)
	return scanSession(row)
}

// ListSessions returns sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

const artifactColumns = `id, session_id, kind, filename, content, created_at`

func scanArtifact(s scanner) (*models.Artifact, error) {
	var a models.Artifact
	var sessionID, kind string
	if err := s.Scan(&a.ID, &sessionID, &kind, &a.Filename, &a.Content, &a.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.SessionID, err = uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	a.Kind = models.ArtifactKind(kind)
	return &a, nil
}

// AddArtifact stores the extracted text of an uploaded report.
func (s *Store) AddArtifact(ctx context.Context, sessionID uuid.UUID, kind models.ArtifactKind, filename, content string) (*models.Artifact, error) {
	a := &models.Artifact{
		SessionID: sessionID,
		Kind:      kind,
		Filename:  filename,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (session_id, kind, filename, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID.String(), string(kind), filename, content, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert artifact: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read artifact id: %w", err)
	}
	return a, nil
}

// ListArtifacts returns a session's artifacts in upload order.
func (s *Store) ListArtifacts(ctx context.Context, sessionID uuid.UUID, kind models.ArtifactKind) ([]models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE session_id = ?`
	args := []any{sessionID.String()}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
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
