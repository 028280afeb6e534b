package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/pkg/models"
)

// SaveQuestions replaces the session's questions.
func (s *Store) SaveQuestions(ctx context.Context, sessionID uuid.UUID, items []string) (*models.Questions, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	q := &models.Questions{SessionID: sessionID, Items: items, CreatedAt: time.Now().UTC()}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (session_id, items, created_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET items = excluded.items, created_at = excluded.created_at`,
		sessionID.String(), string(payload), q.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save questions: %w", err)
	}
	return q, nil
}

// GetQuestions returns the session's questions, or nil if none were generated.
func (s *Store) GetQuestions(ctx context.Context, sessionID uuid.UUID) (*models.Questions, error) {
	q := &models.Questions{SessionID: sessionID}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT items, created_at FROM questions WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&payload, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &q.Items); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return q, nil
}

// SaveAnswers replaces the session's parent answers.
func (s *Store) SaveAnswers(ctx context.Context, sessionID uuid.UUID, text string) (*models.Answers, error) {
	a := &models.Answers{SessionID: sessionID, Text: text, CreatedAt: time.Now().UTC()}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (session_id, text, created_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET text = excluded.text, created_at = excluded.created_at`,
		sessionID.String(), text, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save answers: %w", err)
	}
	return a, nil
}

// GetAnswers returns the session's answers, or nil if none were recorded.
func (s *Store) GetAnswers(ctx context.Context, sessionID uuid.UUID) (*models.Answers, error) {
	a := &models.Answers{SessionID: sessionID}
	err := s.db.QueryRowContext(ctx,
		`SELECT text, created_at FROM answers WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&a.Text, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SaveRecommendation replaces the session's test recommendation.
func (s *Store) SaveRecommendation(ctx context.Context, rec models.Recommendation) (*models.Recommendation, error) {
	ruleBased, err := json.Marshal(rec.RuleBased)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recommendations (session_id, tests_markdown, rules_yaml, rule_based, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			tests_markdown = excluded.tests_markdown,
			rules_yaml = excluded.rules_yaml,
			rule_based = excluded.rule_based,
			created_at = excluded.created_at`,
		rec.SessionID.String(), rec.TestsMarkdown, rec.RulesYAML, string(ruleBased), rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save recommendation: %w", err)
	}
	return &rec, nil
}

// GetRecommendation returns the session's recommendation, or nil if none exists.
func (s *Store) GetRecommendation(ctx context.Context, sessionID uuid.UUID) (*models.Recommendation, error) {
	rec := &models.Recommendation{SessionID: sessionID}
	var ruleBased string
	err := s.db.QueryRowContext(ctx,
		`SELECT tests_markdown, rules_yaml, rule_based, created_at FROM recommendations WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&rec.TestsMarkdown, &rec.RulesYAML, &ruleBased, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ruleBased), &rec.RuleBased); err != nil {
		return nil, fmt.Errorf("failed to decode rule-based tests: %w", err)
	}
	return rec, nil
}

// SavePlan replaces the session's plan.
func (s *Store) SavePlan(ctx context.Context, sessionID uuid.UUID, markdown string) (*models.Plan, error) {
	p := &models.Plan{SessionID: sessionID, Markdown: markdown, CreatedAt: time.Now().UTC()}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (session_id, markdown, created_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET markdown = excluded.markdown, created_at = excluded.created_at`,
		sessionID.String(), markdown, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}
	return p, nil
}

// GetPlan returns the session's plan, or nil if none was generated.
func (s *Store) GetPlan(ctx context.Context, sessionID uuid.UUID) (*models.Plan, error) {
	p := &models.Plan{SessionID: sessionID}
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown, created_at FROM plans WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&p.Markdown, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
