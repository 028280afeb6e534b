package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kamilpajak/nourish/pkg/models"
)

// SaveQuestions replaces the session's questions.
func (db *DB) SaveQuestions(ctx context.Context, sessionID uuid.UUID, items []string) (*models.Questions, error) {
	q := models.Questions{SessionID: sessionID}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO questions (session_id, items) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET items = EXCLUDED.items, created_at = NOW()
		 RETURNING items, created_at`,
		sessionID, items,
	).Scan(&q.Items, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestions returns the session's questions, or nil if none were generated.
func (db *DB) GetQuestions(ctx context.Context, sessionID uuid.UUID) (*models.Questions, error) {
	q := models.Questions{SessionID: sessionID}
	err := db.pool.QueryRow(ctx,
		`SELECT items, created_at FROM questions WHERE session_id = $1`,
		sessionID,
	).Scan(&q.Items, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// SaveAnswers replaces the session's parent answers.
func (db *DB) SaveAnswers(ctx context.Context, sessionID uuid.UUID, text string) (*models.Answers, error) {
	a := models.Answers{SessionID: sessionID}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO answers (session_id, text) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET text = EXCLUDED.text, created_at = NOW()
		 RETURNING text, created_at`,
		sessionID, text,
	).Scan(&a.Text, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnswers returns the session's answers, or nil if none were recorded.
func (db *DB) GetAnswers(ctx context.Context, sessionID uuid.UUID) (*models.Answers, error) {
	a := models.Answers{SessionID: sessionID}
	err := db.pool.QueryRow(ctx,
		`SELECT text, created_at FROM answers WHERE session_id = $1`,
		sessionID,
	).Scan(&a.Text, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const recommendationColumns = `tests_markdown, rules_yaml, rule_based, created_at`

func scanRecommendation(row pgx.Row, sessionID uuid.UUID) (*models.Recommendation, error) {
	r := models.Recommendation{SessionID: sessionID}
	err := row.Scan(&r.TestsMarkdown, &r.RulesYAML, &r.RuleBased, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveRecommendation replaces the session's test recommendation.
func (db *DB) SaveRecommendation(ctx context.Context, rec models.Recommendation) (*models.Recommendation, error) {
	ruleBased := rec.RuleBased
	if ruleBased == nil {
		ruleBased = []string{}
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO recommendations (session_id, tests_markdown, rules_yaml, rule_based)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET
		   tests_markdown = EXCLUDED.tests_markdown,
		   rules_yaml = EXCLUDED.rules_yaml,
		   rule_based = EXCLUDED.rule_based,
		   created_at = NOW()
		 RETURNING `+recommendationColumns,
		rec.SessionID, rec.TestsMarkdown, rec.RulesYAML, ruleBased,
	)
	return scanRecommendation(row, rec.SessionID)
}

// GetRecommendation returns the session's recommendation, or nil if none exists.
func (db *DB) GetRecommendation(ctx context.Context, sessionID uuid.UUID) (*models.Recommendation, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE session_id = $1`,
		sessionID,
	)
	return scanRecommendation(row, sessionID)
}

// SavePlan replaces the session's plan.
func (db *DB) SavePlan(ctx context.Context, sessionID uuid.UUID, markdown string) (*models.Plan, error) {
	p := models.Plan{SessionID: sessionID}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO plans (session_id, markdown) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET markdown = EXCLUDED.markdown, created_at = NOW()
		 RETURNING markdown, created_at`,
		sessionID, markdown,
	).Scan(&p.Markdown, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlan returns the session's plan, or nil if none was generated.
func (db *DB) GetPlan(ctx context.Context, sessionID uuid.UUID) (*models.Plan, error) {
	p := models.Plan{SessionID: sessionID}
	err := db.pool.QueryRow(ctx,
		`SELECT markdown, created_at FROM plans WHERE session_id = $1`,
		sessionID,
	).Scan(&p.Markdown, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
