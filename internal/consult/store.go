package consult

import (
	"context"

	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/pkg/models"
)

// Store persists consultation sessions and their step outputs.
//
// Getters return (nil, nil) when the record does not exist. Save methods
// replace the previous record for the session.
type Store interface {
	CreateSession(ctx context.Context, params models.NewSessionParams) (*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]models.Session, error)

	AddArtifact(ctx context.Context, sessionID uuid.UUID, kind models.ArtifactKind, filename, content string) (*models.Artifact, error)
	// ListArtifacts returns artifacts oldest first. An empty kind lists all kinds.
	ListArtifacts(ctx context.Context, sessionID uuid.UUID, kind models.ArtifactKind) ([]models.Artifact, error)

	SaveQuestions(ctx context.Context, sessionID uuid.UUID, items []string) (*models.Questions, error)
	GetQuestions(ctx context.Context, sessionID uuid.UUID) (*models.Questions, error)

	SaveAnswers(ctx context.Context, sessionID uuid.UUID, text string) (*models.Answers, error)
	GetAnswers(ctx context.Context, sessionID uuid.UUID) (*models.Answers, error)

	SaveRecommendation(ctx context.Context, rec models.Recommendation) (*models.Recommendation, error)
	GetRecommendation(ctx context.Context, sessionID uuid.UUID) (*models.Recommendation, error)

	SavePlan(ctx context.Context, sessionID uuid.UUID, markdown string) (*models.Plan, error)
	GetPlan(ctx context.Context, sessionID uuid.UUID) (*models.Plan, error)
}

// Retriever finds gold-standard excerpts similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (string, error)
}
