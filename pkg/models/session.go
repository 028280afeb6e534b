// Package models defines the consultation records shared by the stores,
// the generation service and the API.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one child's consultation. Its ID is the child_id.
type Session struct {
	ID          uuid.UUID `json:"id"`
	ChildName   string    `json:"child_name"`
	DateOfBirth string    `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Consultant  string    `json:"consultant,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSessionParams contains parameters for creating a session.
type NewSessionParams struct {
	ChildName   string `json:"child_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Consultant  string `json:"consultant,omitempty"`
}

// Validate checks the child name and the date format.
func (p NewSessionParams) Validate() error {
	if p.ChildName == "" {
		return fmt.Errorf("child name is required")
	}
	if p.DateOfBirth != "" {
		if _, err := time.Parse(time.DateOnly, p.DateOfBirth); err != nil {
			return fmt.Errorf("date of birth must be YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

// ArtifactKind distinguishes uploaded documents.
type ArtifactKind string

const (
	KindPsychometric ArtifactKind = "psychometric"
	KindLabReport    ArtifactKind = "lab_report"
)

// ParseArtifactKind accepts "psychometric" and "lab_report" (or "lab").
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch s {
	case string(KindPsychometric):
		return KindPsychometric, nil
	case string(KindLabReport), "lab":
		return KindLabReport, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// Artifact is an uploaded report reduced to its extracted text.
type Artifact struct {
	ID        int64        `json:"id"`
	SessionID uuid.UUID    `json:"session_id"`
	Kind      ArtifactKind `json:"kind"`
	Filename  string       `json:"filename"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// Questions are the clarifying questions generated for parents.
type Questions struct {
	SessionID uuid.UUID `json:"session_id"`
	Items     []string  `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

// Answers holds the parents' replies as recorded by the consultant.
type Answers struct {
	SessionID uuid.UUID `json:"session_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Recommendation is the test recommendation for a session.
type Recommendation struct {
	SessionID     uuid.UUID `json:"session_id"`
	TestsMarkdown string    `json:"tests_markdown"`
	RulesYAML     string    `json:"rules_yaml"`
	RuleBased     []string  `json:"rule_based"`
	CreatedAt     time.Time `json:"created_at"`
}

// Plan is the generated nutrition plan.
type Plan struct {
	SessionID uuid.UUID `json:"session_id"`
	Markdown  string    `json:"markdown"`
	CreatedAt time.Time `json:"created_at"`
}
