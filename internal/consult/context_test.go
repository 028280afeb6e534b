package consult

import (
	"strings"
	"testing"

	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestAssembleContext(t *testing.T) {
	artifacts := []models.Artifact{
		{Kind: models.KindPsychometric, Content: "one"},
		{Kind: models.KindLabReport, Content: "lab"},
		{Kind: models.KindPsychometric, Content: "two"},
		{Kind: models.KindPsychometric, Content: "three"},
		{Kind: models.KindPsychometric, Content: "four"},
	}

	tests := []struct {
		name  string
		kind  models.ArtifactKind
		n     int
		limit int
		want  string
	}{
		{"last three reports", models.KindPsychometric, 3, 100, "two\n\nthree\n\nfour"},
		{"fewer than n", models.KindLabReport, 4, 100, "lab"},
		{"truncated", models.KindPsychometric, 3, 8, "two\n\nthr"},
		{"none of kind", models.ArtifactKind("other"), 3, 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssembleContext(artifacts, tt.kind, tt.n, tt.limit))
		})
	}
}

func TestAssembleContext_Empty(t *testing.T) {
	assert.Equal(t, "", AssembleContext(nil, models.KindPsychometric, 3, 100))
}

func TestTruncate_Runes(t *testing.T) {
	s := strings.Repeat("é", 10)
	assert.Equal(t, strings.Repeat("é", 4), truncate(s, 4))
	assert.Equal(t, s, truncate(s, 10))
	assert.Equal(t, "abc", truncate("abc", 5))
}
