package consult

import (
	"strings"

	"github.com/kamilpajak/nourish/pkg/models"
)

// Context assembly limits, in characters.
const (
	QuestionContextLimit = 15000
	ContextLimit         = 8000
	LabLimit             = 10000

	recentReports = 3
	recentLabs    = 4
)

// AssembleContext joins the contents of the last n artifacts of kind with a
// blank line and truncates the result to limit characters.
func AssembleContext(artifacts []models.Artifact, kind models.ArtifactKind, n, limit int) string {
	var texts []string
	for _, a := range artifacts {
		if a.Kind == kind {
			texts = append(texts, a.Content)
		}
	}
	if len(texts) > n {
		texts = texts[len(texts)-n:]
	}
	return truncate(strings.Join(texts, "\n\n"), limit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
