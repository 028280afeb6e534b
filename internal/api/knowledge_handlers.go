package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kamilpajak/nourish/internal/docparse"
	"github.com/kamilpajak/nourish/internal/knowledge"
	"github.com/kamilpajak/nourish/pkg/models"
)

func (s *Server) requireKnowledge(w http.ResponseWriter) bool {
	if s.kb == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge bank not configured")
		return false
	}
	return true
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	if !s.requireKnowledge(w) {
		return
	}
	docs, err := s.kb.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleAddKnowledge adds every uploaded "file" part as a document. Files
// with no extractable text are skipped.
func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	if !s.requireKnowledge(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}

	added := []models.KnowledgeDocument{}
	var skipped []string
	chunks := 0
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}

		text, err := docparse.ExtractBytes(fh.Filename, data)
		if err != nil {
			if errors.Is(err, docparse.ErrUnsupported) {
				writeError(w, http.StatusUnsupportedMediaType, err.Error())
				return
			}
			skipped = append(skipped, fh.Filename)
			continue
		}

		doc, err := s.kb.AddDocument(r.Context(), fh.Filename, text)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to store document")
			return
		}
		if doc == nil {
			skipped = append(skipped, fh.Filename)
			continue
		}
		added = append(added, *doc)
		chunks += doc.Chunks
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"documents": added,
		"chunks":    chunks,
		"skipped":   skipped,
	})
}

func (s *Server) handleBuildIndex(w http.ResponseWriter, r *http.Request) {
	if !s.requireKnowledge(w) {
		return
	}

	embedded, remaining, err := s.kb.BuildIndex(r.Context(), knowledge.IndexBatch)
	if errors.Is(err, knowledge.ErrNoEmbedder) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("Knowledge index build failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     err.Error(),
			"embedded":  embedded,
			"remaining": remaining,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"embedded": embedded, "remaining": remaining})
}

func (s *Server) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	if !s.requireKnowledge(w) {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	k := knowledge.DefaultTopK
	if v := r.URL.Query().Get("k"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 20 {
			k = parsed
		}
	}

	excerpts, err := s.kb.Retrieve(r.Context(), query, k)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"excerpts": excerpts})
}
