package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kamilpajak/nourish/internal/auth"
	"github.com/kamilpajak/nourish/internal/docparse"
	"github.com/kamilpajak/nourish/pkg/models"
)

// handleCreateSession creates a session. The consultant defaults to the
// authenticated user's name or email.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var params models.NewSessionParams
	if err := readJSON(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params.ChildName = strings.TrimSpace(params.ChildName)
	if params.Consultant == "" {
		params.Consultant = auth.Consultant(r.Context())
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.store.CreateSession(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	sessions, err := s.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	progress, err := s.service.Progress(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleUploadArtifact stores the text of an uploaded psychometric or lab report.
func (s *Server) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	kind, err := models.ParseArtifactKind(r.FormValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	text, err := docparse.ExtractBytes(header.Filename, data)
	if errors.Is(err, docparse.ErrUnsupported) {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusUnprocessableEntity, "no text could be extracted")
		return
	}

	artifact, err := s.store.AddArtifact(r.Context(), session.ID, kind, header.Filename, text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store artifact")
		return
	}
	writeJSON(w, http.StatusCreated, artifact)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var kind models.ArtifactKind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := models.ParseArtifactKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = parsed
	}

	artifacts, err := s.store.ListArtifacts(r.Context(), session.ID, kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

type answersRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req answersRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answers, err := s.store.SaveAnswers(r.Context(), session.ID, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save answers")
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (s *Server) handleGetAnswers(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	answers, err := s.store.GetAnswers(r.Context(), session.ID)
	if err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("Failed to load session output")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if answers == nil {
		writeError(w, http.StatusNotFound, "no answers recorded")
		return
	}
	writeJSON(w, http.StatusOK, answers)
}
