package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/internal/consult"
	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/kamilpajak/nourish/pkg/prompts"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// parseSessionID parses the session ID from the path parameter.
func parseSessionID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("sessionID"))
}

// requireSession loads the session named in the path, writing the error
// response itself when it cannot.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return nil, false
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.log.WithError(err).WithField("session_id", id).Error("Failed to load session")
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

// parsePagination extracts limit and offset from query parameters with defaults.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}

// errorStatus maps service errors onto HTTP status codes.
// writeServiceError writes err with the status from errorStatus. Unmapped
// failures are logged and reported without their text, which may carry
// driver or browser internals.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Unhandled service error")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, consult.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, prompts.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, consult.ErrNoContext):
		return http.StatusConflict
	case errors.Is(err, consult.ErrNoModel),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, consult.ErrEmptyReply):
		return http.StatusBadGateway
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
