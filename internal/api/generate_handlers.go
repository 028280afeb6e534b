package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/internal/consult"
	"github.com/kamilpajak/nourish/internal/export"
	"github.com/kamilpajak/nourish/pkg/prompts"
	"github.com/kamilpajak/nourish/pkg/rules"
)

type recommendRequest struct {
	Context string `json:"context"`
	Answers string `json:"answers"`
}

// handleRecommend runs the rule engine on free text. It needs no session
// and calls no model. ?format=yaml returns the prompt payload.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := rules.Recommend(req.Context, req.Answers)
	if r.URL.Query().Get("format") == "yaml" {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(res.YAML()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// generate runs one generation step. With Accept: text/event-stream the
// response is a stream of progress events ending in "done" or "error";
// otherwise it is the stored record as JSON.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, step func(context.Context, *consult.Service, uuid.UUID) (any, error)) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	svc := s.service
	if wantsEventStream(r) {
		if emitter := NewSSEEmitter(w); emitter != nil {
			_, _ = step(r.Context(), svc.WithEmitter(emitter), id)
			return
		}
	}

	out, err := step(r.Context(), svc, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, func(ctx context.Context, svc *consult.Service, id uuid.UUID) (any, error) {
		return svc.GenerateQuestions(ctx, id)
	})
}

func (s *Server) handleRecommendTests(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, func(ctx context.Context, svc *consult.Service, id uuid.UUID) (any, error) {
		return svc.RecommendTests(ctx, id)
	})
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, func(ctx context.Context, svc *consult.Service, id uuid.UUID) (any, error) {
		return svc.GeneratePlan(ctx, id)
	})
}

func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	q, err := s.store.GetQuestions(r.Context(), session.ID)
	if err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("Failed to load session output")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "questions not generated")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleGetTests(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	rec, err := s.store.GetRecommendation(r.Context(), session.ID)
	if err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("Failed to load session output")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "tests not recommended")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	plan, err := s.store.GetPlan(r.Context(), session.ID)
	if err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("Failed to load session output")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "plan not generated")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// planDocument returns the export title and markdown for the session's plan.
func (s *Server) planDocument(w http.ResponseWriter, r *http.Request) (title, markdown string, ok bool) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return "", "", false
	}
	plan, err := s.store.GetPlan(r.Context(), session.ID)
	if err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("Failed to load session output")
		writeError(w, http.StatusInternalServerError, "database error")
		return "", "", false
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "plan not generated")
		return "", "", false
	}
	return fmt.Sprintf("Nutrition plan for %s", session.ChildName), plan.Markdown, true
}

func (s *Server) handlePlanHTML(w http.ResponseWriter, r *http.Request) {
	title, markdown, ok := s.planDocument(w, r)
	if !ok {
		return
	}
	html, err := export.HTML(title, markdown)
	if err != nil {
		s.log.WithError(err).Error("Failed to render plan HTML")
		writeError(w, http.StatusInternalServerError, "failed to render plan")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handlePlanPDF(w http.ResponseWriter, r *http.Request) {
	title, markdown, ok := s.planDocument(w, r)
	if !ok {
		return
	}
	pdf, err := export.PDF(r.Context(), title, markdown)
	if errors.Is(err, export.ErrBrowserUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("Failed to print plan PDF")
		writeError(w, http.StatusInternalServerError, "failed to render plan")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="plan.pdf"`)
	_, _ = w.Write(pdf)
}

type promptResponse struct {
	Kind        prompts.Kind `json:"kind"`
	System      string       `json:"system"`
	User        string       `json:"user"`
	Temperature float32      `json:"temperature"`
}

// handlePreviewPrompt returns the prompt a generation step would send,
// without calling the model.
func (s *Server) handlePreviewPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}
	kind, err := prompts.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.service.PreviewPrompt(r.Context(), id, kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{
		Kind:        p.Kind(),
		System:      p.System(),
		User:        p.User(),
		Temperature: p.Temperature(),
	})
}
