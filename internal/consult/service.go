// Package consult runs the generation steps of a consultation. Each step
// assembles the session's stored context, builds the step prompt, calls the
// language model and persists the result.
package consult

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/kamilpajak/nourish/pkg/prompts"
	"github.com/kamilpajak/nourish/pkg/rules"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionNotFound is returned when the session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoContext is returned when questions are requested before any
	// psychometric report was uploaded.
	ErrNoContext = errors.New("no psychometric report uploaded")
	// ErrNoModel is returned by generation steps when no LLM client is configured.
	ErrNoModel = errors.New("no language model configured")
	// ErrEmptyReply is returned when the model reply has no usable content.
	ErrEmptyReply = errors.New("model returned an empty reply")
)

const (
	// DefaultGoldTopK is the number of knowledge-bank excerpts added to the question prompt.
	DefaultGoldTopK = 3

	generationSteps = 3
)

// Config holds the service dependencies. Knowledge and LLM may be nil.
type Config struct {
	Store     Store
	LLM       llm.Client
	Knowledge Retriever
	Logger    *logrus.Logger
	GoldTopK  int
}

// Service generates questions, test recommendations and plans.
type Service struct {
	store    Store
	llm      llm.Client
	kb       Retriever
	emitter  llm.ProgressEmitter
	log      *logrus.Entry
	goldTopK int
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	topK := cfg.GoldTopK
	if topK <= 0 {
		topK = DefaultGoldTopK
	}
	return &Service{
		store:    cfg.Store,
		llm:      cfg.LLM,
		kb:       cfg.Knowledge,
		log:      logger.WithField("component", "consult"),
		goldTopK: topK,
	}
}

// WithEmitter returns a copy of s that reports progress to e.
func (s *Service) WithEmitter(e llm.ProgressEmitter) *Service {
	c := *s
	c.emitter = e
	return &c
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// inputs is everything stored for a session that a prompt may draw on.
type inputs struct {
	session   *models.Session
	artifacts []models.Artifact
	answers   string
	tests     string
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*inputs, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	artifacts, err := s.store.ListArtifacts(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	in := &inputs{session: session, artifacts: artifacts}

	answers, err := s.store.GetAnswers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	if answers != nil {
		in.answers = answers.Text
	}

	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendation: %w", err)
	}
	if rec != nil {
		in.tests = rec.TestsMarkdown
	}

	return in, nil
}

// request assembles the prompt inputs for kind. The rule result is returned
// for the tests step so it can be stored alongside the reply.
func (s *Service) request(ctx context.Context, in *inputs, kind prompts.Kind) (prompts.Request, *rules.Result, error) {
	req := prompts.Request{Kind: kind, Answers: in.answers}

	switch kind {
	case prompts.KindQuestions:
		req.Summary = AssembleContext(in.artifacts, models.KindPsychometric, recentReports, QuestionContextLimit)
		if req.Summary == "" {
			return req, nil, ErrNoContext
		}
		req.GoldExcerpts = s.goldExcerpts(ctx, req.Summary)
		return req, nil, nil

	case prompts.KindTests:
		req.Summary = AssembleContext(in.artifacts, models.KindPsychometric, recentReports, ContextLimit)
		res := rules.Recommend(req.Summary, in.answers)
		req.ApprovedYAML = res.YAML()
		if len(res.Dropped) > 0 {
			s.log.WithFields(logrus.Fields{
				"session": in.session.ID,
				"dropped": res.Dropped,
			}).Debug("Rule outputs outside the approved list were dropped")
		}
		return req, &res, nil

	case prompts.KindPlan:
		req.Summary = AssembleContext(in.artifacts, models.KindPsychometric, recentReports, ContextLimit)
		req.Labs = AssembleContext(in.artifacts, models.KindLabReport, recentLabs, LabLimit)
		req.TestsMarkdown = in.tests
		return req, nil, nil
	}

	return req, nil, fmt.Errorf("%w: %q", prompts.ErrUnknownKind, kind)
}

// goldExcerpts never fails the step: retrieval problems are logged and the
// prompt goes out without excerpts.
func (s *Service) goldExcerpts(ctx context.Context, query string) string {
	if s.kb == nil {
		return ""
	}
	excerpts, err := s.kb.Retrieve(ctx, query, s.goldTopK)
	if err != nil {
		s.log.WithError(err).Warn("Knowledge bank retrieval failed")
		return ""
	}
	return excerpts
}

func (s *Service) prepare(ctx context.Context, id uuid.UUID, kind prompts.Kind) (prompts.Prompt, *rules.Result, error) {
	s.emit(llm.ProgressEvent{Type: "step", Step: 1, MaxStep: generationSteps, Kind: string(kind), Message: "Assembling session context"})

	in, err := s.load(ctx, id)
	if err != nil {
		return prompts.Prompt{}, nil, err
	}

	req, res, err := s.request(ctx, in, kind)
	if err != nil {
		return prompts.Prompt{}, nil, err
	}

	p, err := prompts.Build(req)
	if err != nil {
		return prompts.Prompt{}, nil, err
	}
	return p, res, nil
}

// PreviewPrompt builds the prompt for kind without calling the model.
func (s *Service) PreviewPrompt(ctx context.Context, id uuid.UUID, kind prompts.Kind) (prompts.Prompt, error) {
	p, _, err := s.prepare(ctx, id, kind)
	return p, err
}

// GenerateQuestions creates up to 15 clarifying questions from the latest
// psychometric reports and stores them.
func (s *Service) GenerateQuestions(ctx context.Context, id uuid.UUID) (*models.Questions, error) {
	q, err := s.generateQuestions(ctx, id)
	if err != nil {
		return nil, s.fail(prompts.KindQuestions, err)
	}
	s.done(prompts.KindQuestions, q)
	return q, nil
}

func (s *Service) generateQuestions(ctx context.Context, id uuid.UUID) (*models.Questions, error) {
	p, _, err := s.prepare(ctx, id, prompts.KindQuestions)
	if err != nil {
		return nil, err
	}

	reply, err := s.complete(ctx, p)
	if err != nil {
		return nil, err
	}

	items := prompts.ParseQuestions(reply)
	if len(items) == 0 {
		return nil, ErrEmptyReply
	}

	q, err := s.store.SaveQuestions(ctx, id, items)
	if err != nil {
		return nil, fmt.Errorf("failed to save questions: %w", err)
	}
	return q, nil
}

// RecommendTests runs the rule engine, asks the model for a tiered
// recommendation restricted to the approved list, and stores both.
func (s *Service) RecommendTests(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	rec, err := s.recommendTests(ctx, id)
	if err != nil {
		return nil, s.fail(prompts.KindTests, err)
	}
	s.done(prompts.KindTests, rec)
	return rec, nil
}

func (s *Service) recommendTests(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	p, res, err := s.prepare(ctx, id, prompts.KindTests)
	if err != nil {
		return nil, err
	}

	reply, err := s.complete(ctx, p)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.SaveRecommendation(ctx, models.Recommendation{
		SessionID:     id,
		TestsMarkdown: reply,
		RulesYAML:     res.YAML(),
		RuleBased:     res.RuleBased,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save recommendation: %w", err)
	}
	return rec, nil
}

// GeneratePlan writes the nutrition plan from reports, answers, labs and the
// earlier test recommendation.
func (s *Service) GeneratePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.generatePlan(ctx, id)
	if err != nil {
		return nil, s.fail(prompts.KindPlan, err)
	}
	s.done(prompts.KindPlan, plan)
	return plan, nil
}

func (s *Service) generatePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p, _, err := s.prepare(ctx, id, prompts.KindPlan)
	if err != nil {
		return nil, err
	}

	reply, err := s.complete(ctx, p)
	if err != nil {
		return nil, err
	}

	plan, err := s.store.SavePlan(ctx, id, reply)
	if err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}
	return plan, nil
}

// Progress reports the session's position in the workflow.
func (s *Service) Progress(ctx context.Context, id uuid.UUID) (*models.Progress, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	state := models.SessionState{Session: true}

	artifacts, err := s.store.ListArtifacts(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	for _, a := range artifacts {
		switch a.Kind {
		case models.KindPsychometric:
			state.Reports = true
		case models.KindLabReport:
			state.Labs = true
		}
	}

	q, err := s.store.GetQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	state.Questions = q != nil
	state.Answers = a != nil && a.Text != ""
	state.Tests = r != nil
	state.Plan = p != nil

	progress := models.ComputeProgress(state)
	return &progress, nil
}

func (s *Service) complete(ctx context.Context, p prompts.Prompt) (string, error) {
	if s.llm == nil {
		return "", ErrNoModel
	}

	s.emit(llm.ProgressEvent{
		Type:    "step",
		Step:    2,
		MaxStep: generationSteps,
		Kind:    string(p.Kind()),
		Message: fmt.Sprintf("Calling %s (%s)", s.llm.Provider(), s.llm.Model()),
	})

	start := time.Now()
	resp, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: p.System()},
		{Role: llm.RoleUser, Content: p.User()},
	}, llm.Options{Temperature: p.Temperature()})
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"kind":     p.Kind(),
		"provider": s.llm.Provider(),
		"model":    s.llm.Model(),
		"duration": elapsed.Round(time.Millisecond).String(),
	}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Error("Generation failed")
		return "", fmt.Errorf("%s generation failed: %w", p.Kind(), err)
	}

	fields["input_tokens"] = resp.InputTokens
	fields["output_tokens"] = resp.OutputTokens
	if resp.Truncated {
		s.log.WithFields(fields).Warn("Reply hit the token limit and may be cut short")
	}
	s.log.WithFields(fields).Info("Generation complete")

	s.emit(llm.ProgressEvent{
		Type:    "stats",
		Step:    3,
		MaxStep: generationSteps,
		Kind:    string(p.Kind()),
		ModelMs: int(elapsed.Milliseconds()),
		Tokens:  resp.InputTokens + resp.OutputTokens,
		Chars:   len(resp.Content),
	})

	if strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	return resp.Content, nil
}

func (s *Service) emit(ev llm.ProgressEvent) {
	llm.Emit(s.emitter, ev)
}

func (s *Service) fail(kind prompts.Kind, err error) error {
	s.emit(llm.ProgressEvent{Type: "error", Kind: string(kind), Message: err.Error()})
	return err
}

func (s *Service) done(kind prompts.Kind, output any) {
	s.emit(llm.ProgressEvent{Type: "done", Kind: string(kind), Output: output})
}
