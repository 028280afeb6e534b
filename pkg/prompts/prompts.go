// Package prompts builds the instruction text sent to the language model at
// each generation step of a consultation.
package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// Tone is prepended to every user prompt.
const Tone = "British English. Neuro-affirmative. Avoid pathologising language. Be concise and clear."

// System messages per generation step.
const (
	QuestionSystem = "You are a neuro-affirmative paediatric nutrition consultant."
	TestSystem     = "You are a careful paediatric nutrition consultant. Only recommend from the approved list."
	PlanSystem     = "You write concise, British English, neuro-affirmative care plans for Indian families."
)

// Sampling temperatures per generation step.
const (
	QuestionTemperature float32 = 0.2
	TestTemperature     float32 = 0.1
	PlanTemperature     float32 = 0.2
)

// QuestionTopics is the checklist the question prompt asks the model to cover.
var QuestionTopics = []string{
	"Current diet & feeding patterns (textures, preferences, routines)",
	"GI symptoms (constipation/diarrhoea, reflux, bloating)",
	"Sleep, energy, attention regulation",
	"Growth concerns (height/weight trajectory, appetite changes)",
	"Micronutrient risk factors (iron, B12, vitamin D, folate, zinc, magnesium)",
	"Medication/supplement history (include ADHD meds)",
	"Cultural/Indian food context & feasibility",
}

// TestTiers are the priority groups the test prompt asks for.
var TestTiers = []string{
	"Tier 1: Baseline for most children",
	"Tier 2: Based on symptoms/risks",
	"Tier 3: Consider if flagged by history or prior labs",
}

// PlanSections are the required sections of the care plan, in order.
var PlanSections = []string{
	"Snapshot (what we know in one paragraph)",
	"Food plan (typical Indian staples; textures, routines; 1-week sample)",
	"Micronutrient focus (iron, vitamin D, B12, folate, zinc, magnesium): foods + simple swaps",
	"Supplement plan (only if indicated by labs/history). Specify dose ranges by weight band, timing with meals, and safety notes. Avoid brand names.",
	"Sleep & GI hygiene (simple habits)",
	"Follow-up markers (what to monitor; when to repeat labs)",
	"Plain-English parent handover (bullet points)",
}

// SafetyDisclaimer must appear in every plan prompt.
const SafetyDisclaimer = "Include a clear safety disclaimer: the plan supports clinical decision-making and should be reviewed by the child's clinician."

// BuildQuestionPrompt asks for 10–15 clarifying questions for parents.
// Empty inputs are embedded as empty sections.
func BuildQuestionPrompt(summary, goldExcerpts string) string {
	var sb strings.Builder

	sb.WriteString(Tone + "\n")
	sb.WriteString("You are preparing for a paediatric nutrition consultation for a child with developmental needs (including autism/ADHD).\n")
	sb.WriteString("Given the psychometric summary (and, if helpful, similar gold-standard cases), generate 10–15 clarifying questions for parents.\n")
	sb.WriteString("Keep questions specific, non-judgemental, and easy to answer. Focus on:\n")
	for _, topic := range QuestionTopics {
		sb.WriteString("- " + topic + "\n")
	}
	fmt.Fprintf(&sb, "\nPsychometric summary:\n\n%s\n", summary)
	fmt.Fprintf(&sb, "\nSimilar gold-standard excerpts:\n\n%s\n", goldExcerpts)
	sb.WriteString("\nOutput: a numbered list (10–15) in British English.\n")

	return sb.String()
}

// BuildTestPrompt asks for a tiered test recommendation restricted to the
// approved list, which is passed in as YAML.
func BuildTestPrompt(summary, answers, approvedYAML string) string {
	var sb strings.Builder

	sb.WriteString(Tone + "\n")
	sb.WriteString("Recommend blood/biochemical tests strictly from the approved list below. Use the parent answers and psychometric context.\n")
	sb.WriteString("Group tests by priority:\n")
	for _, tier := range TestTiers {
		sb.WriteString("- " + tier + "\n")
	}
	fmt.Fprintf(&sb, "\nApproved list (do not invent new tests):\n%s\n", approvedYAML)
	fmt.Fprintf(&sb, "\nPsychometric summary:\n%s\n", summary)
	fmt.Fprintf(&sb, "\nParent answers:\n%s\n", answers)
	sb.WriteString("\nOutput: Markdown with bullet lists, each test with a one-line rationale in plain language.\n")

	return sb.String()
}

// BuildPlanPrompt asks for a seven-section care plan.
func BuildPlanPrompt(summary, answers, labs, testsMarkdown string) string {
	var sb strings.Builder

	sb.WriteString(Tone + "\n")
	sb.WriteString("Create a concise care plan for a child in India. Use culturally relevant foods. Keep it practical for families.\n")
	sb.WriteString("Sections required:\n")
	for i, section := range PlanSections {
		fmt.Fprintf(&sb, "%d) %s\n", i+1, section)
	}
	fmt.Fprintf(&sb, "\nPsychometric summary:\n%s\n", summary)
	fmt.Fprintf(&sb, "\nParent answers:\n%s\n", answers)
	fmt.Fprintf(&sb, "\nKey lab excerpts (raw OCR allowed):\n%s\n", labs)
	fmt.Fprintf(&sb, "\nTests requested earlier:\n%s\n", testsMarkdown)
	sb.WriteString("\nConstraints:\n")
	sb.WriteString("- British English; neuro-affirmative; non-judgemental.\n")
	sb.WriteString("- Short sentences. No medical jargon unless explained in brackets.\n")
	sb.WriteString("- " + SafetyDisclaimer + "\n")

	return sb.String()
}

// Kind identifies a generation step.
type Kind string

const (
	KindQuestions Kind = "questions"
	KindTests     Kind = "tests"
	KindPlan      Kind = "plan"
)

// ErrUnknownKind is returned for a step name outside questions, tests and plan.
var ErrUnknownKind = errors.New("unknown prompt kind")

// ParseKind validates a step name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindQuestions, KindTests, KindPlan:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Request carries the inputs of one generation step. Fields a step does not
// use are ignored.
type Request struct {
	Kind          Kind
	Summary       string
	GoldExcerpts  string
	Answers       string
	ApprovedYAML  string
	Labs          string
	TestsMarkdown string
}

// Prompt is a fully assembled model input. It can only be obtained from
// Build, so every model call goes through the templates above.
type Prompt struct {
	kind        Kind
	system      string
	user        string
	temperature float32
}

// Kind returns the step the prompt was built for.
func (p Prompt) Kind() Kind { return p.kind }

// System returns the system message.
func (p Prompt) System() string { return p.system }

// User returns the user message.
func (p Prompt) User() string { return p.user }

// Temperature returns the sampling temperature for the step.
func (p Prompt) Temperature() float32 { return p.temperature }

// IsZero reports whether p was not produced by Build.
func (p Prompt) IsZero() bool { return p.kind == "" }

// Build assembles the prompt for req.Kind.
func Build(req Request) (Prompt, error) {
	switch req.Kind {
	case KindQuestions:
		return Prompt{
			kind:        KindQuestions,
			system:      QuestionSystem,
			user:        BuildQuestionPrompt(req.Summary, req.GoldExcerpts),
			temperature: QuestionTemperature,
		}, nil
	case KindTests:
		return Prompt{
			kind:        KindTests,
			system:      TestSystem,
			user:        BuildTestPrompt(req.Summary, req.Answers, req.ApprovedYAML),
			temperature: TestTemperature,
		}, nil
	case KindPlan:
		return Prompt{
			kind:        KindPlan,
			system:      PlanSystem,
			user:        BuildPlanPrompt(req.Summary, req.Answers, req.Labs, req.TestsMarkdown),
			temperature: PlanTemperature,
		}, nil
	}
	return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
}

// MaxQuestions caps the list returned by ParseQuestions.
const MaxQuestions = 15

// ParseQuestions splits a model reply into individual questions. List
// markers and numbering are stripped and blank lines skipped.
func ParseQuestions(reply string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		q := stripMarker(line)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == MaxQuestions {
			break
		}
	}
	return out
}

func stripMarker(line string) string {
	line = strings.TrimLeft(line, "-•* \t")
	line = strings.TrimRight(line, "-• \t\r")
	// "1." / "12)" numbering
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	// A decimal such as "2.5 hours" is not numbering.
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') &&
		(i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t') {
		line = strings.TrimSpace(line[i+1:])
	}
	return line
}
