package models

// Step is one stage of the consultation workflow, numbered from 1.
type Step int

const (
	StepChildDetails Step = iota + 1
	StepReports
	StepQuestions
	StepAnswers
	StepTests
	StepLabs
	StepPlan
)

var stepNames = map[Step]string{
	StepChildDetails: "Child details",
	StepReports:      "Assessment reports",
	StepQuestions:    "Consultation questions",
	StepAnswers:      "Parent answers",
	StepTests:        "Blood-test recommendations",
	StepLabs:         "Laboratory reports",
	StepPlan:         "Nutrition plan",
}

// Steps returns the workflow in order.
func Steps() []Step {
	return []Step{StepChildDetails, StepReports, StepQuestions, StepAnswers, StepTests, StepLabs, StepPlan}
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "Unknown"
}

// SessionState records which workflow outputs exist for a session.
type SessionState struct {
	Session   bool
	Reports   bool
	Questions bool
	Answers   bool
	Tests     bool
	Labs      bool
	Plan      bool
}

// Progress summarises how far a session has moved through the workflow.
type Progress struct {
	CurrentStep Step   `json:"current_step"`
	CurrentName string `json:"current_name"`
	Completed   []Step `json:"completed"`
	Percent     int    `json:"percent"`
}

// ComputeProgress derives progress from stored state. The current step is the
// first incomplete one; a fully completed session sits on the last step at 100%.
func ComputeProgress(state SessionState) Progress {
	done := map[Step]bool{
		StepChildDetails: state.Session,
		StepReports:      state.Reports,
		StepQuestions:    state.Questions,
		StepAnswers:      state.Answers,
		StepTests:        state.Tests,
		StepLabs:         state.Labs,
		StepPlan:         state.Plan,
	}

	steps := Steps()
	completed := []Step{}
	current := Step(0)
	for _, s := range steps {
		if done[s] {
			completed = append(completed, s)
		} else if current == 0 {
			current = s
		}
	}

	total := len(steps)
	percent := 100
	if current == 0 {
		current = StepPlan
	} else {
		percent = int(current-1) * 100 / (total - 1)
	}

	return Progress{
		CurrentStep: current,
		CurrentName: current.String(),
		Completed:   completed,
		Percent:     percent,
	}
}
