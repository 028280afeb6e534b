package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/internal/consult"
	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/kamilpajak/nourish/pkg/prompts"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func (c *cli) generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <questions|tests|plan> <session-id>",
		Short: "Run a generation step with the language model",
		Long: `Generate the parent questions, the test recommendation or the nutrition plan
for a session and store the result. The result is printed as markdown.

Examples:
  nourish generate questions 6f1c...
  nourish generate plan 6f1c... --provider anthropic`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := prompts.ParseKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseSessionID(args[1])
			if err != nil {
				return err
			}

			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			emitter := c.progressEmitter()
			out, err := runStep(cmd.Context(), a.Service.WithEmitter(emitter), kind, id)
			emitter.Close()
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, renderOutput(out))
			return nil
		},
	}
	return cmd
}

func runStep(ctx context.Context, svc *consult.Service, kind prompts.Kind, id uuid.UUID) (any, error) {
	switch kind {
	case prompts.KindQuestions:
		return svc.GenerateQuestions(ctx, id)
	case prompts.KindTests:
		return svc.RecommendTests(ctx, id)
	default:
		return svc.GeneratePlan(ctx, id)
	}
}

// renderOutput formats a stored step result as markdown.
func renderOutput(out any) string {
	switch v := out.(type) {
	case *models.Questions:
		var b strings.Builder
		for i, q := range v.Items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		return strings.TrimRight(b.String(), "\n")
	case *models.Recommendation:
		return v.TestsMarkdown
	case *models.Plan:
		return v.Markdown
	}
	return fmt.Sprint(out)
}

// closingEmitter is a progress emitter that must be closed when the step ends.
type closingEmitter interface {
	llm.ProgressEmitter
	Close()
}

// progressEmitter shows a spinner on an interactive terminal and plain
// progress lines otherwise.
func (c *cli) progressEmitter() closingEmitter {
	if isTerminal(c.errOut) {
		return newSpinnerEmitter(c.errOut)
	}
	return &textEmitter{TextEmitter: llm.TextEmitter{W: c.errOut}}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type textEmitter struct {
	llm.TextEmitter
}

func (e *textEmitter) Close() {}

// spinnerEmitter animates while the model is working and prints a summary
// line when each step finishes.
type spinnerEmitter struct {
	w io.Writer
	s *spinner.Spinner
}

func newSpinnerEmitter(w io.Writer) *spinnerEmitter {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	return &spinnerEmitter{w: w, s: s}
}

func (e *spinnerEmitter) Emit(ev llm.ProgressEvent) {
	switch ev.Type {
	case "step":
		e.s.Lock()
		e.s.Suffix = " " + ev.Message
		e.s.Unlock()
		if !e.s.Active() {
			e.s.Start()
		}
	case "stats":
		e.s.Stop()
		dim := color.New(color.FgHiBlack)
		_, _ = dim.Fprintf(e.w, "  %s model %.1fs, %d tokens\n", ev.Kind, float64(ev.ModelMs)/1000, ev.Tokens)
	case "error":
		e.s.Stop()
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(e.w, "Error: %s\n", ev.Message)
	case "done":
		e.s.Stop()
	}
}

func (e *spinnerEmitter) Close() {
	e.s.Stop()
}
