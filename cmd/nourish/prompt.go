package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/pkg/prompts"
	"github.com/kamilpajak/nourish/pkg/rules"
	"github.com/spf13/cobra"
)

func (c *cli) promptCmd() *cobra.Command {
	var (
		sessionID   string
		summaryFile string
		answersFile string
		labsFile    string
		testsFile   string
		goldFile    string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "prompt <questions|tests|plan>",
		Short: "Show the prompt a generation step would send",
		Long: `Build a generation prompt without calling the model, either from a stored
session (--session) or from files.

Examples:
  nourish prompt questions --summary-file wisc.docx --gold-file case.md
  nourish prompt plan --session 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := prompts.ParseKind(args[0])
			if err != nil {
				return err
			}

			var p prompts.Prompt
			if sessionID != "" {
				id, err := uuid.Parse(sessionID)
				if err != nil {
					return fmt.Errorf("invalid session ID: %w", err)
				}
				a, err := c.openApp(cmd)
				if err != nil {
					return err
				}
				defer a.Close()
				if p, err = a.Service.PreviewPrompt(cmd.Context(), id, kind); err != nil {
					return err
				}
			} else {
				req := prompts.Request{Kind: kind}
				for _, f := range []struct {
					dst  *string
					path string
				}{
					{&req.Summary, summaryFile},
					{&req.Answers, answersFile},
					{&req.Labs, labsFile},
					{&req.TestsMarkdown, testsFile},
					{&req.GoldExcerpts, goldFile},
				} {
					if *f.dst, err = textOrFile("", f.path); err != nil {
						return err
					}
				}
				if kind == prompts.KindTests {
					req.ApprovedYAML = rules.Recommend(req.Summary, req.Answers).YAML()
				}
				if p, err = prompts.Build(req); err != nil {
					return err
				}
			}

			if format == "json" {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"kind":        p.Kind(),
					"system":      p.System(),
					"user":        p.User(),
					"temperature": p.Temperature(),
				})
			}
			printPrompt(c.out, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Build from a stored session")
	cmd.Flags().StringVar(&summaryFile, "summary-file", "", "Psychometric report text")
	cmd.Flags().StringVar(&answersFile, "answers-file", "", "Parent answers")
	cmd.Flags().StringVar(&labsFile, "labs-file", "", "Lab report text")
	cmd.Flags().StringVar(&testsFile, "tests-file", "", "Recommended tests markdown")
	cmd.Flags().StringVar(&goldFile, "gold-file", "", "Gold-standard excerpts")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	return cmd
}

func printPrompt(w io.Writer, p prompts.Prompt) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "SYSTEM (temperature %.1f)\n", p.Temperature())
	fmt.Fprintln(w, p.System())
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "USER")
	fmt.Fprintln(w, p.User())
}
