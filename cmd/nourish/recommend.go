package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/kamilpajak/nourish/internal/docparse"
	"github.com/kamilpajak/nourish/pkg/rules"
	"github.com/spf13/cobra"
)

func (c *cli) recommendCmd() *cobra.Command {
	var (
		contextText, contextFile string
		answersText, answersFile string
		format                   string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Map clinical context to approved blood tests",
		Long: `Run the rule engine on report text and parent answers. No model is called.

Examples:
  nourish recommend --context "constipation, picky eating"
  nourish recommend --context-file wisc.pdf --answers-file answers.txt --format yaml`,
		Args: cobra.NoArgs,
		// Pure computation; needs no store or model.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			ctxText, err := textOrFile(contextText, contextFile)
			if err != nil {
				return err
			}
			answers, err := textOrFile(answersText, answersFile)
			if err != nil {
				return err
			}

			res := rules.Recommend(ctxText, answers)
			switch format {
			case "json":
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "yaml":
				_, err := io.WriteString(c.out, res.YAML())
				return err
			case "text":
				printRecommendation(c.out, res)
				return nil
			}
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		},
	}

	cmd.Flags().StringVar(&contextText, "context", "", "Report text")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "Report file (.txt, .md, .docx, .pdf)")
	cmd.Flags().StringVar(&answersText, "answers", "", "Parent answers")
	cmd.Flags().StringVar(&answersFile, "answers-file", "", "Parent answers file")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, yaml)")
	return cmd
}

// textOrFile returns text, or the extracted contents of path when set.
func textOrFile(text, path string) (string, error) {
	if path == "" {
		return text, nil
	}
	content, err := docparse.Extract(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if text != "" {
		return text + "\n" + content, nil
	}
	return content, nil
}

func printRecommendation(w io.Writer, res rules.Result) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintf(w, "Recommended tests (%d)\n", len(res.RuleBased))
	for _, t := range res.RuleBased {
		tier := rules.TierOf(t)
		fmt.Fprintf(w, "  - %s ", t)
		_, _ = dim.Fprintf(w, "[%s]\n", tier)
	}

	if len(res.Matched) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Matched: %s\n", strings.Join(res.Matched, ", "))
	}
	if len(res.Dropped) > 0 {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "Not in the approved list, skipped: %s\n", strings.Join(res.Dropped, ", "))
	}
}
