package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/kamilpajak/nourish/internal/docparse"
	"github.com/kamilpajak/nourish/pkg/models"
	"github.com/spf13/cobra"
)

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create and inspect consultation sessions",
	}
	cmd.AddCommand(c.sessionCreateCmd(), c.sessionListCmd(), c.sessionShowCmd())
	return cmd
}

func (c *cli) sessionCreateCmd() *cobra.Command {
	var params models.NewSessionParams

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a session for a child",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params.ChildName = strings.TrimSpace(params.ChildName)
			if err := params.Validate(); err != nil {
				return err
			}

			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Store.CreateSession(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.errOut, "Created session for", s.ChildName)
			fmt.Fprintln(c.out, s.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&params.ChildName, "name", "n", "", "Child's name")
	cmd.Flags().StringVar(&params.DateOfBirth, "dob", "", "Date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&params.Consultant, "consultant", "", "Consultant name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) sessionListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.Store.ListSessions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(c.errOut, "No sessions yet.")
				return nil
			}
			printSessions(c.out, sessions)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Sessions to skip")
	return cmd
}

func printSessions(w io.Writer, sessions []models.Session) {
	dim := color.New(color.FgHiBlack)
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-24s", s.ID, s.ChildName)
		_, _ = dim.Fprintf(w, " %s\n", s.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func (c *cli) sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.Store.GetSession(ctx, id)
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("session %s not found", id)
			}
			progress, err := a.Service.Progress(ctx, id)
			if err != nil {
				return err
			}
			artifacts, err := a.Store.ListArtifacts(ctx, id, "")
			if err != nil {
				return err
			}

			printSession(c.out, s, progress, artifacts)
			return nil
		},
	}
}

func printSession(w io.Writer, s *models.Session, p *models.Progress, artifacts []models.Artifact) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	_, _ = bold.Fprintln(w, s.ChildName)
	_, _ = dim.Fprintf(w, "  id: %s\n", s.ID)
	if s.DateOfBirth != "" {
		fmt.Fprintf(w, "  Date of birth: %s\n", s.DateOfBirth)
	}
	if s.Consultant != "" {
		fmt.Fprintf(w, "  Consultant: %s\n", s.Consultant)
	}
	fmt.Fprintln(w)

	done := make(map[models.Step]bool, len(p.Completed))
	for _, step := range p.Completed {
		done[step] = true
	}
	fmt.Fprintf(w, "Progress %d%%\n", p.Percent)
	for _, step := range models.Steps() {
		switch {
		case done[step]:
			_, _ = green.Fprintf(w, "  [x] %s\n", step)
		case step == p.CurrentStep:
			_, _ = bold.Fprintf(w, "  [>] %s\n", step)
		default:
			fmt.Fprintf(w, "  [ ] %s\n", step)
		}
	}

	if len(artifacts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Documents")
		for _, a := range artifacts {
			fmt.Fprintf(w, "  - %s ", a.Filename)
			_, _ = dim.Fprintf(w, "(%s, %d chars)\n", a.Kind, len([]rune(a.Content)))
		}
	}
}

func parseSessionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session ID %q", s)
	}
	return id, nil
}

func (c *cli) uploadCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "upload <session-id> <file>...",
		Short: "Add psychometric or lab reports to a session",
		Long: `Extract the text of each file and store it on the session.
Supported formats: .txt, .md, .docx, .pdf.

Examples:
  nourish upload 6f1c... wisc.pdf conners.docx
  nourish upload 6f1c... cbc.pdf --kind lab`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			artifactKind, err := models.ParseArtifactKind(kind)
			if err != nil {
				return err
			}

			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Store.GetSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("session %s not found", id)
			}

			for _, path := range args[1:] {
				text, err := docparse.Extract(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if strings.TrimSpace(text) == "" {
					fmt.Fprintf(c.errOut, "Skipping %s: no text found\n", path)
					continue
				}
				if _, err := a.Store.AddArtifact(cmd.Context(), id, artifactKind, filepath.Base(path), text); err != nil {
					return err
				}
				fmt.Fprintf(c.errOut, "Added %s (%s, %d chars)\n", filepath.Base(path), artifactKind, len([]rune(text)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(models.KindPsychometric), "Document kind (psychometric, lab)")
	return cmd
}

func (c *cli) answersCmd() *cobra.Command {
	var text, file string

	cmd := &cobra.Command{
		Use:   "answers <session-id>",
		Short: "Record or show the parents' answers",
		Long: `Store the parents' answers to the clarifying questions. Without --text or
--file the stored answers are printed. --file - reads standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.Store.GetSession(ctx, id)
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("session %s not found", id)
			}

			if text == "" && file == "" {
				answers, err := a.Store.GetAnswers(ctx, id)
				if err != nil {
					return err
				}
				if answers == nil {
					return errors.New("no answers recorded")
				}
				fmt.Fprintln(c.out, answers.Text)
				return nil
			}

			if file == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			} else if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				text = string(data)
			}

			if _, err := a.Store.SaveAnswers(ctx, id, strings.TrimSpace(text)); err != nil {
				return err
			}
			fmt.Fprintln(c.errOut, "Answers saved.")
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Answers text")
	cmd.Flags().StringVar(&file, "file", "", "Read answers from a file")
	return cmd
}
