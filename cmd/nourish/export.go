package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kamilpajak/nourish/internal/export"
	"github.com/spf13/cobra"
)

func (c *cli) exportCmd() *cobra.Command {
	var (
		format  string
		output  string
		install bool
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session's plan as HTML or PDF",
		Long: `Render the stored nutrition plan with the safety footer.
PDF export needs a Chromium installed by Playwright; pass --install-browser
once to download it.`,
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
			plan, err := a.Store.GetPlan(ctx, id)
			if err != nil {
				return err
			}
			if plan == nil {
				return errors.New("no plan generated yet; run: nourish generate plan " + id.String())
			}
			title := "Nutrition plan for " + s.ChildName

			var data []byte
			switch format {
			case "html":
				html, err := export.HTML(title, plan.Markdown)
				if err != nil {
					return err
				}
				data = []byte(html)
			case "pdf":
				if install {
					fmt.Fprintln(c.errOut, "Installing Chromium...")
					if err := export.InstallBrowser(); err != nil {
						return err
					}
				}
				if data, err = export.PDF(ctx, title, plan.Markdown); err != nil {
					if errors.Is(err, export.ErrBrowserUnavailable) {
						return fmt.Errorf("%w (run with --install-browser)", err)
					}
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want html or pdf)", format)
			}

			if output == "" || output == "-" {
				_, err := c.out.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.errOut, "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "Output format (html, pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&install, "install-browser", false, "Install Chromium before PDF export")
	return cmd
}
