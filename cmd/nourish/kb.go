package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kamilpajak/nourish/internal/docparse"
	"github.com/kamilpajak/nourish/internal/knowledge"
	"github.com/spf13/cobra"
)

func (c *cli) kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the gold-standard knowledge bank",
	}
	cmd.AddCommand(c.kbAddCmd(), c.kbListCmd(), c.kbIndexCmd(), c.kbSearchCmd())
	return cmd
}

func (c *cli) kbAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Add gold-standard cases (.txt, .md, .docx, .pdf)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			total := 0
			for _, path := range args {
				text, err := docparse.Extract(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				doc, err := a.Knowledge.AddDocument(cmd.Context(), filepath.Base(path), text)
				if err != nil {
					return err
				}
				if doc == nil {
					fmt.Fprintf(c.errOut, "Skipping %s: no text found\n", path)
					continue
				}
				total += doc.Chunks
				fmt.Fprintf(c.errOut, "Added %s (%d chunks)\n", doc.Title, doc.Chunks)
			}
			fmt.Fprintf(c.errOut, "%d chunks added. Run 'nourish kb index' to embed them.\n", total)
			return nil
		},
	}
}

func (c *cli) kbListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List knowledge-bank documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Knowledge.Documents(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Fprintf(c.out, "%4d  %-40s %d chunks\n", d.ID, d.Title, d.Chunks)
			}
			return nil
		},
	}
}

func (c *cli) kbIndexCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed chunks that have no embedding yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if batch <= 0 {
				batch = c.config().Knowledge.IndexBatch
			}
			embedded, remaining, err := a.Knowledge.BuildIndex(cmd.Context(), batch)
			if errors.Is(err, knowledge.ErrNoEmbedder) {
				return fmt.Errorf("%w: set OPENAI_API_KEY or NOURISH_EMBEDDING_API_KEY", err)
			}
			fmt.Fprintf(c.errOut, "Embedded %d chunks, %d remaining\n", embedded, remaining)
			return err
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "Chunks per embedding request (default from config)")
	return cmd
}

func (c *cli) kbSearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the excerpts most similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Embedder == nil {
				return knowledge.ErrNoEmbedder
			}
			if k <= 0 {
				k = c.config().Knowledge.TopK
			}
			out, err := a.Knowledge.Retrieve(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(c.errOut, "No indexed excerpts.")
				return nil
			}
			fmt.Fprintln(c.out, out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", 0, "Number of excerpts (default from config)")
	return cmd
}
