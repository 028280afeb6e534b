package main

import (
	"fmt"
	"io"

	"github.com/kamilpajak/nourish/internal/app"
	"github.com/kamilpajak/nourish/internal/config"
	"github.com/kamilpajak/nourish/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cli carries state shared by the subcommands of one invocation.
type cli struct {
	out    io.Writer
	errOut io.Writer

	configFile string
	manager    *config.Manager
	logger     *logrus.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "nourish",
		Short: "Paediatric nutrition consultation assistant",
		Long: `nourish maps psychometric and lab reports to approved blood tests,
generates parent questions, test recommendations and nutrition plans with a
language model, and exports plans as HTML or PDF.

Sessions are stored in a local SQLite file by default (--db), or in
PostgreSQL when --database-url or NOURISH_DATABASE_URL is set.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Config file (default ./nourish.yaml or ~/.nourish/nourish.yaml)")
	flags.String("db", "", "SQLite database file")
	flags.String("database-url", "", "PostgreSQL connection URL (overrides --db)")
	flags.StringP("provider", "p", "", "LLM provider (openai, google, anthropic)")
	flags.StringP("model", "m", "", "Specific model name")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		c.recommendCmd(),
		c.promptCmd(),
		c.sessionCmd(),
		c.uploadCmd(),
		c.answersCmd(),
		c.generateCmd(),
		c.exportCmd(),
		c.kbCmd(),
		c.migrateCmd(),
		versionCmd(),
	)
	return root
}

var flagKeys = map[string]string{
	"db":           "database.path",
	"database-url": "database.url",
	"provider":     "llm.provider",
	"model":        "llm.model",
	"log-level":    "logging.level",
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	manager, err := config.NewManager(c.configFile)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if err := manager.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := manager.Config()
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, c.errOut)
	if err != nil {
		return err
	}
	// Command output goes to stdout; keep routine log lines out of the way.
	if !cmd.Flags().Changed("log-level") && cfg.Logging.Level == "info" {
		logger.SetLevel(logrus.WarnLevel)
	}

	c.manager = manager
	c.logger = logger
	return nil
}

func (c *cli) config() *config.Config {
	return c.manager.Config()
}

func (c *cli) openApp(cmd *cobra.Command) (*app.App, error) {
	return app.Open(cmd.Context(), c.config(), c.logger)
}
