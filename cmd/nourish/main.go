// Command nourish is the consultant's command-line tool: it runs the rule
// engine, manages sessions and drives the generation steps against a local
// SQLite file or a PostgreSQL database.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
