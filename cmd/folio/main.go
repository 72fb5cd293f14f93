// Command folio indexes PDFs for semantic search and grounded question answering.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/folio/internal/adapters/driving/cli"
	"github.com/custodia-labs/folio/internal/app"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	settings, err := app.NewSettings(os.Getenv("FOLIO_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	cli.SetServices(&cli.Services{Settings: settings})
	cli.SetBootstrap(func(ctx context.Context) (*cli.Services, func(), error) {
		a, err := app.Build(ctx, settings)
		if err != nil {
			return nil, nil, err
		}
		services := &cli.Services{
			Ingest:   a.Ingest,
			Document: a.Document,
			Search:   a.Search,
			Answer:   a.Answer,
			Settings: settings,
		}
		return services, func() {
			if err := a.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: closing: %v\n", err)
			}
		}, nil
	})

	// cobra prints the error itself.
	return cli.Execute(ctx)
}
