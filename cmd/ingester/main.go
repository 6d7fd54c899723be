package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/services"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Fatal("ingester failed", "error", err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingester",
		Short: "Index local documents and query the search index",
		Long: `ingester talks to the same storage as the server.

It indexes markdown files synchronously, runs searches from the
command line and issues admin tokens.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newDocsCmd(), newSearchCmd(), newTokenCmd())

	return cmd
}

// loads configuration and builds the service pool
func openPool(ctx context.Context) (*services.Pool, error) {
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		return nil, err
	}

	return services.New(ctx, cfg)
}
