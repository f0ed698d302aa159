package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/retail-etl/internal/core"
	_ "github.com/JonMunkholm/retail-etl/internal/core/tables" // Register all datasets
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n%s\n", err, core.FormatUserError(err))
		stop()
		os.Exit(1)
	}
}

// loadEnv reads a dotenv file. Overload lets the file win over the process
// environment; a missing default file is not an error.
func loadEnv(path string) error {
	if path == "" {
		if err := godotenv.Overload(); err != nil {
			slog.Debug("no .env file found, using environment variables")
		}
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("%w: env file %s: %v", core.ErrConfig, path, err)
	}
	return nil
}
