// Package mcp parses MCP command flags and serves the assistant tools over
// stdio.
package mcp

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/drivelane/drivelane/internal/platform/config"
	"github.com/drivelane/drivelane/internal/platform/otel"
	"github.com/drivelane/drivelane/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath string `env:"DRIVELANE_DB_PATH" envDefault:"drivelane.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite database file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "mcp")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return service.Run(ctx, service.Config{DBPath: cfg.DBPath})
}
