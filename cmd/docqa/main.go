// Package main provides the docqa CLI: ingest documents, ask questions and
// serve MCP over stdio without running the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
)

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:           "docqa",
	Short:         "Question answering over uploaded documents",
	Long:          "CLI for ingesting documents into docqa collections and asking questions about them.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("data-dir", "data", "directory for indexes and uploads")
	flags.String("vector-store", "fs", "snapshot store (fs, qdrant)")
	mustBind(v, "LOG_LEVEL", "log-level")
	mustBind(v, "LOG_FORMAT", "log-format")
	mustBind(v, "DATA_DIR", "data-dir")
	mustBind(v, "VECTOR_STORE", "vector-store")

	rootCmd.AddCommand(ingestCmd, askCmd, searchCmd, collectionsCmd, mcpCmd)
}

func mustBind(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp loads the configuration (environment, then flags) and wires the
// components. Logs go to stderr so stdout stays clean for results and MCP.
func newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, cfg.Logger(os.Stderr))
}
