package cmd

import (
	"fmt"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
)

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve the MCP tools over stdio without authentication",
		Long: `Serves the MCP tools on stdin/stdout for a local MCP client. There is
no OAuth in this mode: every tool is callable and create_order needs an
explicit customer_email. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: runStdio,
	}
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	if err := cfg.ValidateStdio(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Metrics have no scrape endpoint over stdio; traces still go to stderr.
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:     serverName,
		ServiceVersion:  GetVersion(),
		Enabled:         cfg.Instrumentation.Enabled,
		MetricsExporter: instrumentation.ExporterNone,
		TracesExporter:  cfg.Instrumentation.TracesExporter,
		TraceWriter:     os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		if err := inst.Shutdown(cmd.Context()); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	s, err := newMCPServer(cfg, logger, inst, false)
	if err != nil {
		return err
	}

	logger.Info("Serving MCP tools over stdio")
	return mcpserver.ServeStdio(s)
}
