package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/charignon/cmdbridge/internal/config"
	tracing "github.com/charignon/cmdbridge/internal/debug"
	"github.com/charignon/cmdbridge/internal/executor"
	"github.com/charignon/cmdbridge/internal/logger"
	"github.com/charignon/cmdbridge/internal/mcp"
	"github.com/charignon/cmdbridge/internal/pgservice"
	"github.com/charignon/cmdbridge/internal/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var (
	cfg        *config.Config
	configPath string

	flagConfig       string
	flagLogLevel     string
	flagLogFormat    string
	flagServicesFile string
	flagDebugTrace   string
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML settings file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&flagServicesFile, "services-file", "", "PostgreSQL service file (default $PGSERVICEFILE or ~/.pg_service.conf)")
	rootCmd.PersistentFlags().StringVar(&flagDebugTrace, "debug-trace", "", "File to save a debug trace of requests and commands")

	rootCmd.PersistentPreRunE = initBridge

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(claudeConfigCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("cmdbridge failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cmdbridge",
	Short:         "MCP server exposing gcloud logging and psql as tools",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          doServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio",
	RunE:  doServe,
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Print the PostgreSQL services from the service file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := pgservice.NewStore(cfg.ServicesFile)
		fmt.Fprintln(cmd.OutOrStdout(), tools.ServiceListing(store.Load(cmd.Context())))
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the settings file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		registry, _ := buildRegistry(cfg, nil)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration is valid")
		for _, tool := range registry.List() {
			fmt.Fprintf(out, "  %s\n", tool.Name)
		}
		return nil
	},
}

var claudeConfigCmd = &cobra.Command{
	Use:   "claude-config",
	Short: "Print a Claude Desktop configuration snippet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeClaudeConfig(cmd, cfg, configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cmdbridge version %s\n", version)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "go:     %s\n", info.GoVersion)
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", s.Value)
				}
			}
		}
	},
}

func initBridge(cmd *cobra.Command, _ []string) error {
	logger.SetupLogger(flagLogLevel, flagLogFormat)

	if flagConfig == "" {
		cfg = config.Default()
	} else {
		path, err := filepath.Abs(flagConfig)
		if err != nil {
			return err
		}
		if err := config.ValidateFile(path); err != nil {
			return err
		}
		if cfg, err = config.LoadConfig(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		configPath = path
		log.Info().Str("config", path).Msg("Loaded configuration")
	}

	if flagServicesFile != "" {
		cfg.ServicesFile = flagServicesFile
	}
	return nil
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.NewTracer(flagDebugTrace != "", flagDebugTrace)
	if err != nil {
		return err
	}
	defer func() {
		tracer.PrintSummary()
		if err := tracer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close debug trace")
		}
	}()

	registry, store := buildRegistry(cfg, tracer)
	if store != nil {
		store.Load(ctx)
	}

	server := mcp.NewServer(registry, os.Stdin, os.Stdout, serverOptions(cfg, tracer))
	return server.Run(ctx)
}

// serverOptions announces the configured metadata; the description is
// sent to clients as the server instructions.
func serverOptions(cfg *config.Config, tracer *tracing.Tracer) mcp.ServerOptions {
	return mcp.ServerOptions{
		Name:         cfg.Metadata.Name,
		Version:      cfg.Metadata.Version,
		Instructions: cfg.Metadata.Description,
		Tracer:       tracer,
	}
}

// buildRegistry wires the enabled tools. The store is nil when psql is disabled.
func buildRegistry(cfg *config.Config, tracer *tracing.Tracer) (*tools.Registry, *pgservice.Store) {
	var opts []executor.Option
	if tracer.Enabled() {
		opts = append(opts, executor.WithTracer(tracer))
	}
	runner := executor.NewCommandExecutor(cfg, opts...)
	builder := executor.NewCommandBuilder(cfg)
	registry := tools.NewRegistry()

	if cfg.Logging.IsEnabled() {
		registry.Register(tools.LoggingTools(builder, runner)...)
	}

	var store *pgservice.Store
	if cfg.Postgres.IsEnabled() {
		store = pgservice.NewStore(cfg.ServicesFile)
		registry.Register(tools.PostgresTools(builder, runner, store)...)
	}

	return registry, store
}

func writeClaudeConfig(cmd *cobra.Command, cfg *config.Config, path string) error {
	executable, err := os.Executable()
	if err != nil {
		executable = "cmdbridge"
	}

	server := map[string]interface{}{"command": executable}
	if path != "" {
		server["args"] = []string{"--config", path}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"mcpServers": map[string]interface{}{
			cfg.Metadata.Name: server,
		},
	})
}
