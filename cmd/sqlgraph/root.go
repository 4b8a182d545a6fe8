package main

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leofalp/sqlgraph/internal/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	options := &globalOptions{}

	root := &cobra.Command{
		Use:   "sqlgraph",
		Short: "Answer natural-language questions with SQL",
		Long: `sqlgraph turns questions into SQL through a graph of LLM-backed stages,
runs the query against a configured database and explains the result.

Configuration is read from the file given with --config, then from the
environment. A .env file in the working directory is loaded first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&options.configPath, "config", "", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&options.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	root.PersistentFlags().StringVar(&options.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		newQueryCommand(options),
		newChatCommand(options),
		newSchemaCommand(options),
		newDatabasesCommand(options),
	)
	return root
}

// load reads the configuration and applies the flags over it.
func (options *globalOptions) load(cmd *cobra.Command) (config.Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv(options.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Observability.LogLevel = options.logLevel
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Observability.MetricsAddr = options.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// open loads the configuration and wires a runtime. Logs go to the
// command's error stream so results stay pipeable.
func (options *globalOptions) open(cmd *cobra.Command) (*runtime, error) {
	cfg, err := options.load(cmd)
	if err != nil {
		return nil, err
	}
	return newRuntime(cmd.Context(), cfg, cmd.ErrOrStderr())
}

// resolveDatabase returns dbID, or the only configured database when dbID
// is empty.
func resolveDatabase(cfg config.Config, dbID string) (string, error) {
	if dbID != "" {
		if _, exists := cfg.Databases[dbID]; !exists {
			return "", fmt.Errorf("unknown database %q", dbID)
		}
		return dbID, nil
	}
	if len(cfg.Databases) != 1 {
		return "", errors.New("several databases are configured: choose one with --db")
	}
	for id := range cfg.Databases {
		dbID = id
	}
	return dbID, nil
}
