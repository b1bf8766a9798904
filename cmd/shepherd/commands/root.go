package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Shepherd/backend/internal/infrastructure/tracing"
)

var (
	configFile string
	tenantID   string
	token      string
	verbose    bool

	cfg             *config.Config
	logger          *logging.Logger
	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Church admin realtime and content generation client",
	Long: `shepherd talks to the church admin backend.

It keeps a tenant push channel open, streams generated content and, against
the dev server, publishes events to a tenant.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML or TOML config file")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "tenant ID (overrides TENANT_ID)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (overrides AUTH_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if tenantID != "" {
		cfg.Realtime.TenantID = tenantID
	}
	if token != "" {
		cfg.Realtime.Token = token
	}

	logCfg := logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Service:     "shepherd",
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err = logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	shutdownTracing, err = tracing.Setup(cmd.Context(), tracing.Config{
		Enabled:  cfg.Tracing.Enabled,
		Exporter: cfg.Tracing.Exporter,
	})
	return err
}

func teardown(cmd *cobra.Command, _ []string) error {
	if shutdownTracing != nil {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}
	_ = logger.Sync()
	return nil
}

// requireCredentials checks that a tenant and token are configured
func requireCredentials() error {
	if cfg.Realtime.TenantID == "" {
		return fmt.Errorf("tenant is required, use --tenant or TENANT_ID")
	}
	if cfg.Realtime.Token == "" {
		return fmt.Errorf("token is required, use --token or AUTH_TOKEN")
	}
	return nil
}

// printVerbose writes to stderr when -v is set
func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
