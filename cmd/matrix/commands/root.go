// Package commands implements the matrix CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/config"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

// Version is reported by --version and telemetry.
const Version = "0.1.0"

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "matrix",
	Short: "MaTriX - maternal triage escalation engine",
	Long: `MaTriX runs maternal triage cases through risk scoring, guideline
retrieval, safety critique and conditional escalation to a cloud model,
honouring the deployment topology (OFFLINE, HYBRID or CLOUD).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "matrix: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("MATRIX_CONFIG"), "Path to matrix.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (json or text)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(mcpCallCmd)
}

// loadConfig reads the config file and applies CLI log overrides, then
// installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logging.SetLogger(logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level))
	return cfg, nil
}
