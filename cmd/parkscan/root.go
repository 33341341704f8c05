package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parkscan/parkscan/internal/config"
	"github.com/parkscan/parkscan/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
	log        *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "parkscan",
	Short: "Street parking availability analysis",
	Long: "Imports the municipal signalization feed, resolves street geometry " +
		"from Overpass, and answers parking availability questions over HTTP " +
		"or the command line.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		l, err := logger.New(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file (defaults apply when omitted)")
}
