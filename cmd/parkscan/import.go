package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parkscan/parkscan/internal/signs"
	"github.com/parkscan/parkscan/pkg/logger"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the municipal signalization CSV into the sign store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := initRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()

		importer := signs.NewImporter(rt.signs, cfg.Signs.ImportBatchSize, log)
		stats, err := importer.ImportCSV(ctx, f)
		if err != nil {
			return fmt.Errorf("import csv: %w", err)
		}
		rt.metrics.SignsImported.Add(float64(stats.Imported))

		log.Info("Import complete",
			logger.String("csv", importCSVPath),
			logger.Int("total", stats.Total),
			logger.Int("imported", stats.Imported),
			logger.Int("skipped", stats.Skipped))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to the signalization CSV export (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
