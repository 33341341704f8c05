package main

import (
	"github.com/spf13/cobra"

	"github.com/parkscan/parkscan/pkg/logger"
)

var createdbCmd = &cobra.Command{
	Use:   "createdb",
	Short: "Initialize the SQLite schema",
	Long:  "Creates the sign, street cache, and result tables. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := initRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		log.Info("Database initialized", logger.String("path", cfg.Database.Path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createdbCmd)
}
