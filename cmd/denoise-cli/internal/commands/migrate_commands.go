package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/config"
	"github.com/petermazzocco/go-denoise-project/internal/repository"
)

func migrateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := repository.Close(db); err != nil {
		return err
	}

	log.Info("schema ready", zap.String("db_type", cfg.Database.Type))
	fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Type)
	return nil
}

// InitMigrateCommands registers the migrate command.
func InitMigrateCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the users, uploads, clean_images and sessions tables if absent",
		Args:  cobra.NoArgs,
		RunE:  migrateCmd,
	})
}
