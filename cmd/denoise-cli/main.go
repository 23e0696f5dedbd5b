// Package main is the entry point for denoise-cli. It runs the denoiser and
// the metric calculator on local files and can prepare the database schema
// without starting the web server.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/petermazzocco/go-denoise-project/cmd/denoise-cli/internal/commands"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "denoise-cli",
		Short: "Offline image denoising tool",
		Long: `denoise-cli applies the fixed 5x5 Gaussian denoiser to an image file,
writes the result as PNG and prints PSNR and SSIM against the input.

The migrate command creates the database schema using the same
environment variables as the web server (DB_TYPE, DSN, and the
required SESSION_SECRET).`,
		SilenceUsage: true,
	}

	commands.InitDenoiseCommands(rootCmd)
	commands.InitMigrateCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}

func init() {
	log.SetOutput(os.Stderr)
}
