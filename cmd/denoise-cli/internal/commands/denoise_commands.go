package commands

import (
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/denoise"
	"github.com/petermazzocco/go-denoise-project/internal/metrics"
)

// DenoiseCommandHandler runs the denoiser and metric calculator on local files.
type DenoiseCommandHandler struct {
	log *zap.Logger
}

func NewDenoiseCommandHandler() (*DenoiseCommandHandler, error) {
	log, err := setupLogger("warn")
	if err != nil {
		return nil, err
	}
	return &DenoiseCommandHandler{log: log}, nil
}

// DenoiseCmd writes the smoothed image and prints PSNR and SSIM against the input.
func (h *DenoiseCommandHandler) DenoiseCmd(cmd *cobra.Command, args []string) error {
	input := args[0]
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("invalid output flag: %w", err)
	}
	if output == "" {
		output = defaultOutput(input)
	}

	noisy, err := denoise.Load(input)
	if err != nil {
		return err
	}
	clean := denoise.Gaussian5x5(noisy)

	f, err := os.OpenFile(filepath.Clean(output), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	if err := png.Encode(f, clean); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	scores, err := metrics.Compare(noisy, clean)
	if err != nil {
		return err
	}
	h.log.Debug("denoised file", zap.String("input", input), zap.String("output", output))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "output: %s\n", output)
	fmt.Fprintf(out, "PSNR:   %s\n", formatPSNR(scores.PSNR))
	fmt.Fprintf(out, "SSIM:   %.4f\n", scores.SSIM)
	return nil
}

// CompareCmd prints PSNR and SSIM of a candidate image against a reference.
func (h *DenoiseCommandHandler) CompareCmd(cmd *cobra.Command, args []string) error {
	reference, err := denoise.Load(args[0])
	if err != nil {
		return err
	}
	candidate, err := denoise.Load(args[1])
	if err != nil {
		return err
	}
	scores, err := metrics.Compare(metrics.ResizeTo(reference, candidate.Bounds().Size()), candidate)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "PSNR:   %s\n", formatPSNR(scores.PSNR))
	fmt.Fprintf(out, "SSIM:   %.4f\n", scores.SSIM)
	return nil
}

func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_clean.png"
}

func formatPSNR(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

// InitDenoiseCommands registers the denoise and compare commands.
func InitDenoiseCommands(rootCmd *cobra.Command) {
	handler, err := NewDenoiseCommandHandler()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up denoise commands: %v\n", err)
		return
	}

	denoiseCmd := &cobra.Command{
		Use:   "denoise <input>",
		Short: "Apply the 5x5 Gaussian denoiser to an image and report PSNR/SSIM",
		Args:  cobra.ExactArgs(1),
		RunE:  handler.DenoiseCmd,
	}
	denoiseCmd.Flags().StringP("output", "o", "", "Output PNG path (default <input>_clean.png)")
	rootCmd.AddCommand(denoiseCmd)

	compareCmd := &cobra.Command{
		Use:   "compare <reference> <candidate>",
		Short: "Print PSNR and SSIM of a candidate image against a reference",
		Args:  cobra.ExactArgs(2),
		RunE:  handler.CompareCmd,
	}
	rootCmd.AddCommand(compareCmd)
}
