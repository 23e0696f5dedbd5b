package commands

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 24, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8((x + y) % 2 * 200), B: uint8(y * 12), A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "denoise-cli", SilenceUsage: true, SilenceErrors: true}
	InitDenoiseCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDenoiseCmd_WritesCleanImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "noisy.png")
	writePNG(t, input)

	out, err := execute(t, "denoise", input)
	require.NoError(t, err)

	output := filepath.Join(dir, "noisy_clean.png")
	assert.Contains(t, out, "output: "+output)
	assert.Contains(t, out, "PSNR:")
	assert.Contains(t, out, "SSIM:")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(24, 20), decoded.Bounds().Size())
}

func TestCompareCmd_IdenticalImages(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.png")
	writePNG(t, input)

	out, err := execute(t, "compare", input, input)
	require.NoError(t, err)
	assert.Contains(t, out, "PSNR:   inf")
	assert.Contains(t, out, "SSIM:   1.0000")
}

func TestDenoiseCmd_MissingInput(t *testing.T) {
	_, err := execute(t, "denoise", filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
