package workflow

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-denoise-project/internal/denoise"
	"github.com/petermazzocco/go-denoise-project/internal/repository"
	"github.com/petermazzocco/go-denoise-project/internal/storage"
	"github.com/petermazzocco/go-denoise-project/models"
)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	files *storage.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, db := repository.NewTestRepository(t)
	root := t.TempDir()
	files, err := storage.NewLocal(filepath.Join(root, "uploads"), filepath.Join(root, "clean"), zap.NewNop())
	require.NoError(t, err)

	svc := NewService(repo, files, zap.NewNop()).WithRand(rand.New(rand.NewSource(1)))
	return &fixture{svc: svc, db: db, files: files}
}

func sampleJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rng := rand.New(rand.NewSource(99))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			n := uint8(rng.Intn(60))
			img.Set(x, y, color.RGBA{R: uint8(x) + n, G: uint8(y) + n, B: 128 + n, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func registration(username, password string) Registration {
	return Registration{Username: username, Password: password, Email: username + "@example.com", Gender: "Other"}
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registration("alice", "pw1"))
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, registration("alice", "pw2"))
	assert.ErrorIs(t, err, repository.ErrUsernameTaken)

	user, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, repository.ErrInvalidCredentials)

	result, err := f.svc.Denoise(ctx, user.ID, true, "sky.jpg", sampleJPEG(t, 96, 80), false)
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, f.db, &models.Upload{}))
	assert.Equal(t, int64(1), countRows(t, f.db, &models.CleanImage{}))
	assert.Greater(t, result.Scores.PSNR, 0.0)
	assert.GreaterOrEqual(t, result.Scores.SSIM, 0.0)
	assert.LessOrEqual(t, result.Scores.SSIM, 1.0)
	assert.Empty(t, result.Patches)

	assert.Equal(t, filepath.Join(f.files.RawDir, result.FileID+"_sky.jpg"), result.RawPath)
	assert.Equal(t, filepath.Join(f.files.CleanDir, result.FileID+"_clean.png"), result.CleanPath)
	assert.FileExists(t, result.RawPath)
	assert.FileExists(t, result.CleanPath)

	var clean models.CleanImage
	require.NoError(t, f.db.First(&clean).Error)
	assert.Equal(t, result.UploadID, clean.UploadID)
	assert.Equal(t, result.CleanPath, clean.CleanFilename)
	assert.InDelta(t, result.Scores.SSIM, clean.SSIM, 1e-12)

	history, err := f.svc.History(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.RawPath, history[0].Filename)
}

func TestDenoise_NotLoggedInWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Denoise(context.Background(), 0, false, "sky.jpg", sampleJPEG(t, 32, 32), false)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	assert.Zero(t, countRows(t, f.db, &models.Upload{}))
	assert.Zero(t, countRows(t, f.db, &models.CleanImage{}))
	entries, err := os.ReadDir(f.files.RawDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDenoise_WithPatches(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Denoise(context.Background(), 1, true, "wide.jpg", sampleJPEG(t, 200, 120), true)
	require.NoError(t, err)

	require.Len(t, result.Patches, PatchCount)
	for _, p := range result.Patches {
		assert.GreaterOrEqual(t, p.X, 0)
		assert.Less(t, p.X, 200-PatchSize)
		assert.Less(t, p.Y, 120-PatchSize)
		assert.Equal(t, image.Rect(p.X, p.Y, p.X+PatchSize, p.Y+PatchSize), p.Noisy.Bounds())
		assert.Equal(t, p.Noisy.Bounds(), p.Clean.Bounds())
	}
}

func TestDenoise_PatchesOnSmallImageAreClipped(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Denoise(context.Background(), 1, true, "small.jpg", sampleJPEG(t, 40, 100), true)
	require.NoError(t, err)

	for _, p := range result.Patches {
		assert.Equal(t, 0, p.X)
		assert.Equal(t, 40, p.Noisy.Bounds().Dx())
		assert.Equal(t, PatchSize, p.Noisy.Bounds().Dy())
	}
}

func TestDenoise_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Denoise(ctx, 1, true, "notes.txt", []byte("hello"), false)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.svc.Denoise(ctx, 1, true, "empty.png", nil, false)
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = f.svc.Denoise(ctx, 1, true, "broken.png", []byte("not a png"), false)
	assert.Error(t, err)

	assert.Zero(t, countRows(t, f.db, &models.Upload{}))
	entries, err := os.ReadDir(f.files.RawDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads must not reach the disk")
}

func TestDenoise_RejectsImagesOverPixelLimit(t *testing.T) {
	f := newFixture(t)
	f.svc.WithMaxPixels(32 * 32)
	ctx := context.Background()

	_, err := f.svc.Denoise(ctx, 1, true, "big.jpg", sampleJPEG(t, 40, 40), false)
	assert.ErrorIs(t, err, denoise.ErrTooManyPixels)
	assert.Zero(t, countRows(t, f.db, &models.Upload{}))
	entries, err := os.ReadDir(f.files.RawDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = f.svc.Denoise(ctx, 1, true, "fits.jpg", sampleJPEG(t, 32, 32), false)
	assert.NoError(t, err)
}

func TestFilePath_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Denoise(ctx, 1, true, "sky.jpg", sampleJPEG(t, 32, 32), false)
	require.NoError(t, err)
	rawName := filepath.Base(result.RawPath)
	cleanName := filepath.Base(result.CleanPath)

	path, err := f.svc.FilePath(ctx, 1, storage.KindRaw, rawName)
	require.NoError(t, err)
	assert.Equal(t, result.RawPath, path)
	path, err = f.svc.FilePath(ctx, 1, storage.KindClean, cleanName)
	require.NoError(t, err)
	assert.Equal(t, result.CleanPath, path)

	_, err = f.svc.FilePath(ctx, 2, storage.KindRaw, rawName)
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = f.svc.FilePath(ctx, 2, storage.KindClean, cleanName)
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = f.svc.FilePath(ctx, 1, storage.KindRaw, "../"+rawName)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoginExternal_RefusesPasswordAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := registration("dave@example.com", "pw")
	reg.Email = "dave@example.com"
	_, err := f.svc.Register(ctx, reg)
	require.NoError(t, err)

	_, err = f.svc.LoginExternal(ctx, "google", "3003", "dave@example.com")
	assert.ErrorIs(t, err, repository.ErrAccountExists)

	user, err := f.svc.LoginExternal(ctx, "google", "3004", "erin@example.com")
	require.NoError(t, err)
	again, err := f.svc.LoginExternal(ctx, "google", "3004", "erin@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		reg   Registration
		field string
	}{
		{"missing username", Registration{Password: "pw", Gender: "Male"}, "Username"},
		{"missing password", Registration{Username: "bob", Gender: "Male"}, "Password"},
		{"bad gender", Registration{Username: "bob", Password: "pw", Gender: "Unknown"}, "Gender"},
		{"bad email", Registration{Username: "bob", Password: "pw", Gender: "Male", Email: "nope"}, "Email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.reg)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
	assert.Zero(t, countRows(t, f.db, &models.User{}))
}
