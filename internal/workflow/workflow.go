// Package workflow drives registration, login and the upload → denoise →
// score → persist sequence behind the four views.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/denoise"
	"github.com/petermazzocco/go-denoise-project/internal/metrics"
	"github.com/petermazzocco/go-denoise-project/internal/repository"
	"github.com/petermazzocco/go-denoise-project/internal/storage"
	"github.com/petermazzocco/go-denoise-project/models"
)

const (
	PatchCount = 6
	PatchSize  = 64
)

var (
	ErrNotLoggedIn     = errors.New("you need to log in first")
	ErrUnsupportedType = errors.New("unsupported file type, expected jpg, jpeg or png")
	ErrEmptyUpload     = errors.New("uploaded file is empty")
	ErrFileNotFound    = errors.New("file not found")
)

var allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Registration is the sign-up form.
type Registration struct {
	Username string `validate:"required,max=255"`
	Password string `validate:"required,max=72"`
	Email    string `validate:"omitempty,email"`
	Phone    string `validate:"max=64"`
	Gender   string `validate:"required,oneof=Male Female Other"`
	Address  string `validate:"max=2000"`
}

// Patch is a pair of same-position crops from the noisy and the denoised image.
type Patch struct {
	X, Y  int
	Noisy image.Image
	Clean image.Image
}

type Result struct {
	UploadID  uint
	FileID    string
	RawPath   string
	CleanPath string
	Scores    metrics.Scores
	Patches   []Patch
}

type Service struct {
	repo      *repository.Repository
	files     *storage.Local
	validate  *validator.Validate
	rng       *rand.Rand
	maxPixels int
	log       *zap.Logger
}

func NewService(repo *repository.Repository, files *storage.Local, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		files:     files,
		validate:  validator.New(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		maxPixels: denoise.DefaultMaxPixels,
		log:       log,
	}
}

// WithRand replaces the patch position source.
func (s *Service) WithRand(rng *rand.Rand) *Service {
	s.rng = rng
	return s
}

// WithMaxPixels caps width times height of images accepted by Denoise.
func (s *Service) WithMaxPixels(n int) *Service {
	if n > 0 {
		s.maxPixels = n
	}
	return s
}

// ValidationError lists the form fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// Register validates the form and creates the account. A taken username
// surfaces as repository.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, reg Registration) (*models.User, error) {
	if err := s.validate.Struct(reg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			verr := &ValidationError{}
			for _, fe := range validationErrors {
				verr.Fields = append(verr.Fields, fe.Field())
			}
			return nil, verr
		}
		return nil, fmt.Errorf("validation error: %w", err)
	}

	return s.repo.RegisterUser(ctx, repository.NewUser{
		Username: reg.Username,
		Password: reg.Password,
		Email:    reg.Email,
		Phone:    reg.Phone,
		Gender:   reg.Gender,
		Address:  reg.Address,
	})
}

func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			s.log.Info("login rejected", zap.String("username", username))
		}
		return nil, err
	}
	return user, nil
}

// LoginExternal resolves the local account bound to an externally verified
// identity. It refuses to attach the identity to an existing password account.
func (s *Service) LoginExternal(ctx context.Context, provider, providerUserID, email string) (*models.User, error) {
	if email == "" {
		return nil, errors.New("external login did not provide an email")
	}
	return s.repo.FindOrCreateOAuthUser(ctx, provider, providerUserID, email)
}

func (s *Service) History(ctx context.Context, userID uint, limit int) ([]models.Upload, error) {
	return s.repo.ListUploads(ctx, userID, limit)
}

// Denoise stores the upload, blurs it, scores the result against the noisy
// input and records both rows. With withPatches set it also cuts PatchCount
// matching crops. loggedIn false performs no writes at all.
func (s *Service) Denoise(ctx context.Context, userID uint, loggedIn bool, filename string, data []byte, withPatches bool) (*Result, error) {
	if !loggedIn {
		return nil, ErrNotLoggedIn
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}

	if _, err := denoise.CheckDimensions(bytes.NewReader(data), s.maxPixels); err != nil {
		return nil, err
	}

	fileID, rawPath, err := s.files.SaveRaw(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	noisy, err := denoise.Load(rawPath)
	if err != nil {
		return nil, err
	}
	clean := denoise.Gaussian5x5(noisy)

	cleanPath, err := s.files.SaveClean(ctx, fileID, clean)
	if err != nil {
		return nil, fmt.Errorf("failed to save denoised image: %w", err)
	}

	reference := metrics.ResizeTo(noisy, clean.Bounds().Size())
	scores, err := metrics.Compare(reference, clean)
	if err != nil {
		return nil, fmt.Errorf("failed to score denoised image: %w", err)
	}

	uploadID, err := s.repo.RecordUpload(ctx, userID, rawPath)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RecordCleanImage(ctx, uploadID, cleanPath, scores.PSNR, scores.SSIM); err != nil {
		return nil, err
	}

	s.log.Info("image denoised",
		zap.Uint("user_id", userID),
		zap.Uint("upload_id", uploadID),
		zap.String("raw", rawPath),
		zap.String("clean", cleanPath),
		zap.Float64("psnr", scores.PSNR),
		zap.Float64("ssim", scores.SSIM))

	result := &Result{
		UploadID:  uploadID,
		FileID:    fileID,
		RawPath:   rawPath,
		CleanPath: cleanPath,
		Scores:    scores,
	}
	if withPatches {
		result.Patches = s.patches(denoise.ToColor(reference), clean)
	}
	return result, nil
}

// FilePath resolves a stored image for serving. Only files belonging to one of
// userID's uploads are returned; anything else is ErrFileNotFound.
func (s *Service) FilePath(ctx context.Context, userID uint, kind storage.Kind, name string) (string, error) {
	path, err := s.files.Path(kind, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileNotFound, err)
	}
	owns, err := s.repo.OwnsFile(ctx, userID, path)
	if err != nil {
		return "", err
	}
	if !owns {
		return "", ErrFileNotFound
	}
	return path, nil
}

// patches cuts PatchCount crops at the same random positions in both images.
// A side no longer than PatchSize starts at 0 and the crop is clipped.
func (s *Service) patches(noisy, clean *image.NRGBA) []Patch {
	b := noisy.Bounds()
	out := make([]Patch, 0, PatchCount)
	for i := 0; i < PatchCount; i++ {
		x := s.randomOffset(b.Dx())
		y := s.randomOffset(b.Dy())
		rect := image.Rect(x, y, x+PatchSize, y+PatchSize).Intersect(b)
		out = append(out, Patch{
			X:     x,
			Y:     y,
			Noisy: noisy.SubImage(rect),
			Clean: clean.SubImage(rect),
		})
	}
	return out
}

func (s *Service) randomOffset(extent int) int {
	if extent <= PatchSize {
		return 0
	}
	return s.rng.Intn(extent - PatchSize)
}
