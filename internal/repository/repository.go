// Package repository stores users, uploads and denoising results. Every write
// is a single statement; rows are never updated or deleted.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-denoise-project/models"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("an account with this username already exists")
)

// dummyHash is compared against when the username is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)

type NewUser struct {
	Username string
	Password string
	Email    string
	Phone    string
	Gender   string
	Address  string
}

type Repository struct {
	db   *gorm.DB
	log  *zap.Logger
	now  func() time.Time
	cost int
}

func New(db *gorm.DB, log *zap.Logger) *Repository {
	return &Repository{db: db, log: log, now: time.Now, cost: bcrypt.DefaultCost}
}

// RegisterUser inserts the user with a salted password hash. A duplicate
// username is detected by the unique constraint on insert.
func (r *Repository) RegisterUser(ctx context.Context, u NewUser) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), r.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     u.Username,
		PasswordHash: string(hash),
		Email:        u.Email,
		Phone:        u.Phone,
		Gender:       u.Gender,
		Address:      u.Address,
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate returns the user only when both username and password match
// exactly. Usernames are compared case-sensitively.
func (r *Repository) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (r *Repository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with ID %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// FindOrCreateOAuthUser returns the account bound to the provider identity,
// creating it on first login with the email as username. It never links to an
// existing account: if the email is already taken as a username the login is
// refused with ErrAccountExists. Such accounts have no password and cannot use
// the password login.
func (r *Repository) FindOrCreateOAuthUser(ctx context.Context, provider, providerUserID, email string) (*models.User, error) {
	if provider == "" || providerUserID == "" {
		return nil, errors.New("external identity is incomplete")
	}

	var user models.User
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user = models.User{
		Username:       email,
		Email:          email,
		Provider:       provider,
		ProviderUserID: providerUserID,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.log.Warn("oauth login refused, username already registered",
				zap.String("provider", provider), zap.String("email", email))
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	r.log.Info("oauth user created", zap.Uint("user_id", user.ID), zap.String("provider", provider))
	return &user, nil
}

// RecordUpload stores the noisy image path with the current time.
func (r *Repository) RecordUpload(ctx context.Context, userID uint, filename string) (uint, error) {
	upload := &models.Upload{
		UserID:     userID,
		Filename:   filename,
		UploadTime: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(upload).Error; err != nil {
		return 0, fmt.Errorf("failed to record upload: %w", err)
	}
	return upload.ID, nil
}

func (r *Repository) RecordCleanImage(ctx context.Context, uploadID uint, filename string, psnr, ssim float64) error {
	clean := &models.CleanImage{
		UploadID:      uploadID,
		CleanFilename: filename,
		PSNR:          psnr,
		SSIM:          ssim,
	}
	if err := r.db.WithContext(ctx).Create(clean).Error; err != nil {
		return fmt.Errorf("failed to record clean image: %w", err)
	}
	return nil
}

// ListUploads returns the user's uploads, newest first, with their results.
func (r *Repository) ListUploads(ctx context.Context, userID uint, limit int) ([]models.Upload, error) {
	var uploads []models.Upload
	q := r.db.WithContext(ctx).
		Preload("CleanImages").
		Where("user_id = ?", userID).
		Order("upload_time desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// OwnsFile reports whether filename is the stored path of one of the user's
// uploads or of a denoised image derived from them.
func (r *Repository) OwnsFile(ctx context.Context, userID uint, filename string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Upload{}).
		Where("user_id = ? AND filename = ?", userID, filename).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check upload owner: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).Model(&models.CleanImage{}).
		Joins("JOIN uploads ON uploads.id = clean_images.upload_id").
		Where("uploads.user_id = ? AND clean_images.clean_filename = ?", userID, filename).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check clean image owner: %w", err)
	}
	return n > 0, nil
}
