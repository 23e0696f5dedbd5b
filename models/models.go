package models

import (
	"time"
)

type User struct {
	ID           uint `gorm:"primarykey"`
	CreatedAt    time.Time
	Username     string `gorm:"size:255;not null;unique"`
	PasswordHash string `json:"-" gorm:"size:255"`
	Email        string `gorm:"size:255"`
	Phone        string `gorm:"size:64"`
	Gender       string `gorm:"size:16"`
	Address      string `gorm:"type:text"`

	// Provider and ProviderUserID identify accounts created through an
	// external login. Both are empty for password accounts.
	Provider       string `gorm:"size:32;index:idx_users_provider_identity"`
	ProviderUserID string `gorm:"size:255;index:idx_users_provider_identity"`

	Uploads []Upload
}

// Upload is the noisy image a user submitted. Rows are append-only.
type Upload struct {
	ID          uint      `gorm:"primarykey"`
	UserID      uint      `gorm:"index;not null"`
	Filename    string    `gorm:"not null"`
	UploadTime  time.Time `gorm:"not null"`
	CleanImages []CleanImage
}

// CleanImage is the denoised output of an Upload together with the scores
// comparing it against the noisy input.
type CleanImage struct {
	ID            uint   `gorm:"primarykey"`
	UploadID      uint   `gorm:"index;not null"`
	CleanFilename string `gorm:"not null"`
	PSNR          float64
	SSIM          float64
}

type Session struct {
	ID        string `gorm:"primarykey;size:36"`
	UserID    uint   `gorm:"index;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}

// Expired reports whether the session is no longer valid at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// All lists every model the schema migration has to create.
func All() []any {
	return []any{&User{}, &Upload{}, &CleanImage{}, &Session{}}
}
