package repository

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-denoise-project/internal/config"
)

// NewTestRepository opens a migrated sqlite database in a temporary directory
// and uses the cheapest bcrypt cost.
func NewTestRepository(t testing.TB) (*Repository, *gorm.DB) {
	t.Helper()

	db, err := Open(config.DatabaseConfig{
		Type: config.SqliteDbType,
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	repo := New(db, zap.NewNop())
	repo.cost = bcrypt.MinCost
	return repo, db
}
