package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SqliteDbType   = "sqlite"
	PostgresDbType = "postgres"

	SessionBackendDB    = "db"
	SessionBackendRedis = "redis"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Session  SessionConfig
	S3       S3Config
	OAuth    OAuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port               int   `validate:"required,min=1,max=65535"`
	MaxUploadBytes     int64 `validate:"required,min=1"`
	MaxImagePixels     int   `validate:"required,min=1"`
	RateLimitPerMinute int   `validate:"min=0"`
}

type DatabaseConfig struct {
	Type string `validate:"required,oneof=sqlite postgres"`
	DSN  string `validate:"required"`
}

type StorageConfig struct {
	UploadDir string `validate:"required"`
	CleanDir  string `validate:"required"`
}

// SessionConfig has no default Secret: SESSION_SECRET must be set so cookies
// are never signed with a published key.
type SessionConfig struct {
	Secret    string        `validate:"required,min=16"`
	TTL       time.Duration `validate:"required"`
	Backend   string        `validate:"required,oneof=db redis"`
	RedisAddr string        `validate:"required_if=Backend redis"`
	Secure    bool
}

// S3Config is optional; an empty Bucket disables mirroring.
type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether uploads should be mirrored to a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type OAuthConfig struct {
	GoogleKey    string
	GoogleSecret string
	CallbackURL  string
}

func (c OAuthConfig) Enabled() bool {
	return c.GoogleKey != "" && c.GoogleSecret != ""
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
	File  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("MAX_IMAGE_PIXELS", 40_000_000)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 20)
	v.SetDefault("DB_TYPE", SqliteDbType)
	v.SetDefault("DSN", "database.db")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("CLEAN_DIR", "clean")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_BACKEND", SessionBackendDB)
	v.SetDefault("SESSION_SECURE", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "auto")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("GOOGLE_KEY", "")
	v.SetDefault("GOOGLE_SECRET", "")
	v.SetDefault("OAUTH_CALLBACK_URL", "http://localhost:3000/auth/google/callback")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:               v.GetInt("PORT"),
			MaxUploadBytes:     v.GetInt64("MAX_UPLOAD_MB") << 20,
			MaxImagePixels:     v.GetInt("MAX_IMAGE_PIXELS"),
			RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		},
		Database: DatabaseConfig{
			Type: v.GetString("DB_TYPE"),
			DSN:  v.GetString("DSN"),
		},
		Storage: StorageConfig{
			UploadDir: v.GetString("UPLOAD_DIR"),
			CleanDir:  v.GetString("CLEAN_DIR"),
		},
		Session: SessionConfig{
			Secret:    v.GetString("SESSION_SECRET"),
			TTL:       v.GetDuration("SESSION_TTL"),
			Backend:   v.GetString("SESSION_BACKEND"),
			RedisAddr: v.GetString("REDIS_ADDR"),
			Secure:    v.GetBool("SESSION_SECURE"),
		},
		S3: S3Config{
			Bucket:          v.GetString("S3_BUCKET"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			Region:          v.GetString("S3_REGION"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		},
		OAuth: OAuthConfig{
			GoogleKey:    v.GetString("GOOGLE_KEY"),
			GoogleSecret: v.GetString("GOOGLE_SECRET"),
			CallbackURL:  v.GetString("OAUTH_CALLBACK_URL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var messages []string
			for _, fieldErr := range validationErrors {
				messages = append(messages, fmt.Sprintf("%s failed on '%s'", fieldErr.Namespace(), fieldErr.Tag()))
			}
			return fmt.Errorf("invalid config: %v", messages)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
