package commands

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/petermazzocco/go-denoise-project/internal/config"
	"github.com/petermazzocco/go-denoise-project/internal/logger"
)

func setupLogger(level string) (*zap.Logger, error) {
	log, err := logger.New(config.LogConfig{Level: level})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
