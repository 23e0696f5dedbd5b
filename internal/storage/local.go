// Package storage writes raw uploads and cleaned outputs to disk under names
// that are guaranteed not to overwrite an existing file.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxKeyAttempts = 5

var (
	ErrKeyExhausted = errors.New("could not find an unused file name")
	ErrInvalidName  = errors.New("invalid file name")
)

type Kind string

const (
	KindRaw   Kind = "raw"
	KindClean Kind = "clean"
)

// Mirror receives a copy of every file written locally.
type Mirror interface {
	Put(ctx context.Context, kind Kind, name, contentType string, data []byte) error
}

type Local struct {
	RawDir   string
	CleanDir string

	mirror Mirror
	newID  func() string
	log    *zap.Logger
}

// NewLocal creates both directories if they are absent.
func NewLocal(rawDir, cleanDir string, log *zap.Logger) (*Local, error) {
	for _, dir := range []string{rawDir, cleanDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Local{
		RawDir:   rawDir,
		CleanDir: cleanDir,
		newID:    uuid.NewString,
		log:      log,
	}, nil
}

// WithMirror attaches an optional remote copy target.
func (s *Local) WithMirror(m Mirror) *Local {
	s.mirror = m
	return s
}

// SaveRaw stores data as "{id}_{originalName}" and returns the id and path.
// A fresh id is drawn whenever the name is already taken.
func (s *Local) SaveRaw(ctx context.Context, originalName string, data []byte) (string, string, error) {
	base := filepath.Base(originalName)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, originalName)
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		id := s.newID()
		name := fmt.Sprintf("%s_%s", id, base)
		path := filepath.Join(s.RawDir, name)

		err := writeExclusive(path, data)
		if errors.Is(err, fs.ErrExist) {
			s.log.Warn("raw file name collision, drawing a new id", zap.String("name", name))
			continue
		}
		if err != nil {
			return "", "", err
		}

		s.mirrorCopy(ctx, KindRaw, name, contentTypeFor(base), data)
		return id, path, nil
	}
	return "", "", ErrKeyExhausted
}

// SaveClean encodes img as PNG to "{id}_clean.png".
func (s *Local) SaveClean(ctx context.Context, id string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode clean image: %w", err)
	}

	name := fmt.Sprintf("%s_clean.png", id)
	path := filepath.Join(s.CleanDir, name)
	if err := writeExclusive(path, buf.Bytes()); err != nil {
		return "", err
	}

	s.mirrorCopy(ctx, KindClean, name, "image/png", buf.Bytes())
	return path, nil
}

// Path resolves a stored file name for serving. Names containing path
// separators are rejected.
func (s *Local) Path(kind Kind, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	switch kind {
	case KindRaw:
		return filepath.Join(s.RawDir, name), nil
	case KindClean:
		return filepath.Join(s.CleanDir, name), nil
	default:
		return "", fmt.Errorf("unknown storage kind: %s", kind)
	}
}

func (s *Local) mirrorCopy(ctx context.Context, kind Kind, name, contentType string, data []byte) {
	if s.mirror == nil {
		return
	}
	// The local copy is authoritative, so a failed mirror write is only logged.
	if err := s.mirror.Put(ctx, kind, name, contentType, data); err != nil {
		s.log.Error("failed to mirror file", zap.String("kind", string(kind)), zap.String("name", name), zap.Error(err))
	}
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
