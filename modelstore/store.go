package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/krau/neuroscan/config"
)

// Source streams a model artifact.
type Source interface {
	Fetch(ctx context.Context, w io.Writer) error
}

// Ensure returns the local model path, downloading the artifact from
// model_url first when the file is not on disk yet.
func Ensure(ctx context.Context, cfg config.Config) (string, error) {
	path := filepath.Join(cfg.ModelDir, cfg.ModelFileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat model: %w", err)
	}
	if cfg.ModelUrl == "" {
		return "", fmt.Errorf("model file %s not found and no model_url configured", path)
	}

	src, err := SourceFor(cfg)
	if err != nil {
		return "", err
	}
	start := time.Now()
	slog.Info("Downloading model", slog.String("url", redact(cfg.ModelUrl)), slog.String("path", path))
	if err := Download(ctx, src, path); err != nil {
		return "", err
	}
	slog.Info("Model downloaded", slog.String("path", path), slog.Duration("took", time.Since(start)))
	return path, nil
}

// Download writes src to path through a temp file in the same directory,
// so a partial download never lands at path.
func Download(ctx context.Context, src Source, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := src.Fetch(ctx, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}
