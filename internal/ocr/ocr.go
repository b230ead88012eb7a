package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/entity"
)

type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	WorkDir     string // scratch dir for per-call image files; if empty -> os.TempDir()
}

// Engine recognizes text in raster images. Each call provisions its own
// scratch file and releases it on every exit path, so a failed
// recognition never leaks resources.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Engine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// RecognizeImage extracts text from the image bytes. The result may be
// empty; engine failures come back as classified extraction errors.
func (e *Engine) RecognizeImage(ctx context.Context, file entity.FileRecord) (string, error) {
	start := time.Now()

	path, cleanup, err := e.provision(file)
	if err != nil {
		return "", common.ExtractionError("ocr scratch file for "+file.Name, err)
	}
	defer cleanup()

	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		e.logger.Error("ocr.failed",
			"file", file.Name,
			"stderr", truncate(string(errb), 8<<10),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", common.ExtractionError("ocr failed for "+file.Name, err)
	}

	e.logger.Debug("ocr.ok",
		"file", file.Name,
		"text_len", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return string(out), nil
}

// provision writes the image bytes to a scratch file the engine binary
// can read, returning a cleanup that always removes it.
func (e *Engine) provision(file entity.FileRecord) (string, func(), error) {
	ext := filepath.Ext(file.Name)
	if ext == "" {
		ext = ".png"
	}
	tmp, err := os.CreateTemp(e.cfg.WorkDir, "ocr-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := tmp.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := tmp.Write(file.Content); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close scratch file: %w", err)
	}
	return path, cleanup, nil
}
