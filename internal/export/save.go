package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/llm"
)

// Writer persists rendered results to disk.
type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// SaveResults writes one file per result into destDir, creating the
// directory if missing. Files are named by the result's file identifier
// or an ordinal fallback, with the extension matching the format.
// Failures here are persistence errors and are raised to the caller:
// they are not attributable to a single item.
func (w *Writer) SaveResults(results []llm.BatchItemResult, destDir string, format constants.OutputFormat) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return common.PersistenceError("create output directory "+destDir, err)
	}

	ext := format.FileExtension()
	for i, res := range results {
		name := res.File
		if name == "" {
			name = fmt.Sprintf("response_%d", i+1)
		}
		path := filepath.Join(destDir, name+ext)
		if err := os.WriteFile(path, []byte(res.Response), 0o644); err != nil {
			return common.PersistenceError("write output file "+path, err)
		}
	}

	w.logger.Info("export.save.ok", "dir", destDir, "files", len(results), "format", string(format))
	return nil
}

// CleanupOldFiles removes generated files older than maxAge and returns
// how many were deleted.
func (w *Writer) CleanupOldFiles(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, common.PersistenceError("read output directory "+dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				w.logger.Warn("export.cleanup.remove_failed", "path", path, "error", err)
				continue
			}
			removed++
			w.logger.Debug("export.cleanup.removed", "path", path)
		}
	}
	return removed, nil
}

// StartCleanupLoop sweeps dir every interval until ctx is done.
func (w *Writer) StartCleanupLoop(ctx context.Context, dir string, maxAge, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := w.CleanupOldFiles(dir, maxAge); err != nil {
					w.logger.Error("export.cleanup.failed", "dir", dir, "error", err)
				} else if n > 0 {
					w.logger.Info("export.cleanup.ok", "dir", dir, "removed", n)
				}
			}
		}
	}()
}
