package folder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/entity"
	"github.com/rapidassist/docpipe/internal/utils"
)

// TextExtractor is the extractor-dispatch dependency.
type TextExtractor interface {
	ExtractText(file entity.FileRecord) (text string, isImage bool, err error)
}

// ImageRecognizer is the OCR dependency for files the dispatcher flags
// as images.
type ImageRecognizer interface {
	RecognizeImage(ctx context.Context, file entity.FileRecord) (string, error)
}

// Aggregator walks a folder structure, extracting text per file with
// per-file failure isolation.
type Aggregator struct {
	extractor TextExtractor
	ocr       ImageRecognizer
	logger    *slog.Logger
}

func NewAggregator(extractor TextExtractor, ocr ImageRecognizer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{extractor: extractor, ocr: ocr, logger: logger}
}

// ProcessStructure produces one ExtractionResult per input file, in the
// input folder/file order. A failed file is flagged inline; it never
// aborts the walk.
func (a *Aggregator) ProcessStructure(ctx context.Context, structure entity.FolderStructure) entity.ProcessedStructure {
	start := time.Now()
	processed := make(entity.ProcessedStructure, len(structure))
	failures := 0

	for _, folderPath := range structure.SortedPaths() {
		files := structure[folderPath]
		results := make([]entity.ExtractionResult, 0, len(files))
		for _, file := range files {
			res := a.processFile(ctx, file)
			if !res.Processed {
				failures++
			}
			results = append(results, res)
		}
		processed[folderPath] = results
	}

	total, _ := CountFiles(structure)
	a.logger.Info("folder.process.done",
		"folders", len(structure),
		"files", total,
		"failures", failures,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return processed
}

func (a *Aggregator) processFile(ctx context.Context, file entity.FileRecord) entity.ExtractionResult {
	text, isImage, err := a.extractor.ExtractText(file)
	if err == nil && isImage {
		if a.ocr == nil {
			err = common.ExtractionError("no OCR engine configured for "+file.Name, nil)
		} else {
			text, err = a.ocr.RecognizeImage(ctx, file)
		}
	}
	if err != nil {
		a.logger.Warn("folder.file.failed", "file", file.Name, "error", err)
		return entity.ExtractionResult{
			File:      file,
			Text:      fmt.Sprintf("Error: %v", err),
			Processed: false,
			Err:       err.Error(),
		}
	}
	return entity.ExtractionResult{File: file, Text: text, Processed: true}
}

// CombineOptions configures CombineText.
type CombineOptions struct {
	IncludeFilePaths bool
	MaxLength        int // 0 -> constants.MaxCombinedLength
}

// DefaultCombineOptions matches the synchronous API defaults.
func DefaultCombineOptions() CombineOptions {
	return CombineOptions{IncludeFilePaths: true, MaxLength: constants.MaxCombinedLength}
}

// CombineText concatenates all successfully extracted text with folder
// and file header separators. Folder headers appear only when more than
// one folder is present. Text beyond the ceiling is cut deterministically
// so the result is exactly MaxLength long and ends with the truncation
// marker; content is never dropped silently.
func CombineText(processed entity.ProcessedStructure, opts CombineOptions) string {
	if opts.MaxLength <= 0 {
		opts.MaxLength = constants.MaxCombinedLength
	}

	var sb strings.Builder
	multiFolder := len(processed) > 1
	for _, folderPath := range processed.SortedPaths() {
		if multiFolder {
			sb.WriteString(fmt.Sprintf("\n\n=== Folder: %s ===\n\n", folderPath))
		}
		for _, res := range processed[folderPath] {
			if !res.Processed || res.Text == "" {
				continue
			}
			if opts.IncludeFilePaths {
				sb.WriteString(fmt.Sprintf("\n--- File: %s ---\n\n", res.File.DisplayPath()))
			}
			sb.WriteString(res.Text)
			sb.WriteString("\n\n")
		}
	}

	return utils.Truncate(strings.TrimSpace(sb.String()), opts.MaxLength)
}

// CountFiles summarizes a structure for instrumentation: total file
// count and counts per extension.
func CountFiles(structure entity.FolderStructure) (total int, byExt map[string]int) {
	byExt = make(map[string]int)
	for _, files := range structure {
		total += len(files)
		for _, f := range files {
			byExt[f.Ext()]++
		}
	}
	return total, byExt
}
