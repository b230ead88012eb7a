package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/entity"
	"github.com/rapidassist/docpipe/internal/folder"
	"github.com/rapidassist/docpipe/internal/prompt"
)

// BatchItem is one unit of work for the dispatcher: extracted text, or
// raw image bytes for models that accept inline images.
type BatchItem struct {
	Name     string
	Path     string
	Text     string
	IsImage  bool
	Content  []byte
	MIMEType string
}

// BatchItemResult is the per-item outcome, one per dispatched item, in
// input order.
type BatchItemResult struct {
	File         string                 `json:"file"`
	Path         string                 `json:"path,omitempty"`
	Response     string                 `json:"response"`
	Success      bool                   `json:"success"`
	OutputFormat constants.OutputFormat `json:"outputFormat"`
}

// BatchOptions configures a dispatch run.
type BatchOptions struct {
	MaxConcurrent int                    // window size; default 3
	CallTimeout   time.Duration          // per-call ceiling; 0 = none
	OutputFormat  constants.OutputFormat // stamped onto each result
}

func (o *BatchOptions) defaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.OutputFormat == "" {
		o.OutputFormat = constants.FormatText
	}
}

// ProcessingMode selects how a folder's files reach the AI service.
type ProcessingMode string

const (
	ModeCombined   ProcessingMode = "combined"   // one call over the merged corpus
	ModeIndividual ProcessingMode = "individual" // one call per file, grouped by folder
)

// FolderResult is the outcome of ProcessFolder: either one combined
// response or per-folder grouped item results.
type FolderResult struct {
	Combined     bool                         `json:"combined"`
	Response     string                       `json:"response,omitempty"`
	Responses    map[string][]BatchItemResult `json:"responses,omitempty"`
	OutputFormat constants.OutputFormat       `json:"outputFormat"`
}

// Dispatcher sends prompts to the AI service in fixed-size concurrency
// windows, isolating per-item failure.
type Dispatcher struct {
	gen      Generator
	composer *prompt.Composer
	logger   *slog.Logger
}

func NewDispatcher(gen Generator, composer *prompt.Composer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if composer == nil {
		composer = prompt.NewComposer(0)
	}
	return &Dispatcher{gen: gen, composer: composer, logger: logger}
}

// ProcessBatch dispatches each item and returns one result per item in
// the original order. Items run concurrently within a window of
// opts.MaxConcurrent; a window fully resolves before the next starts.
// One item's failure never cancels or delays its siblings.
func (d *Dispatcher) ProcessBatch(ctx context.Context, basePrompt string, items []BatchItem, opts BatchOptions) []BatchItemResult {
	opts.defaults()
	start := time.Now()
	results := make([]BatchItemResult, len(items))

	for lo := 0; lo < len(items); lo += opts.MaxConcurrent {
		hi := lo + opts.MaxConcurrent
		if hi > len(items) {
			hi = len(items)
		}

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = d.processItem(ctx, basePrompt, items[i], opts)
			}(i)
		}
		wg.Wait()
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	d.logger.Info("batch.done",
		"items", len(items),
		"failed", failed,
		"window", opts.MaxConcurrent,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}

func (d *Dispatcher) processItem(ctx context.Context, basePrompt string, item BatchItem, opts BatchOptions) BatchItemResult {
	if opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
		defer cancel()
	}

	var req Request
	if item.IsImage {
		req = Request{Parts: []Part{
			{Text: basePrompt},
			{Inline: &InlineData{MIMEType: item.MIMEType, Data: item.Content}},
		}}
	} else {
		req = TextRequest(d.composer.ComposeSingle(basePrompt, "", item.Text).Text)
	}

	text, err := d.gen.Generate(ctx, req)
	if err != nil {
		d.logger.Warn("batch.item.failed", "file", item.Name, "error", err)
		return BatchItemResult{
			File:         item.Name,
			Path:         item.Path,
			Response:     fmt.Sprintf("Error processing file: %v", err),
			Success:      false,
			OutputFormat: opts.OutputFormat,
		}
	}
	return BatchItemResult{
		File:         item.Name,
		Path:         item.Path,
		Response:     text,
		Success:      true,
		OutputFormat: opts.OutputFormat,
	}
}

// FolderOptions configures ProcessFolder.
type FolderOptions struct {
	Mode              ProcessingMode
	MaxCombinedLength int
	Batch             BatchOptions
}

// ProcessFolder runs a processed structure through the AI service in
// either combined or individual mode.
func (d *Dispatcher) ProcessFolder(ctx context.Context, instruction string, processed entity.ProcessedStructure, opts FolderOptions) (*FolderResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeCombined
	}
	opts.Batch.defaults()

	switch opts.Mode {
	case ModeCombined:
		corpus := folder.CombineText(processed, folder.CombineOptions{
			IncludeFilePaths: true,
			MaxLength:        opts.MaxCombinedLength,
		})
		composed := d.composer.ComposeCombined(instruction, "", corpus)

		callCtx := ctx
		if opts.Batch.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, opts.Batch.CallTimeout)
			defer cancel()
		}
		text, err := d.gen.Generate(callCtx, TextRequest(composed.Text))
		if err != nil {
			return nil, common.AIServiceError("combined folder generation failed", err)
		}
		return &FolderResult{
			Combined:     true,
			Response:     text,
			OutputFormat: opts.Batch.OutputFormat,
		}, nil

	case ModeIndividual:
		responses := make(map[string][]BatchItemResult, len(processed))
		for _, folderPath := range processed.SortedPaths() {
			items, precomputed := itemsForFolder(processed[folderPath], opts.Batch.OutputFormat)
			dispatched := d.ProcessBatch(ctx, instruction, items, opts.Batch)
			responses[folderPath] = mergeResults(processed[folderPath], dispatched, precomputed)
		}
		return &FolderResult{
			Combined:     false,
			Responses:    responses,
			OutputFormat: opts.Batch.OutputFormat,
		}, nil

	default:
		return nil, common.ValidationErrorf("unknown processing mode: %s", opts.Mode)
	}
}

// itemsForFolder turns extraction results into batch items. Files whose
// extraction already failed are not dispatched; they become precomputed
// failed results so the output still has one entry per file.
func itemsForFolder(results []entity.ExtractionResult, format constants.OutputFormat) ([]BatchItem, map[int]BatchItemResult) {
	items := make([]BatchItem, 0, len(results))
	precomputed := make(map[int]BatchItemResult)
	for i, res := range results {
		if !res.Processed {
			precomputed[i] = BatchItemResult{
				File:         res.File.Name,
				Path:         res.File.DisplayPath(),
				Response:     fmt.Sprintf("Error processing file: %s", res.Err),
				Success:      false,
				OutputFormat: format,
			}
			continue
		}
		item := BatchItem{
			Name: res.File.Name,
			Path: res.File.DisplayPath(),
			Text: res.Text,
		}
		if constants.IsImageExt(res.File.Ext()) && len(res.File.Content) > 0 {
			item.IsImage = true
			item.Content = res.File.Content
			item.MIMEType = res.File.MimeType
		}
		items = append(items, item)
	}
	return items, precomputed
}

// mergeResults re-interleaves dispatched results with precomputed
// failures so output order matches the input file order.
func mergeResults(results []entity.ExtractionResult, dispatched []BatchItemResult, precomputed map[int]BatchItemResult) []BatchItemResult {
	merged := make([]BatchItemResult, 0, len(results))
	next := 0
	for i := range results {
		if r, ok := precomputed[i]; ok {
			merged = append(merged, r)
			continue
		}
		merged = append(merged, dispatched[next])
		next++
	}
	return merged
}
