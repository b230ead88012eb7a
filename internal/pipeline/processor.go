package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/entity"
	"github.com/rapidassist/docpipe/internal/export"
	"github.com/rapidassist/docpipe/internal/folder"
	"github.com/rapidassist/docpipe/internal/jobs"
	"github.com/rapidassist/docpipe/internal/llm"
	"github.com/rapidassist/docpipe/internal/prompt"
)

// TemplateSource supplies prompt templates by name.
type TemplateSource interface {
	GetTemplate(name string) (string, error)
}

// FolderPayload is the persisted input of a folder-processing job.
type FolderPayload struct {
	Files    entity.FolderStructure `json:"files"`
	Prompt   string                 `json:"prompt"`
	Template string                 `json:"template,omitempty"`
	Options  FolderJobOptions       `json:"options"`
}

// FolderJobOptions selects the processing mode and output handling.
type FolderJobOptions struct {
	OutputFormat constants.OutputFormat `json:"outputFormat,omitempty"`
	Mode         llm.ProcessingMode     `json:"processingMode,omitempty"`
	SaveOutput   bool                   `json:"saveOutput,omitempty"`
	OutputDir    string                 `json:"outputDir,omitempty"`
}

// FolderOutcome is the job result stored on completion.
type FolderOutcome struct {
	Combined       bool                              `json:"combined"`
	Response       string                            `json:"response,omitempty"`
	Responses      map[string][]llm.BatchItemResult  `json:"responses,omitempty"`
	OutputFormat   constants.OutputFormat            `json:"outputFormat"`
	FilesProcessed int                               `json:"filesProcessed"`
	FilesFailed    int                               `json:"filesFailed"`
	SavedTo        string                            `json:"savedTo,omitempty"`
	ElapsedMS      int64                             `json:"elapsedMs"`
}

// Config holds processor-level ceilings and output defaults.
type Config struct {
	MaxCombinedLength int
	OutputDir         string
	CallTimeout       time.Duration
	MaxConcurrent     int
}

// Processor ties extraction, prompting, dispatch and export into the
// folder job handler.
type Processor struct {
	aggregator *folder.Aggregator
	dispatcher *llm.Dispatcher
	templates  TemplateSource
	writer     *export.Writer
	cfg        Config
	logger     *slog.Logger
}

func NewProcessor(
	aggregator *folder.Aggregator,
	dispatcher *llm.Dispatcher,
	templates TemplateSource,
	writer *export.Writer,
	cfg Config,
	logger *slog.Logger,
) *Processor {
	if cfg.MaxCombinedLength <= 0 {
		cfg.MaxCombinedLength = constants.MaxCombinedLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		aggregator: aggregator,
		dispatcher: dispatcher,
		templates:  templates,
		writer:     writer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register binds the folder handler to the queue.
func (p *Processor) Register(q *jobs.Queue) {
	q.RegisterHandler(jobs.JobTypeFolder, p.HandleFolder)
}

// HandleFolder executes one folder-processing job end to end:
// accept, extract, compose, dispatch, persist.
func (p *Processor) HandleFolder(ctx context.Context, job *jobs.Job, report func(int)) (json.RawMessage, error) {
	started := time.Now()

	var payload FolderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, common.ValidationErrorf("decode folder payload: %v", err)
	}
	if len(payload.Files) == 0 {
		return nil, common.ValidationError("folder payload has no files")
	}
	if payload.Prompt == "" {
		return nil, common.ValidationError("folder payload has no prompt")
	}
	report(constants.ProgressAccepted)

	instruction := payload.Prompt
	if payload.Template != "" {
		tmpl, err := p.templates.GetTemplate(payload.Template)
		if err != nil {
			return nil, err
		}
		instruction = prompt.WithTemplate(tmpl, payload.Prompt)
	}

	total, byExt := folder.CountFiles(payload.Files)
	p.logger.Info("pipeline.folder.start",
		"job_id", job.ID, "files", total, "by_ext", byExt, "mode", payload.Options.Mode)

	processed := p.aggregator.ProcessStructure(ctx, payload.Files)
	report(constants.ProgressExtracted)

	okCount, failCount := tally(processed)
	report(constants.ProgressAIReady)

	result, err := p.dispatcher.ProcessFolder(ctx, instruction, processed, llm.FolderOptions{
		Mode:              payload.Options.Mode,
		MaxCombinedLength: p.cfg.MaxCombinedLength,
		Batch: llm.BatchOptions{
			MaxConcurrent: p.cfg.MaxConcurrent,
			CallTimeout:   p.cfg.CallTimeout,
			OutputFormat:  payload.Options.OutputFormat,
		},
	})
	if err != nil {
		return nil, err
	}
	report(constants.ProgressAIDone)

	outcome := FolderOutcome{
		Combined:       result.Combined,
		OutputFormat:   result.OutputFormat,
		FilesProcessed: okCount,
		FilesFailed:    failCount,
	}

	if result.Combined {
		rendered, err := export.Format(result.Response, payload.Options.OutputFormat, export.FormatOptions{})
		if err != nil {
			return nil, err
		}
		outcome.Response = renderedString(rendered)
	} else {
		outcome.Responses = make(map[string][]llm.BatchItemResult, len(result.Responses))
		for folderPath, items := range result.Responses {
			out := make([]llm.BatchItemResult, len(items))
			for i, item := range items {
				out[i] = item
				if !item.Success {
					continue
				}
				rendered, err := export.Format(item.Response, payload.Options.OutputFormat, export.FormatOptions{})
				if err != nil {
					return nil, err
				}
				out[i].Response = renderedString(rendered)
			}
			outcome.Responses[folderPath] = out
		}
	}

	if payload.Options.SaveOutput {
		destDir := payload.Options.OutputDir
		if destDir == "" {
			destDir = p.cfg.OutputDir
		}
		if err := p.saveOutcome(outcome, destDir, payload.Options.OutputFormat); err != nil {
			return nil, err
		}
		outcome.SavedTo = destDir
	}
	report(constants.ProgressComplete)

	outcome.ElapsedMS = time.Since(started).Milliseconds()
	raw, err := json.Marshal(outcome)
	if err != nil {
		return nil, common.WrapError(err, "encode folder outcome")
	}
	p.logger.Info("pipeline.folder.ok",
		"job_id", job.ID, "files_ok", okCount, "files_failed", failCount,
		"elapsed_ms", outcome.ElapsedMS)
	return raw, nil
}

func (p *Processor) saveOutcome(outcome FolderOutcome, destDir string, format constants.OutputFormat) error {
	if outcome.Combined {
		results := []llm.BatchItemResult{{
			Response:     outcome.Response,
			Success:      true,
			OutputFormat: format,
		}}
		return p.writer.SaveResults(results, destDir, format)
	}
	var flat []llm.BatchItemResult
	for _, folderPath := range sortedKeys(outcome.Responses) {
		flat = append(flat, outcome.Responses[folderPath]...)
	}
	return p.writer.SaveResults(flat, destDir, format)
}

func tally(processed entity.ProcessedStructure) (ok, failed int) {
	for _, results := range processed {
		for _, res := range results {
			if res.Processed {
				ok++
			} else {
				failed++
			}
		}
	}
	return ok, failed
}

func renderedString(rendered any) string {
	if s, ok := rendered.(string); ok {
		return s
	}
	raw, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		return fmt.Sprint(rendered)
	}
	return string(raw)
}

func sortedKeys(m map[string][]llm.BatchItemResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// deterministic save order across runs
	sort.Strings(keys)
	return keys
}
