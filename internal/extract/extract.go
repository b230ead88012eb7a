package extract

import (
	"log/slog"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/entity"
)

type Config struct {
	MaxFileSizeBytes  int64               // 0 -> constants.MaxFileSizeBytes
	AllowedExtensions map[string]struct{} // nil -> constants.AllowedExtensions
}

// Extractor routes a file to a format-specific text extractor by
// extension. It is pure over the file bytes; no side effects.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = constants.MaxFileSizeBytes
	}
	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = constants.AllowedExtensions
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// ExtractText extracts plain text from the file bytes. Image files are
// not an error: isImage=true tells the caller to route to OCR instead.
func (e *Extractor) ExtractText(file entity.FileRecord) (text string, isImage bool, err error) {
	ext := file.Ext()
	format := constants.MapExtToFormat(ext)

	if format == constants.IMAGE {
		return "", true, nil
	}

	if err := e.validate(file, ext); err != nil {
		return "", false, err
	}

	switch format {
	case constants.PDF:
		text, err = extractPDF(file.Content)
	case constants.SPREADSHEET:
		text, err = extractSpreadsheet(file.Content)
	case constants.WORD:
		text, err = extractDocx(file.Content)
	case constants.TEXT:
		text, err = decodeText(file.Content)
	default:
		// validate() already covers this; kept so the switch is total.
		return "", false, common.ValidationErrorf("unsupported file type: %s", ext)
	}
	if err != nil {
		e.logger.Error("extract.failed", "file", file.Name, "format", string(format), "error", err)
		return "", false, common.ExtractionError("error processing "+file.Name, err)
	}

	e.logger.Debug("extract.ok", "file", file.Name, "format", string(format), "text_len", len(text))
	return text, false, nil
}

// validate enforces the size ceiling and extension allow-list for
// non-image files.
func (e *Extractor) validate(file entity.FileRecord, ext string) error {
	size := file.Size
	if size == 0 {
		size = int64(len(file.Content))
	}
	if size > e.cfg.MaxFileSizeBytes {
		return common.ValidationErrorf("file size exceeds %dMB limit", e.cfg.MaxFileSizeBytes/(1024*1024))
	}
	if _, ok := e.cfg.AllowedExtensions[ext]; !ok {
		return common.ValidationErrorf("unsupported file type: %s", ext)
	}
	return nil
}
