package constants

import "strings"

// FileFormat classifies a file by how its text is extracted.
type FileFormat string

const (
	PDF         FileFormat = "PDF"
	SPREADSHEET FileFormat = "SPREADSHEET"
	WORD        FileFormat = "WORD"
	TEXT        FileFormat = "TEXT"
	IMAGE       FileFormat = "IMAGE"
	UNSUPPORTED FileFormat = "UNSUPPORTED"
)

// AllowedExtensions holds the non-image extensions accepted for extraction.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"xlsx": {},
	"xls":  {},
	"txt":  {},
	"md":   {},
	"csv":  {},
}

// ImageExtensions holds the raster-image extensions routed to OCR.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"webp": {},
	"tiff": {},
	"tif":  {},
}

// MaxFileSizeBytes is the default per-file size ceiling (10MB).
const MaxFileSizeBytes = 10 * 1024 * 1024

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to its extraction format.
func MapExtToFormat(ext string) FileFormat {
	ext = NormalizeExt(ext)
	if _, ok := ImageExtensions[ext]; ok {
		return IMAGE
	}
	switch ext {
	case "pdf":
		return PDF
	case "xlsx", "xls":
		return SPREADSHEET
	case "docx":
		return WORD
	case "txt", "md", "csv":
		return TEXT
	default:
		return UNSUPPORTED
	}
}

// IsImageExt reports whether the extension belongs to a raster image.
func IsImageExt(ext string) bool {
	_, ok := ImageExtensions[NormalizeExt(ext)]
	return ok
}
