package entity

import (
	"path/filepath"
	"sort"

	"github.com/rapidassist/docpipe/constants"
)

// FileRecord is a single ingested file. Immutable once built by the
// upload layer.
type FileRecord struct {
	Name     string
	Path     string // original path inside the uploaded folder, if any
	MimeType string
	Content  []byte
	Size     int64
}

// Ext returns the normalized extension without the dot.
func (f FileRecord) Ext() string {
	return constants.NormalizeExt(filepath.Ext(f.Name))
}

// DisplayPath prefers the folder-relative path over the bare name.
func (f FileRecord) DisplayPath() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Name
}

// ExtractionResult is the per-file extraction outcome. Exactly one is
// produced per FileRecord, failed or not.
type ExtractionResult struct {
	File      FileRecord
	Text      string
	Processed bool
	Err       string
}

// FolderStructure maps a folder path to its ordered list of files.
// It is built by the upload layer and treated as read-only here.
type FolderStructure map[string][]FileRecord

// ProcessedStructure mirrors a FolderStructure with one ExtractionResult
// per input file.
type ProcessedStructure map[string][]ExtractionResult

// SortedPaths returns the folder paths in lexical order so walks are
// deterministic across runs.
func (s FolderStructure) SortedPaths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SortedPaths returns the folder paths in lexical order.
func (s ProcessedStructure) SortedPaths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
