package folder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/entity"
)

// fakeExtractor treats .png as image, fails names containing "bad",
// otherwise echoes the content.
type fakeExtractor struct{}

func (fakeExtractor) ExtractText(file entity.FileRecord) (string, bool, error) {
	if strings.HasSuffix(file.Name, ".png") {
		return "", true, nil
	}
	if strings.Contains(file.Name, "bad") {
		return "", false, errors.New("parse failure")
	}
	return string(file.Content), false, nil
}

type fakeOCR struct {
	err error
}

func (f fakeOCR) RecognizeImage(_ context.Context, file entity.FileRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "ocr:" + file.Name, nil
}

func TestProcessStructurePerFileIsolation(t *testing.T) {
	a := NewAggregator(fakeExtractor{}, fakeOCR{}, nil)

	structure := entity.FolderStructure{
		"/docs": {
			{Name: "a.txt", Content: []byte("alpha")},
			{Name: "bad.txt", Content: []byte("x")},
			{Name: "scan.png"},
			{Name: "b.txt", Content: []byte("beta")},
		},
	}

	processed := a.ProcessStructure(context.Background(), structure)
	require.Len(t, processed["/docs"], 4)

	assert.True(t, processed["/docs"][0].Processed)
	assert.Equal(t, "alpha", processed["/docs"][0].Text)

	assert.False(t, processed["/docs"][1].Processed)
	assert.Contains(t, processed["/docs"][1].Text, "Error:")
	assert.Equal(t, "parse failure", processed["/docs"][1].Err)

	assert.True(t, processed["/docs"][2].Processed)
	assert.Equal(t, "ocr:scan.png", processed["/docs"][2].Text)

	assert.True(t, processed["/docs"][3].Processed)
	assert.Equal(t, "beta", processed["/docs"][3].Text)
}

func TestProcessStructureIdempotent(t *testing.T) {
	a := NewAggregator(fakeExtractor{}, fakeOCR{}, nil)
	structure := entity.FolderStructure{
		"/": {{Name: "a.txt", Content: []byte("Hello world")}},
	}

	first := a.ProcessStructure(context.Background(), structure)
	second := a.ProcessStructure(context.Background(), structure)
	assert.Equal(t, first["/"][0].Text, second["/"][0].Text)
}

func TestCombineTextSingleFolderOmitsFolderHeader(t *testing.T) {
	processed := entity.ProcessedStructure{
		"/": {
			{File: entity.FileRecord{Name: "a.txt"}, Text: "Hello world", Processed: true},
		},
	}

	combined := CombineText(processed, DefaultCombineOptions())
	assert.NotContains(t, combined, "=== Folder:")
	assert.Contains(t, combined, "--- File: a.txt ---")
	assert.Contains(t, combined, "Hello world")
}

func TestCombineTextMultiFolderHeadersAndOrder(t *testing.T) {
	processed := entity.ProcessedStructure{
		"/b": {{File: entity.FileRecord{Name: "b.txt"}, Text: "bee", Processed: true}},
		"/a": {{File: entity.FileRecord{Name: "a.txt"}, Text: "ay", Processed: true}},
	}

	combined := CombineText(processed, DefaultCombineOptions())
	ia := strings.Index(combined, "=== Folder: /a ===")
	ib := strings.Index(combined, "=== Folder: /b ===")
	require.NotEqual(t, -1, ia)
	require.NotEqual(t, -1, ib)
	assert.Less(t, ia, ib, "folders must combine in deterministic order")
}

func TestCombineTextSkipsFailedAndEmptyFiles(t *testing.T) {
	processed := entity.ProcessedStructure{
		"/": {
			{File: entity.FileRecord{Name: "ok.txt"}, Text: "kept", Processed: true},
			{File: entity.FileRecord{Name: "bad.txt"}, Text: "Error: nope", Processed: false},
			{File: entity.FileRecord{Name: "empty.txt"}, Text: "", Processed: true},
		},
	}

	combined := CombineText(processed, DefaultCombineOptions())
	assert.Contains(t, combined, "kept")
	assert.NotContains(t, combined, "bad.txt")
	assert.NotContains(t, combined, "empty.txt")
}

func TestCombineTextWithoutFilePaths(t *testing.T) {
	processed := entity.ProcessedStructure{
		"/": {{File: entity.FileRecord{Name: "a.txt"}, Text: "body", Processed: true}},
	}

	combined := CombineText(processed, CombineOptions{IncludeFilePaths: false, MaxLength: 1000})
	assert.NotContains(t, combined, "--- File:")
	assert.Equal(t, "body", combined)
}

func TestCombineTextTruncatesToExactCeiling(t *testing.T) {
	processed := entity.ProcessedStructure{
		"/": {{
			File:      entity.FileRecord{Name: "big.txt"},
			Text:      strings.Repeat("x", 2000),
			Processed: true,
		}},
	}

	const max = 500
	combined := CombineText(processed, CombineOptions{IncludeFilePaths: true, MaxLength: max})
	assert.Len(t, combined, max)
	assert.True(t, strings.HasSuffix(combined, constants.TruncationMarker))
}

func TestCountFiles(t *testing.T) {
	structure := entity.FolderStructure{
		"/a": {{Name: "x.pdf"}, {Name: "y.PDF"}, {Name: "z.txt"}},
		"/b": {{Name: "p.png"}},
	}

	total, byExt := CountFiles(structure)
	assert.Equal(t, 4, total)
	assert.Equal(t, 2, byExt["pdf"])
	assert.Equal(t, 1, byExt["txt"])
	assert.Equal(t, 1, byExt["png"])
}
