package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/llm"
)

func TestFormatTextPassthrough(t *testing.T) {
	out, err := Format("plain answer", constants.FormatText, FormatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", out)
}

func TestFormatTextStringifiesObjects(t *testing.T) {
	out, err := Format(map[string]any{"a": 1}, constants.FormatText, FormatOptions{})
	require.NoError(t, err)
	assert.Contains(t, out.(string), `"a": 1`)
}

func TestFormatJSONRoundTrip(t *testing.T) {
	obj := map[string]any{"answer": "yes", "items": []any{"a", "b"}}

	out, err := Format(obj, constants.FormatJSON, FormatOptions{})
	require.NoError(t, err)
	assert.Equal(t, obj, out)
}

func TestFormatJSONParsesStrings(t *testing.T) {
	out, err := Format(`{"x": 2}`, constants.FormatJSON, FormatOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(2)}, out)
}

func TestFormatJSONWrapsUnparseableStrings(t *testing.T) {
	out, err := Format("not json", constants.FormatJSON, FormatOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "not json"}, out)
}

func TestFormatJSONSchemaValidation(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"answer"},
		"properties": map[string]any{
			"answer": map[string]any{"type": "string"},
		},
	}

	_, err := Format(`{"answer": "fine"}`, constants.FormatJSON, FormatOptions{Schema: schema})
	assert.NoError(t, err)

	_, err = Format(`{"wrong": true}`, constants.FormatJSON, FormatOptions{Schema: schema})
	assert.Error(t, err)
}

func TestFormatHTMLEscapesAndBreaks(t *testing.T) {
	out, err := Format("a < b\nnext & done", constants.FormatHTML, FormatOptions{Title: "Report"})
	require.NoError(t, err)
	html := out.(string)
	assert.Contains(t, html, "<title>Report</title>")
	assert.Contains(t, html, "a &lt; b<br>next &amp; done")
	assert.Contains(t, html, "<!DOCTYPE html>")
}

func TestFormatHTMLObjectsFenced(t *testing.T) {
	out, err := Format(map[string]any{"k": "<v>"}, constants.FormatHTML, FormatOptions{})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "<pre>")
	assert.Contains(t, out.(string), "&lt;v&gt;")
}

func TestFormatMarkdown(t *testing.T) {
	out, err := Format("body text", constants.FormatMarkdown, FormatOptions{Title: "Summary"})
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\nbody text", out)

	out, err = Format(map[string]any{"k": 1}, constants.FormatMarkdown, FormatOptions{})
	require.NoError(t, err)
	md := out.(string)
	assert.True(t, strings.HasPrefix(md, "# AI Response\n\n```json\n"))
	assert.True(t, strings.HasSuffix(md, "\n```"))
}

func TestSaveResults(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(nil)

	results := []llm.BatchItemResult{
		{File: "a.txt", Response: "first"},
		{Response: "second"}, // ordinal fallback
	}
	require.NoError(t, w.SaveResults(results, filepath.Join(dir, "out"), constants.FormatMarkdown))

	b, err := os.ReadFile(filepath.Join(dir, "out", "a.txt.md"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))

	b, err = os.ReadFile(filepath.Join(dir, "out", "response_2.md"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))
}

func TestCleanupOldFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(nil)

	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("y"), 0o644))
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	removed, err := w.CleanupOldFiles(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestCleanupMissingDirIsNoop(t *testing.T) {
	w := NewWriter(nil)
	removed, err := w.CleanupOldFiles(filepath.Join(t.TempDir(), "absent"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSaveWorkbook(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(nil)

	data := SheetRows{
		"Invoices": {
			{"vendor": "acme", "total": 12.5},
			{"vendor": "globex", "total": 99},
		},
	}
	headers := TemplateHeaders{"Invoices": {"total", "vendor"}}

	path, err := w.SaveWorkbook(data, headers, dir, "report.xlsx")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"total", "vendor"}, rows[0])
	assert.Equal(t, "acme", rows[1][1])
}

func TestBuildWorkbookDerivesColumns(t *testing.T) {
	f, err := BuildWorkbook(SheetRows{
		"Data": {{"b": 1, "a": 2}},
	}, nil)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Data")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"a", "b"}, rows[0])
}
