package export

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rapidassist/docpipe/internal/common"
)

// SheetRows is the named data groups for a workbook: one sheet per key.
type SheetRows map[string][]map[string]any

// TemplateHeaders optionally fixes the column order per sheet; columns
// not named by a row render empty, extra row keys are dropped.
type TemplateHeaders map[string][]string

// BuildWorkbook renders one sheet per data group. Without template
// headers the column order is the sorted key set of the group's rows.
func BuildWorkbook(data SheetRows, headers TemplateHeaders) (*excelize.File, error) {
	f := excelize.NewFile()
	first := true

	sheets := make([]string, 0, len(data))
	for name := range data {
		sheets = append(sheets, name)
	}
	sort.Strings(sheets)

	for _, sheet := range sheets {
		rows := data[sheet]
		if first {
			// excelize seeds a default sheet; rename it for the first group.
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
			first = false
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}

		cols := headers[sheet]
		if len(cols) == 0 {
			cols = collectColumns(rows)
		}

		for i, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			if err := f.SetCellValue(sheet, cell, col); err != nil {
				return nil, err
			}
		}
		for r, row := range rows {
			for c, col := range cols {
				v, ok := row[col]
				if !ok {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return nil, err
				}
			}
		}
	}
	return f, nil
}

func collectColumns(rows []map[string]any) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// SaveWorkbook builds the workbook and writes it under destDir,
// following the same directory convention as SaveResults.
func (w *Writer) SaveWorkbook(data SheetRows, headers TemplateHeaders, destDir, filename string) (string, error) {
	f, err := BuildWorkbook(data, headers)
	if err != nil {
		return "", common.PersistenceError("build workbook", err)
	}
	defer func() { _ = f.Close() }()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", common.PersistenceError("create output directory "+destDir, err)
	}
	if filename == "" {
		filename = "processed_" + time.Now().UTC().Format("20060102T150405") + ".xlsx"
	}
	path := filepath.Join(destDir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", common.PersistenceError("write workbook "+path, err)
	}

	w.logger.Info("export.xlsx.ok", "path", path, "sheets", len(data))
	return path, nil
}
