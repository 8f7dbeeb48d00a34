package template

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelTableLoader reads a template reference workbook: the first sheet holds
// topic/content pairs in its first two columns, header row included.
type ExcelTableLoader struct{}

func NewExcelTableLoader() *ExcelTableLoader {
	return &ExcelTableLoader{}
}

func (l *ExcelTableLoader) Load(ctx context.Context, path string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open template workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("template workbook has no sheets")
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	table := make(map[string]string)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 2 {
			continue
		}
		key := strings.TrimSpace(row[0])
		value := strings.TrimSpace(row[1])
		if key == "" || value == "" {
			continue
		}
		table[key] = value
	}
	return table, nil
}
