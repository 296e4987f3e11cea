package storage

import (
	"fmt"
	"io"
	"sort"

	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// WriteReportXLSX renders a report as a one-sheet workbook with a header row
// of column names in lexicographic order.
func WriteReportXLSX(w io.Writer, result models.ReportResult) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := result.Name
	if sheet == "" {
		sheet = "report"
	}
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	columns := reportColumns(result.Rows)
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range result.Rows {
		values := make([]interface{}, len(columns))
		for j, c := range columns {
			if v, ok := row[c]; ok && v != nil {
				values[j] = v
			} else {
				values[j] = ""
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

func reportColumns(rows []map[string]interface{}) []string {
	seen := map[string]struct{}{}
	var columns []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}
