package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cohort-extractor/internal/models"

	"github.com/xuri/excelize/v2"
)

// ErrRowCountMismatch is returned by VerifyCohort when the workbook does not hold
// the expected number of data rows.
var ErrRowCountMismatch = errors.New("row count mismatch")

// CohortHeader is the header row of the exported sheet, in column order.
var CohortHeader = []string{
	"MRN",
	"PrimaryDiagnosis",
	"Study",
	"Date of Birth",
	"EncounterDate",
	"Age",
}

var columnWidths = []float64{
	12, // MRN
	20, // PrimaryDiagnosis
	12, // Study
	14, // Date of Birth
	14, // EncounterDate
	6,  // Age
}

// WriteCohort writes rows to an xlsx workbook at path. The workbook is written
// to a temporary file in the same directory and renamed over path only once it
// is complete, so a failed run leaves any previous file untouched.
func WriteCohort(path, sheetName string, rows []models.CohortRow) error {
	f, err := buildWorkbook(sheetName, rows)
	if err != nil {
		return err
	}
	defer f.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cohort-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}
	committed = true

	return nil
}

func buildWorkbook(sheetName string, rows []models.CohortRow) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to delete default sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range CohortHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, columnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2) // row 1 is the header
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		// MRN stays text so leading zeros survive
		values := []interface{}{r.MRN, r.PrimaryDiagnosis, r.Study, r.DateOfBirth, r.EncounterDate, r.Age}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	return f, nil
}

// ReadCohort reads a workbook written by WriteCohort back into rows.
func ReadCohort(path, sheetName string) ([]models.CohortRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	cells, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", sheetName)
	}
	for i, want := range CohortHeader {
		if i >= len(cells[0]) || cells[0][i] != want {
			return nil, fmt.Errorf("unexpected header in column %d: want %q", i+1, want)
		}
	}

	rows := make([]models.CohortRow, 0, len(cells)-1)
	for i, line := range cells[1:] {
		// GetRows drops trailing empty cells
		for len(line) < len(CohortHeader) {
			line = append(line, "")
		}
		age, err := strconv.Atoi(line[5])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid age %q: %w", i+2, line[5], err)
		}
		rows = append(rows, models.CohortRow{
			MRN:              line[0],
			PrimaryDiagnosis: line[1],
			Study:            line[2],
			DateOfBirth:      line[3],
			EncounterDate:    line[4],
			Age:              age,
		})
	}

	return rows, nil
}

// VerifyCohort reads the workbook back and checks it holds exactly want data rows.
func VerifyCohort(path, sheetName string, want int) error {
	rows, err := ReadCohort(path, sheetName)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", path, err)
	}
	if len(rows) != want {
		return fmt.Errorf("%w: %s has %d rows, expected %d", ErrRowCountMismatch, path, len(rows), want)
	}
	return nil
}
