package export

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Mileage Log"

var sheetHeader = []string{
	"Date", "Staff ID", "Staff", "Trip ID", "Start", "End",
	"From", "To", "Miles", "Drive (min)", "Rate ($/mi)", "Cost ($)",
}

// writeXLSX writes the log as a styled worksheet with formula totals
func writeXLSX(path string, l Log) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s %s to %s", l.Title, l.From, l.To)); err != nil {
		return fmt.Errorf("failed to write title: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}

	const headerRow = 3
	for i, h := range sheetHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(sheetHeader))
	_ = f.SetCellStyle(sheetName, "A3", fmt.Sprintf("%s%d", lastCol, headerRow), headerStyle)
	_ = f.SetColWidth(sheetName, "A", "F", 12)
	_ = f.SetColWidth(sheetName, "G", "H", 30)
	_ = f.SetColWidth(sheetName, "I", "L", 12)

	row := headerRow + 1
	for _, e := range l.Entries {
		values := []interface{}{
			e.Date, e.StaffID, e.StaffName, e.TripID, e.StartTime, e.EndTime,
			e.StartAddress, e.EndAddress, e.Miles, e.DriveMinutes, e.CostPerMile, e.Cost,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		_ = f.SetCellStyle(sheetName, fmt.Sprintf("I%d", row), fmt.Sprintf("L%d", row), moneyStyle)
		row++
	}

	_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "TOTAL")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), l.Summary.TripCount)
	if len(l.Entries) > 0 {
		first, last := headerRow+1, row-1
		for _, col := range []string{"I", "J", "L"} {
			formula := fmt.Sprintf("SUM(%s%d:%s%d)", col, first, col, last)
			if err := f.SetCellFormula(sheetName, fmt.Sprintf("%s%d", col, row), formula); err != nil {
				return fmt.Errorf("failed to write totals: %w", err)
			}
		}
	}
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), headerStyle)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
