package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"vendormall/backend/internal/domain"
)

var leaderHeaders = []string{"Rank", "ID", "Name", "Items Sold", "Total Amount"}

type windowRows struct {
	name string
	rows []domain.SalesLeader
}

func windowsOf(leaders domain.SalesLeaders) []windowRows {
	return []windowRows{
		{"Week", leaders.Week},
		{"Month", leaders.Month},
		{"Year", leaders.Year},
	}
}

// WriteCSV writes one row per leader, prefixed with the window it belongs to.
func WriteCSV(w io.Writer, leaders domain.SalesLeaders) error {
	cw := csv.NewWriter(w)
	header := append([]string{"Window"}, leaderHeaders...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, win := range windowsOf(leaders) {
		for i, l := range win.rows {
			record := []string{
				win.name,
				strconv.Itoa(i + 1),
				strconv.FormatInt(l.ID, 10),
				l.Name,
				strconv.FormatInt(l.ItemsSold, 10),
				strconv.FormatInt(l.TotalAmount, 10),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with one sheet per window.
func WriteXLSX(w io.Writer, title string, leaders domain.SalesLeaders) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for idx, win := range windowsOf(leaders) {
		sheet := win.name
		index, err := f.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if idx == 0 {
			f.SetActiveSheet(index)
		}

		if err := f.SetCellValue(sheet, "A1", fmt.Sprintf("%s (%s)", title, win.name)); err != nil {
			return err
		}
		headers := make([]any, len(leaderHeaders))
		for i, h := range leaderHeaders {
			headers[i] = h
		}
		if err := f.SetSheetRow(sheet, "A2", &headers); err != nil {
			return err
		}
		_ = f.SetRowStyle(sheet, 2, 2, headerStyle)

		for i, l := range win.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+3)
			if err != nil {
				return err
			}
			row := []any{i + 1, l.ID, l.Name, l.ItemsSold, l.TotalAmount}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return err
			}
		}
		_ = f.SetColWidth(sheet, "C", "C", 32)
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	return f.Write(w)
}
