// Package export turns stored shifts into a spreadsheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"cartellino/internal/shift"
	"cartellino/internal/storage"
	"cartellino/internal/tracker"
)

const SheetName = "Timesheet"

var header = []string{"Date", "Start", "Leisure", "Work", "Lunch", "End"}

// Defaults are the shift lengths used for every row.
type Defaults struct {
	Work  string
	Lunch string
}

type Row struct {
	Date    string
	Start   string
	Leisure string
	Work    string
	Lunch   string
	End     string
}

// HistoryReader is the part of storage.Store a timesheet needs.
type HistoryReader interface {
	DailyHistory(ctx context.Context, chatID int64, from, to time.Time) ([]storage.DailyValue, error)
}

// Timesheet builds one row per day in [from, to] that has a start time.
// A row whose values do not parse keeps an empty End.
func Timesheet(ctx context.Context, store HistoryReader, chatID int64, from, to time.Time, def Defaults) ([]Row, error) {
	if store == nil {
		return nil, storage.ErrDisabled
	}
	if to.Before(from) {
		return nil, errors.New("export: to is before from")
	}
	if def.Work == "" {
		def.Work = shift.DefaultWork
	}
	if def.Lunch == "" {
		def.Lunch = shift.DefaultLunch
	}
	vals, err := store.DailyHistory(ctx, chatID, from, to)
	if err != nil {
		return nil, fmt.Errorf("export: history: %w", err)
	}

	var rows []Row
	byDay := map[string]int{}
	for _, v := range vals {
		i, ok := byDay[v.Day]
		if !ok {
			i = len(rows)
			byDay[v.Day] = i
			rows = append(rows, Row{Date: v.Day, Work: def.Work, Lunch: def.Lunch})
		}
		switch v.Key {
		case tracker.KeyStartTime:
			rows[i].Start = v.Value
		case tracker.KeyLeisureTime:
			rows[i].Leisure = v.Value
		}
	}

	out := rows[:0]
	for _, r := range rows {
		if r.Start == "" {
			continue
		}
		if end, err := (shift.Input{Start: r.Start, Work: r.Work, Lunch: r.Lunch, Leisure: r.Leisure}).End(); err == nil {
			r.End = end.String()
		}
		out = append(out, r)
	}
	return out, nil
}

// WriteXLSX writes rows as a single-sheet workbook with a bold header.
func WriteXLSX(rows []Row, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}

	for c, h := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "A", 12); err != nil {
		return err
	}

	for i, r := range rows {
		vals := []string{r.Date, r.Start, r.Leisure, r.Work, r.Lunch, r.End}
		for c, v := range vals {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// SaveXLSX is WriteXLSX into a new file at path.
func SaveXLSX(rows []Row, path string) error {
	return writeFile(path, func(w io.Writer) error { return WriteXLSX(rows, w) })
}
