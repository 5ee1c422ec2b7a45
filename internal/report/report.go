// Package report exports call summaries to XLSX workbooks.
//
// A workbook has an "Overview" sheet with one row per call and one sheet per
// call holding its summary table exactly as the summary event carried it.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"callsight/internal/history"
	"callsight/internal/pipeline"
	"callsight/internal/summary"
	"callsight/internal/textutil"
)

// OverviewSheet is the name of the first sheet.
const OverviewSheet = "Overview"

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// OverviewHeaders are the overview sheet columns.
var OverviewHeaders = []string{"Session", "Audio", "Status", "Finished", "Category", "Sentiment", "Errors"}

// Call is one exported session.
type Call struct {
	SessionID  string
	AudioName  string
	Status     string
	FinishedAt time.Time
	Category   string
	Sentiment  string
	Errors     []string
	Summary    summary.Table
	HasSummary bool
}

// FromEvents builds a Call from a session's event log.
func FromEvents(sessionID, audioName, status string, finished time.Time, events []pipeline.Event) Call {
	call := Call{SessionID: sessionID, AudioName: audioName, Status: status, FinishedAt: finished}
	for _, event := range events {
		switch p := event.Result.(type) {
		case pipeline.CategoryResult:
			call.Category = p.Category
		case pipeline.SentimentResult:
			call.Sentiment = p.Overall
		case pipeline.SummaryResult:
			call.Summary, call.HasSummary = p.Table, true
		case pipeline.ErrorResult:
			call.Errors = append(call.Errors, string(p))
		}
	}
	return call
}

// FromRecord builds a Call from a stored session.
func FromRecord(record *history.Record) Call {
	return FromEvents(record.ID, record.AudioName, record.Status, record.FinishedAt, record.Events)
}

// Build assembles the workbook. The caller closes the returned file.
func Build(calls []Call) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", OverviewSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename overview sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create cell style: %w", err)
	}

	if err := writeRow(f, OverviewSheet, 1, OverviewHeaders); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := styleRow(f, OverviewSheet, 1, len(OverviewHeaders), headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, call := range calls {
		finished := ""
		if !call.FinishedAt.IsZero() {
			finished = call.FinishedAt.UTC().Format(time.RFC3339)
		}
		row := []string{call.SessionID, call.AudioName, call.Status, finished, call.Category, call.Sentiment, strings.Join(call.Errors, "\n")}
		if err := writeRow(f, OverviewSheet, i+2, row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if err := f.SetColWidth(OverviewSheet, "A", "A", 38); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}

	for i, call := range calls {
		if !call.HasSummary {
			continue
		}
		name := SheetName(i, call.AudioName)
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
		columns := call.Summary.Columns()
		if err := writeRow(f, name, 1, columns); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := styleRow(f, name, 1, len(columns), headerStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
		cells := call.Summary.Cells()
		for r, cellsRow := range cells {
			if err := writeRow(f, name, r+2, cellsRow); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		if len(cells) > 0 {
			if err := styleRange(f, name, 2, len(cells)+1, len(columns), cellStyle); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		if err := f.SetColWidth(name, "A", "A", 24); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	return f, nil
}

// Write builds the workbook and saves it to path.
func Write(path string, calls []Call) error {
	f, err := Build(calls)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// SheetName returns the per-call sheet name: a 1-based index and the
// sanitized audio name, within Excel's length limit.
func SheetName(index int, audioName string) string {
	name := fmt.Sprintf("%02d %s", index+1, textutil.SanitizeToken(audioName))
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &out); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	return styleRange(f, sheet, row, row, cols, style)
}

func styleRange(f *excelize.File, sheet string, firstRow, lastRow, cols, style int) error {
	from, err := excelize.CoordinatesToCellName(1, firstRow)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(cols, lastRow)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, from, to, style); err != nil {
		return fmt.Errorf("style %s %s:%s: %w", sheet, from, to, err)
	}
	return nil
}
