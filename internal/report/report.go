// Package report renders class statistics as spreadsheet files.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
)

// Format names an export file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ParseFormat accepts "xlsx" or "csv".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatXLSX, FormatCSV:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// Write renders rep in format f.
func Write(ctx context.Context, w io.Writer, f Format, rep model.ClassReport) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(ctx, w, rep)
	case FormatCSV:
		return WriteCSV(ctx, w, rep)
	}
	return fmt.Errorf("unsupported report format %q", f)
}

func header(ctx context.Context) []string {
	return []string{
		appI18n.T(ctx, "ReportStudentNumber"),
		appI18n.T(ctx, "ReportStudentName"),
		appI18n.T(ctx, "ReportCorrect"),
		appI18n.T(ctx, "ReportWrong"),
		appI18n.T(ctx, "ReportTotal"),
		appI18n.T(ctx, "ReportPercentage"),
	}
}

func rowValues(r model.ReportRow) []string {
	return []string{
		r.StudentNumber,
		r.StudentName,
		strconv.Itoa(r.Correct),
		strconv.Itoa(r.Wrong),
		strconv.Itoa(r.Total),
		strconv.Itoa(r.CorrectPercentage),
	}
}

// WriteCSV writes one line per roster student. A UTF-8 byte order mark is
// written first so spreadsheet programs detect Arabic text.
func WriteCSV(ctx context.Context, w io.Writer, rep model.ClassReport) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header(ctx)); err != nil {
		return err
	}
	for _, r := range rep.Rows {
		if err := cw.Write(rowValues(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with a per-student sheet and a summary sheet,
// both laid out right to left.
func WriteXLSX(ctx context.Context, w io.Writer, rep model.ClassReport) error {
	f := excelize.NewFile()
	defer f.Close()

	studentsSheet := appI18n.T(ctx, "ReportStudentsSheet")
	summarySheet := appI18n.T(ctx, "ReportSummarySheet")
	if err := f.SetSheetName("Sheet1", studentsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	rtl := true
	for _, sheet := range []string{studentsSheet, summarySheet} {
		if err := f.SetSheetView(sheet, -1, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
			return fmt.Errorf("set sheet view: %w", err)
		}
	}

	hdr := header(ctx)
	hdrRow := make([]any, len(hdr))
	for i, h := range hdr {
		hdrRow[i] = h
	}
	if err := f.SetSheetRow(studentsSheet, "A1", &hdrRow); err != nil {
		return err
	}
	for i, r := range rep.Rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.StudentNumber, r.StudentName, r.Correct, r.Wrong, r.Total, r.CorrectPercentage}
		if err := f.SetSheetRow(studentsSheet, cellRef, &row); err != nil {
			return err
		}
	}

	snap := rep.Snapshot
	summary := [][]any{
		{appI18n.T(ctx, "ReportClassName"), rep.ClassName},
		{appI18n.T(ctx, "ReportTotalStudents"), snap.TotalStudents},
		{appI18n.T(ctx, "ReportAssessedStudents"), snap.AssessedStudents},
		{appI18n.T(ctx, "ReportCorrectAnswers"), snap.CorrectAnswers},
		{appI18n.T(ctx, "ReportWrongAnswers"), snap.WrongAnswers},
		{appI18n.T(ctx, "ReportTotalAssessments"), snap.TotalAssessments},
	}
	for i, row := range summary {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cellRef, &row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
