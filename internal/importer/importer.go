// Package importer parses uploaded roster files into student entries.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/rollcall/internal/model"
)

const (
	colStudentNumber = "student_number"
	colName          = "name"
)

var (
	// ErrNoHeader means the file has no header row.
	ErrNoHeader = errors.New("roster file is empty")
	// ErrMissingColumn means the header lacks the student_number column.
	ErrMissingColumn = errors.New("header must contain a student_number column")
)

// RowError reports a rejected row. Row is the 1-based line of the file,
// counting the header and any blank lines.
type RowError struct {
	Row    int
	Reason string
	Value  string
}

func (e *RowError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("row %d: %s (%q)", e.Row, e.Reason, e.Value)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

const (
	ReasonEmptyNumber     = "empty student_number"
	ReasonDuplicateNumber = "duplicate student_number"
)

// ParseCSV parses comma-separated roster text.
func ParseCSV(text string) ([]model.RosterEntry, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var records [][]string
	var lines []int
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return fromRows(records, lines)
}

// ParseXLSX parses the first sheet of an Excel workbook.
func ParseXLSX(r io.Reader) ([]model.RosterEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("excel file does not contain any sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %s: %w", sheet, err)
	}
	return fromRows(rows, nil)
}

// Parse picks the parser from the file name extension; anything that is not
// .xlsx is read as CSV text.
func Parse(filename string, r io.Reader) ([]model.RosterEntry, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return ParseXLSX(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return ParseCSV(string(data))
}

// fromRows validates a header plus data rows. The whole batch is rejected
// on the first empty or repeated student_number. lines holds the file line
// of each row; nil means rows are consecutive lines.
func fromRows(rows [][]string, lines []int) ([]model.RosterEntry, error) {
	lineOf := func(i int) int {
		if lines != nil {
			return lines[i]
		}
		return i + 1
	}

	header := -1
	for i, row := range rows {
		if !blank(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, ErrNoHeader
	}

	numberCol, nameCol := -1, -1
	for i, h := range rows[header] {
		switch normalizeHeader(h) {
		case colStudentNumber:
			numberCol = i
		case colName:
			nameCol = i
		}
	}
	if numberCol < 0 {
		return nil, ErrMissingColumn
	}

	seen := make(map[string]int)
	entries := []model.RosterEntry{}
	for i := header + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		number := cell(row, numberCol)
		if number == "" {
			return nil, &RowError{Row: lineOf(i), Reason: ReasonEmptyNumber}
		}
		if _, dup := seen[number]; dup {
			return nil, &RowError{Row: lineOf(i), Reason: ReasonDuplicateNumber, Value: number}
		}
		seen[number] = lineOf(i)

		entry := model.RosterEntry{StudentNumber: number}
		if nameCol >= 0 {
			if name := cell(row, nameCol); name != "" {
				entry.Name = &name
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
