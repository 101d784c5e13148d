package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/Geniuskaa/participant_registry/pkg/participant"
	"github.com/xuri/excelize/v2"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	// Constants for parser protection
	MAX_ROWS       = 1500
	MAX_LEN_OF_ROW = 15 // Длина строки измеряется в кол-ве ячеек excel таблицы

	COL_EMAIL        = "email"
	COL_FIRST_NAME   = "firstname"
	COL_LAST_NAME    = "lastname"
	COL_DOB          = "dob"
	COL_COMPANY_NAME = "companyname"
	COL_SALARY       = "salary"
	COL_CURRENCY     = "currency"
	COL_COUNTRY      = "country"
	COL_CITY         = "city"
	COL_ACTIVE       = "active"
)

var (
	ErrEmptySheet    = errors.New("sheet has no rows")
	ErrTooManyRows   = errors.New("sheet has too many rows")
	ErrMissingColumn = errors.New("required column is missing")
)

var requiredColumns = []string{
	COL_EMAIL, COL_FIRST_NAME, COL_LAST_NAME, COL_DOB, COL_COMPANY_NAME,
	COL_SALARY, COL_CURRENCY, COL_COUNTRY, COL_CITY, COL_ACTIVE,
}

type Impl struct {
}

var _ participant.SheetParser = Impl{}

// ParseXlsx reads the first sheet of the workbook. Row 1 is the header; the
// column order is free, names are matched case-insensitively. Blank rows are
// skipped. Cell values are not validated here, only shaped into requests.
func (i Impl) ParseXlsx(r io.Reader) ([]participant.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("excelize.OpenReader failed: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("f.GetRows failed: %w", err)
	}

	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	if len(rows) > MAX_ROWS+1 {
		return nil, fmt.Errorf("ParseXlsx failed: %w: %d", ErrTooManyRows, len(rows)-1)
	}

	columns, err := headerIndex(rows[0])
	if err != nil {
		return nil, fmt.Errorf("ParseXlsx failed: %w", err)
	}

	// Cells past the limit are dropped unless a required column sits there.
	rowLen := MAX_LEN_OF_ROW
	for _, col := range requiredColumns {
		if columns[col] >= rowLen {
			rowLen = columns[col] + 1
		}
	}

	out := make([]participant.ImportRow, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) > rowLen {
			row = row[:rowLen]
		}

		cell := func(name string) string {
			idx := columns[name]
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		out = append(out, participant.ImportRow{
			Row: n + 2,
			Request: participant.Request{
				Email:     cell(COL_EMAIL),
				FirstName: cell(COL_FIRST_NAME),
				LastName:  cell(COL_LAST_NAME),
				DOB:       cell(COL_DOB),
				Work: &participant.WorkRequest{
					CompanyName: cell(COL_COMPANY_NAME),
					Salary:      numberCell(cell(COL_SALARY)),
					Currency:    cell(COL_CURRENCY),
				},
				Home: &participant.HomeRequest{
					Country: cell(COL_COUNTRY),
					City:    cell(COL_CITY),
				},
				Active: boolCell(cell(COL_ACTIVE)),
			},
		})
	}

	return out, nil
}

func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}

	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return idx, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// numberCell keeps numeric cells as JSON numbers and anything else as a JSON
// string, so the validator reports the salary type per row. Empty stays empty.
func numberCell(v string) json.RawMessage {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return quoted(v)
	}
	return json.RawMessage(strconv.FormatFloat(f, 'f', -1, 64))
}

func boolCell(v string) json.RawMessage {
	switch strings.ToLower(v) {
	case "":
		return nil
	case "true", "1", "yes":
		return json.RawMessage("true")
	case "false", "0", "no":
		return json.RawMessage("false")
	default:
		return quoted(v)
	}
}

func quoted(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
