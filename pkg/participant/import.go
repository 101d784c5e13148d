package participant

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"io"
)

// ImportRow is one spreadsheet row turned into an add request. Row is the
// 1-based row number in the sheet.
type ImportRow struct {
	Row     int
	Request Request
}

// SheetParser turns an uploaded workbook into add requests.
type SheetParser interface {
	ParseXlsx(r io.Reader) ([]ImportRow, error)
}

const (
	ImportAdded  = "added"
	ImportFailed = "failed"
)

type ImportResult struct {
	Row     int          `json:"row"`
	Email   string       `json:"email"`
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Import adds every row in order. A failing row does not stop the rest; its
// result carries the reason.
func (s *Service) Import(ctx context.Context, rows []ImportRow) []ImportResult {
	results := make([]ImportResult, 0, len(rows))

	for _, row := range rows {
		res := ImportResult{Row: row.Row, Email: row.Request.Email, Status: ImportAdded}

		if _, err := s.Add(ctx, row.Request); err != nil {
			res.Status = ImportFailed
			var verr *ValidationError
			switch {
			case errors.As(err, &verr):
				res.Message = ErrValidation.Error()
				res.Errors = verr.Fields
			case Outcome(err) == "error":
				s.logger.Error("Import row failed", zap.Int("row", row.Row), zap.Error(err))
				res.Message = "internal error"
			default:
				res.Message = err.Error()
			}
		}

		results = append(results, res)
	}

	return results
}
