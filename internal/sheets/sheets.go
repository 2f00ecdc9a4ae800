// Package sheets reads job-application rows from spreadsheet sources. The
// orchestrator only sees the Source interface; the bundled implementation
// reads a directory of CSV exports, one file per sheet.
package sheets

import (
	"context"
	"fmt"
)

// Row is one spreadsheet row with the columns the send loop cares about.
type Row struct {
	SheetName      string
	RowNumber      int // 1-based, including the header row
	Company        string
	Position       string
	RecruiterCell  string
	Location       string
	PostingURL     string
	Status         string
	ExpectedSalary string
	CustomMessage  string
}

// ID is the stable row identifier used to deduplicate re-reads of the same
// cell across runs.
func (r Row) ID() string {
	return fmt.Sprintf("%s_%d", r.SheetName, r.RowNumber)
}

type Source interface {
	Rows(ctx context.Context) ([]Row, error)
	// MarkReachedOut writes the sent marker back so the sheet reflects what
	// happened. Best effort; the database stays authoritative.
	MarkReachedOut(ctx context.Context, row Row) error
}
