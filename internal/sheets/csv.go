package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Column name variants seen in real sheets, checked in order.
var (
	companyCols   = []string{"company name", "company"}
	positionCols  = []string{"position"}
	recruiterCols = []string{"recruiter names", "recruiter name"}
	// Fallback when the name column is empty: some sheets only carry emails.
	recruiterEmailCols = []string{"recruiter email"}
	locationCols       = []string{"location"}
	urlCols            = []string{"job posting url", "job posting"}
	statusCols         = []string{"status"}
	salaryCols         = []string{"expected salary", "salary"}
	messageCols        = []string{"message", "custom message"}
)

// CSVSource reads every .csv file in a directory; the file name (without
// extension) is the sheet name.
type CSVSource struct {
	Dir          string
	DefaultSheet string
	ProcessAll   bool
	NameFilter   *regexp.Regexp
}

func NewCSVSource(dir, defaultSheet string, processAll bool, nameFilter string) (*CSVSource, error) {
	src := &CSVSource{Dir: dir, DefaultSheet: defaultSheet, ProcessAll: processAll}
	if nameFilter != "" {
		re, err := regexp.Compile(nameFilter)
		if err != nil {
			return nil, fmt.Errorf("sheet name filter: %w", err)
		}
		src.NameFilter = re
	}
	return src, nil
}

func (s *CSVSource) sheetNames() ([]string, error) {
	if !s.ProcessAll {
		return []string{s.DefaultSheet}, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if s.NameFilter != nil && !s.NameFilter.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *CSVSource) Rows(ctx context.Context) ([]Row, error) {
	names, err := s.sheetNames()
	if err != nil {
		return nil, err
	}

	var out []Row
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := s.readSheet(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *CSVSource) readSheet(name string) ([]Row, error) {
	records, err := readCSVFile(filepath.Join(s.Dir, name+".csv"))
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	idx := headerIndex(records[0])
	var out []Row
	for i, rec := range records[1:] {
		cell := idx.get(rec, recruiterCols)
		if cell == "" {
			cell = idx.get(rec, recruiterEmailCols)
		}
		out = append(out, Row{
			SheetName:      name,
			RowNumber:      i + 2, // header is row 1
			Company:        idx.get(rec, companyCols),
			Position:       idx.get(rec, positionCols),
			RecruiterCell:  cell,
			Location:       idx.get(rec, locationCols),
			PostingURL:     idx.get(rec, urlCols),
			Status:         idx.get(rec, statusCols),
			ExpectedSalary: idx.get(rec, salaryCols),
			CustomMessage:  idx.get(rec, messageCols),
		})
	}
	return out, nil
}

// MarkReachedOut sets the Status cell to "Reached Out" and rewrites the file.
func (s *CSVSource) MarkReachedOut(ctx context.Context, row Row) error {
	path := filepath.Join(s.Dir, row.SheetName+".csv")
	records, err := readCSVFile(path)
	if err != nil {
		return err
	}
	if len(records) == 0 || row.RowNumber-1 >= len(records) || row.RowNumber < 2 {
		return fmt.Errorf("sheet %s has no row %d", row.SheetName, row.RowNumber)
	}

	col := findColumn(records[0], statusCols)
	if col < 0 {
		// Sheet has no Status column; append one.
		records[0] = append(records[0], "Status")
		col = len(records[0]) - 1
	}
	rec := records[row.RowNumber-1]
	for len(rec) <= col {
		rec = append(rec, "")
	}
	rec[col] = "Reached Out"
	records[row.RowNumber-1] = rec

	return writeCSVFile(path, records)
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // sheets often have ragged rows
	return r.ReadAll()
}

func writeCSVFile(path string, records [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type header map[string]int

func headerIndex(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		h[strings.ToLower(strings.TrimSpace(c))] = i
	}
	return h
}

func (h header) get(rec []string, names []string) string {
	for _, n := range names {
		if i, ok := h[n]; ok && i < len(rec) {
			if v := strings.TrimSpace(rec[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

func findColumn(cols []string, names []string) int {
	h := headerIndex(cols)
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}
	return -1
}
