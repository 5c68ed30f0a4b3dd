package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// csvFile is an opened CSV with its header indexed by column name
type csvFile struct {
	f      *os.File
	r      *csv.Reader
	header []string
	cols   map[string]int
}

func openCSV(path string, comma rune) (*csvFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	return &csvFile{f: f, r: r, header: header, cols: cols}, nil
}

// column returns the index of a named column
func (c *csvFile) column(name string) (int, error) {
	i, ok := c.cols[name]
	if !ok {
		return 0, fmt.Errorf("column %q not found", name)
	}
	return i, nil
}

// next returns the next record, or io.EOF
func (c *csvFile) next() ([]string, error) {
	return c.r.Read()
}

// line returns the current input line for error messages
func (c *csvFile) line() int {
	line, _ := c.r.FieldPos(0)
	return line
}

func (c *csvFile) Close() error {
	return c.f.Close()
}

// cell returns the trimmed value at i, or "" when the row is short
func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// isMissing reports whether a cell holds no value
func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}
