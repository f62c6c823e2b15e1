package listing

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ExportCSV writes the currently filtered list (all pages, not just the
// visible one) as CSV. Every field is wrapped in double quotes; embedded
// quotes are not escaped, matching the historical export format that
// downstream tooling already parses.
func (c *Controller[T]) ExportCSV(w io.Writer) error {
	headers := make([]string, len(c.cfg.Columns))
	for i, col := range c.cfg.Columns {
		headers[i] = col.Header
	}
	if err := writeCSVRow(w, headers); err != nil {
		return err
	}

	for _, item := range c.Filtered() {
		row := make([]string, len(c.cfg.Columns))
		for i, col := range c.cfg.Columns {
			row[i] = col.Value(item)
		}
		if err := writeCSVRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

// ExportFilename returns "<entity>-<YYYY-MM-DD>.csv" for today (UTC).
func (c *Controller[T]) ExportFilename() string {
	return fmt.Sprintf("%s-%s.csv", c.cfg.Entity, ExportDate())
}

// ExportDate is today's date in the export filename format.
func ExportDate() string {
	return time.Now().UTC().Format("2006-01-02")
}

func writeCSVRow(w io.Writer, fields []string) error {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	_, err := io.WriteString(w, strings.Join(quoted, ",")+"\n")
	return err
}
