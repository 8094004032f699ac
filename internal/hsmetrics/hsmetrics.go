// Package hsmetrics reads Picard CollectHsMetrics reports and merges them
// into one per-sample table.
package hsmetrics

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

const metricsClassPrefix = "## METRICS CLASS"

// dropped columns vary per read group and are not comparable across samples.
var dropped = []string{"LIBRARY", "SAMPLE", "READ_GROUP"}

// ErrNoMetrics reports a report without a METRICS CLASS section.
var ErrNoMetrics = errors.New("no METRICS CLASS section")

// Report is the first metrics row of one CollectHsMetrics file.
type Report struct {
	Columns []string
	Values  []string
}

// Value returns the value of column.
func (r Report) Value(column string) (string, bool) {
	i := slices.Index(r.Columns, column)
	if i < 0 {
		return "", false
	}
	return r.Values[i], true
}

// Parse reads the header and first value line following "## METRICS CLASS".
func Parse(r io.Reader) (Report, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if !strings.HasPrefix(sc.Text(), metricsClassPrefix) {
			continue
		}
		if !sc.Scan() {
			break
		}
		header := splitLine(sc.Text())
		if !sc.Scan() {
			return Report{}, errors.New("METRICS CLASS section has a header but no values")
		}
		values := splitLine(sc.Text())
		if len(values) != len(header) {
			return Report{}, fmt.Errorf("metrics line has %d values for %d columns", len(values), len(header))
		}
		return project(header, values), nil
	}
	if err := sc.Err(); err != nil {
		return Report{}, err
	}
	return Report{}, ErrNoMetrics
}

// ParseFile parses the report at path.
func ParseFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()
	rep, err := Parse(f)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

func splitLine(line string) []string {
	return strings.Split(strings.TrimRight(line, "\r\n"), "\t")
}

// project removes the dropped columns and their values.
func project(header, values []string) Report {
	var rep Report
	for i, col := range header {
		if slices.Contains(dropped, col) {
			continue
		}
		rep.Columns = append(rep.Columns, col)
		rep.Values = append(rep.Values, values[i])
	}
	return rep
}

// Table is one row of metrics per sample, sharing one column set.
type Table struct {
	Columns []string
	rows    []row
}

type row struct {
	sample string
	values []string
}

// Add appends sample's report. The first report fixes the column set; later
// reports must match it.
func (t *Table) Add(sample string, rep Report) error {
	if len(rep.Columns) != len(rep.Values) {
		return fmt.Errorf("sample %s: %d values for %d columns", sample, len(rep.Values), len(rep.Columns))
	}
	if t.Columns == nil {
		t.Columns = slices.Clone(rep.Columns)
	} else if !slices.Equal(t.Columns, rep.Columns) {
		return fmt.Errorf("sample %s: columns differ from the first report", sample)
	}
	for _, r := range t.rows {
		if r.sample == sample {
			return fmt.Errorf("sample %s added twice", sample)
		}
	}
	t.rows = append(t.rows, row{sample: sample, values: slices.Clone(rep.Values)})
	return nil
}

// Len returns the number of samples.
func (t *Table) Len() int { return len(t.rows) }

// WriteTSV writes a header row ("SAMPLE" then the columns) and one row per
// sample, in insertion order.
func (t *Table) WriteTSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(append([]string{"SAMPLE"}, t.Columns...)); err != nil {
		return err
	}
	for _, r := range t.rows {
		if err := cw.Write(append([]string{r.sample}, r.values...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
