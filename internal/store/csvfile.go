package store

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a backing file or a referenced row is absent.
var ErrNotFound = errors.New("not found")

// readTable returns the header and records of a CSV file.
func readTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, errors.Wrapf(ErrNotFound, "file %s", path)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not read header of %s", path)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not read %s", path)
	}
	return header, records, nil
}

// writeTable replaces path with the given rows. The data goes to a temp file
// in the same directory first, so readers see either the old or the new table.
func writeTable(path string, header []string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "could not create temp file")
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not write header")
	}
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not write records")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "could not close temp file")
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "could not replace %s", path)
}

type columns map[string]int

func indexColumns(header []string) columns {
	c := make(columns, len(header))
	for i, h := range header {
		c[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return c
}

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c columns) float(record []string, name string) float64 {
	v := c.get(record, name)
	if v == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// int accepts "3" as well as "3.0".
func (c columns) int(record []string, name string) (int, bool) {
	f := c.float(record, name)
	if math.IsNaN(f) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
