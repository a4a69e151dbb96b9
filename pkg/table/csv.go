package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ajitpratap0/trellis/pkg/errors"
)

// ReadCSV builds a table from CSV data. The first record is the
// header. Cell values parse as float64 when they look numeric and stay
// strings otherwise; empty cells become nulls so inference can see
// missing data.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read CSV header")
	}

	values := make([][]interface{}, len(header))
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile,
				fmt.Sprintf("failed to read CSV row %d", row))
		}
		for i, cell := range record {
			values[i] = append(values[i], parseCell(cell))
		}
		row++
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Values: values[i]}
	}
	return New(columns...)
}

// ReadCSVFile reads a table from a CSV file on disk.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to open %s", path))
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseCell(cell string) interface{} {
	if cell == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(cell, 64); err == nil {
		return n
	}
	if cell == "true" || cell == "false" {
		return cell == "true"
	}
	return cell
}
