package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"trendsys/internal/trend"
)

// openInput returns the named file, or stdin for "" and "-".
func (a *app) openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(a.in), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	return f, nil
}

// readPrices parses a JSON array of numbers, or CSV / one number per line
// taking the given zero-based column. A first row that does not parse is
// treated as a header. NaN and infinite values are rejected.
func readPrices(r io.Reader, column int) ([]float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no prices in input", trend.ErrInvalidInput)
	}

	if data[0] == '[' {
		var prices []float64
		if err := json.Unmarshal(data, &prices); err != nil {
			return nil, fmt.Errorf("%w: %v", trend.ErrInvalidInput, err)
		}
		return prices, nil
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trend.ErrInvalidInput, err)
	}

	prices := make([]float64, 0, len(rows))
	for i, row := range rows {
		if column >= len(row) {
			return nil, fmt.Errorf("%w: line %d has no column %d", trend.ErrInvalidInput, i+1, column)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[column]), 64)
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %q is not a number", trend.ErrInvalidInput, i+1, row[column])
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: line %d: %q is not a finite price", trend.ErrInvalidInput, i+1, row[column])
		}
		prices = append(prices, v)
	}
	return prices, nil
}
