package results

import (
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// ParseMetrics parses a two-line CSV (header row, value row) into a snapshot.
// Lines are split on CR/LF and empty lines are discarded.
func ParseMetrics(text string) (models.MetricsSnapshot, error) {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\r' || r == '\n' })

	nonEmpty := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) < 2 {
		return nil, fmt.Errorf("%w: expected header and value rows, got %d line(s)", ErrParse, len(nonEmpty))
	}

	headers, err := splitRow(nonEmpty[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header row: %v", ErrParse, err)
	}
	values, err := splitRow(nonEmpty[1])
	if err != nil {
		return nil, fmt.Errorf("%w: value row: %v", ErrParse, err)
	}
	if len(headers) != len(values) {
		return nil, fmt.Errorf("%w: %d headers but %d values", ErrParse, len(headers), len(values))
	}

	snap := make(models.MetricsSnapshot, len(headers))
	for i, h := range headers {
		name := strings.TrimSpace(h)
		v, err := parseValue(values[i])
		if err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrParse, name, err)
		}
		snap[name] = v
	}
	return snap, nil
}

// splitRow splits one CSV row, honoring quoted fields that contain commas.
func splitRow(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	return r.Read()
}

// parseValue accepts finite decimal numbers only.
func parseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if strings.ContainsAny(s, "xX") {
		return 0, fmt.Errorf("not a decimal number: %q", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", raw)
	}
	return v, nil
}
