// Package sqlquery rewrites the stored retraining query before it is sent to the batch service.
package sqlquery

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the only date format recognized inside a stored query.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a replacement date is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

var (
	reDate      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	reWholeDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Rewriter substitutes dates in query text.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Rewriter struct{}

// ReplaceDate replaces every YYYY-MM-DD literal in query with date.
func (Rewriter) ReplaceDate(query, date string) (string, error) {
	if !reWholeDate.MatchString(date) {
		return query, fmt.Errorf("%w: got %q", ErrInvalidDate, date)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return query, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return reDate.ReplaceAllLiteralString(query, date), nil
}

// ReplaceDateWith formats t in UTC and substitutes it into query.
func (r Rewriter) ReplaceDateWith(query string, t time.Time) string {
	out, _ := r.ReplaceDate(query, t.UTC().Format(DateLayout))
	return out
}

// Dates returns the date literals found in query, in order of appearance.
func (Rewriter) Dates(query string) []string {
	found := reDate.FindAllString(query, -1)
	if found == nil {
		return []string{}
	}
	return found
}
