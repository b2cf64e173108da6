// Package calendar maps simulation week indexes to calendar dates.
package calendar

import (
	"fmt"
	"time"

	"github.com/nvandessel/flightbreak/internal/constants"
)

// Point is one week of a dated probability series.
type Point struct {
	Week        int       `json:"week"`
	Date        time.Time `json:"date"`
	Probability float64   `json:"probability"`
}

// WeekStart returns the first day of week w, counting from first.
func WeekStart(first time.Time, w int) time.Time {
	return first.AddDate(0, 0, constants.DaysPerWeek*w)
}

// Dated pairs each probability with the date its week starts.
func Dated(first time.Time, series []float64) []Point {
	points := make([]Point, len(series))
	for w, p := range series {
		points[w] = Point{Week: w, Date: WeekStart(first, w), Probability: p}
	}
	return points
}

// ParseDate parses a YYYY-MM-DD date. An empty string yields the default
// first date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		s = constants.DefaultFirstDate
	}
	d, err := time.Parse(constants.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// Format renders a date the way ParseDate reads it.
func Format(d time.Time) string {
	return d.Format(constants.DateLayout)
}
