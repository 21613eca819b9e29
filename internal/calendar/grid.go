// Package calendar holds the pure scheduling-view computations: month/week
// grid layout, filter predicates over surgeries, and bucketing of dated
// surgeries into grid cells. Nothing here touches storage or clocks beyond
// the inputs it is handed.
package calendar

import (
	"sort"
	"time"

	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

type ViewMode string

const (
	ModeMonth ViewMode = "month"
	ModeWeek  ViewMode = "week"
)

// Cell is one slot in a rendered calendar: either a dated day or leading
// padding before day 1 of a month.
type Cell struct {
	Date  time.Time
	Empty bool
}

// BuildGrid lays out the cells for the view containing ref.
//
// Month mode emits one empty cell per weekday index of day 1 (Sunday = 0),
// then one cell per day of the month, with no trailing padding. Week mode
// emits exactly 7 cells starting from the Sunday on or before ref.
func BuildGrid(ref time.Time, mode ViewMode) []Cell {
	if mode == ModeWeek {
		start := StartOfWeek(ref)
		cells := make([]Cell, 0, 7)
		for i := 0; i < 7; i++ {
			cells = append(cells, Cell{Date: start.AddDate(0, 0, i)})
		}
		return cells
	}

	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	lead := int(first.Weekday())
	days := first.AddDate(0, 1, -1).Day()

	cells := make([]Cell, 0, lead+days)
	for i := 0; i < lead; i++ {
		cells = append(cells, Cell{Empty: true})
	}
	for d := 0; d < days; d++ {
		cells = append(cells, Cell{Date: first.AddDate(0, 0, d)})
	}
	return cells
}

// StartOfWeek returns midnight of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -int(midnight.Weekday()))
}

// Prev shifts the reference date one view back: a calendar month (day
// pinned to 1) in month mode, exactly 7 days in week mode.
func Prev(ref time.Time, mode ViewMode) time.Time {
	return step(ref, mode, -1)
}

// Next shifts the reference date one view forward.
func Next(ref time.Time, mode ViewMode) time.Time {
	return step(ref, mode, 1)
}

func step(ref time.Time, mode ViewMode, dir int) time.Time {
	if mode == ModeWeek {
		return ref.AddDate(0, 0, 7*dir)
	}
	// Pin to day 1 so a Jan 31 reference cannot skip February.
	return time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location()).AddDate(0, dir, 0)
}

// SameDay compares only the date component, ignoring time of day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// IsToday reports whether the cell date falls on the same calendar day as
// now in now's location.
func IsToday(cell Cell, now time.Time) bool {
	if cell.Empty {
		return false
	}
	return SameDay(cell.Date, now)
}

// Bucket assigns dated surgeries to the grid cell sharing their calendar
// day, in the surgery's display location. Undated surgeries never appear
// on a calendar. Within a cell the order is ascending by timestamp, ties
// keeping input order.
func Bucket(cells []Cell, surgeries []surgery.Surgery) map[int][]surgery.Surgery {
	buckets := make(map[int][]surgery.Surgery)

	for i, cell := range cells {
		if cell.Empty {
			continue
		}
		for _, sg := range surgeries {
			if sg.ScheduledAt == nil {
				continue
			}
			if SameDay(sg.ScheduledAt.In(cell.Date.Location()), cell.Date) {
				buckets[i] = append(buckets[i], sg)
			}
		}
		sort.SliceStable(buckets[i], func(a, b int) bool {
			return buckets[i][a].ScheduledAt.Before(*buckets[i][b].ScheduledAt)
		})
	}

	return buckets
}
