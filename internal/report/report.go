// Package report computes the revenue and volume rollups behind the
// dashboard charts. Like the calendar package it is pure: it consumes a
// surgery slice and returns values, leaving persistence to the caller.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

// UnknownLabel is the fallback bucket for ids that no longer resolve to a
// doctor or hospital. Dangling references degrade to this label instead of
// failing the report.
const UnknownLabel = "Unknown"

// Range bounds the report period. From is inclusive at its instant; To is
// extended to the very end of its calendar day. A nil bound is open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range. Surgeries without a
// date are excluded whenever any bound is set.
func (r Range) Contains(t *time.Time) bool {
	if r.From == nil && r.To == nil {
		return true
	}
	if t == nil {
		return false
	}
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil {
		end := time.Date(r.To.Year(), r.To.Month(), r.To.Day(),
			23, 59, 59, 999999999, r.To.Location())
		if t.After(end) {
			return false
		}
	}
	return true
}

// Entry is one label/value pair, pre-sorted for chart consumption.
type Entry struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Summary is the aggregation result.
type Summary struct {
	TotalRevenue    float64 `json:"total_revenue"`
	RevenueByDoctor []Entry `json:"revenue_by_doctor"`
	CountByHospital []Entry `json:"count_by_hospital"`
	TotalCount      int     `json:"total_count"`
	CompletedCount  int     `json:"completed_count"`
}

// Names resolves ids to display labels for the chart breakdowns.
type Names struct {
	Doctors   map[uuid.UUID]string
	Hospitals map[uuid.UUID]string
}

// Aggregate filters by date range and doctor participation, then rolls up
// revenue and hospital counts. Revenue only counts completed surgeries and
// is attributed per fee entry; hospital counts include every filtered
// surgery regardless of completion.
func Aggregate(surgeries []surgery.Surgery, rng Range, doctorID uuid.UUID, names Names) Summary {
	revenue := newTally()
	hospitals := newTally()

	var sum Summary
	for i := range surgeries {
		sg := &surgeries[i]

		if doctorID != uuid.Nil && !sg.HasParticipant(doctorID) {
			continue
		}
		if !rng.Contains(sg.ScheduledAt) {
			continue
		}

		sum.TotalCount++
		hospitals.add(lookup(names.Hospitals, sg.HospitalID), 1)

		if sg.Status != surgery.StatusCompleted {
			continue
		}
		sum.CompletedCount++
		for _, docID := range feeOrder(sg) {
			fee := sg.Fees[docID]
			sum.TotalRevenue += fee
			revenue.add(lookup(names.Doctors, docID), fee)
		}
	}

	sum.RevenueByDoctor = revenue.sorted()
	sum.CountByHospital = hospitals.sorted()
	return sum
}

// feeOrder fixes the iteration order over a surgery's fee entries: team
// order first (primary doctor, then additional participants), then any
// stray keys sorted. Map iteration order must never leak into the
// first-encounter tie ordering of the output.
func feeOrder(sg *surgery.Surgery) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(sg.Fees))
	seen := make(map[uuid.UUID]bool, len(sg.Fees))
	for _, id := range sg.Team() {
		if _, ok := sg.Fees[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	if len(ids) < len(sg.Fees) {
		rest := make([]uuid.UUID, 0, len(sg.Fees)-len(ids))
		for id := range sg.Fees {
			if !seen[id] {
				rest = append(rest, id)
			}
		}
		sort.Slice(rest, func(i, j int) bool {
			return rest[i].String() < rest[j].String()
		})
		ids = append(ids, rest...)
	}
	return ids
}

func lookup(names map[uuid.UUID]string, id uuid.UUID) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return UnknownLabel
}

// tally accumulates values per label while remembering the order each
// label was first seen, so equal values keep first-encounter order.
type tally struct {
	values map[string]float64
	order  map[string]int
	next   int
}

func newTally() *tally {
	return &tally{
		values: make(map[string]float64),
		order:  make(map[string]int),
	}
}

func (t *tally) add(label string, v float64) {
	if _, seen := t.order[label]; !seen {
		t.order[label] = t.next
		t.next++
	}
	t.values[label] += v
}

func (t *tally) sorted() []Entry {
	entries := make([]Entry, 0, len(t.values))
	for label, v := range t.values {
		entries = append(entries, Entry{Label: label, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return t.order[entries[i].Label] < t.order[entries[j].Label]
	})
	return entries
}

var brlPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount the way the dashboard displays money,
// e.g. 1234.56 -> "R$ 1.234,56". Internal amounts stay plain float64.
func FormatBRL(v float64) string {
	return brlPrinter.Sprintf("R$ %v", number.Decimal(v, number.Scale(2)))
}
