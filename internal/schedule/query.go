package schedule

import (
	"strings"
	"time"
)

// Filter selects schedules. Zero fields are ignored. Results are always
// sorted by start ascending.
type Filter struct {
	Types      []Type
	Statuses   []Status
	Priorities []Priority
	ProjectID  string

	// Date range: From inclusive, To exclusive. Zero means unbounded.
	From time.Time
	To   time.Time

	// Text matches title and participants, case-insensitive substring.
	Text string

	// Tags requires every listed tag to be present.
	Tags []string
}

// Query returns copies of all schedules matching the filter.
func (s *Store) Query(f Filter) []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Schedule
	for _, sc := range s.byID {
		if f.matches(sc) {
			out = append(out, sc.Clone())
		}
	}
	sortSchedules(out)
	return out
}

func (f Filter) matches(sc *Schedule) bool {
	if len(f.Types) > 0 && !containsType(f.Types, sc.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, sc.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, sc.Priority) {
		return false
	}
	if f.ProjectID != "" && sc.ProjectID != f.ProjectID {
		return false
	}
	if !f.From.IsZero() && sc.Start.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !sc.Start.Before(f.To) {
		return false
	}
	if t := strings.TrimSpace(f.Text); t != "" && !matchesText(sc, t) {
		return false
	}
	for _, tag := range f.Tags {
		if !sc.HasTag(tag) {
			return false
		}
	}
	return true
}

func matchesText(sc *Schedule, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(sc.Title), needle) {
		return true
	}
	for _, p := range sc.Participants {
		if strings.Contains(strings.ToLower(p), needle) {
			return true
		}
	}
	return false
}

func containsType(xs []Type, v Type) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(xs []Status, v Status) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsPriority(xs []Priority, v Priority) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// ---- Derived views ----
//
// These are views over Query, not stored state. They take the reference
// instant explicitly so callers (and tests) control "now".

// Today returns schedules starting on now's calendar day (local to now).
func (s *Store) Today(now time.Time) []Schedule {
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return s.Query(Filter{From: from, To: from.AddDate(0, 0, 1)})
}

// ThisWeek returns schedules starting in now's ISO week (Monday-based).
func (s *Store) ThisWeek(now time.Time) []Schedule {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	from := day.AddDate(0, 0, -offset)
	return s.Query(Filter{From: from, To: from.AddDate(0, 0, 7)})
}

// Upcoming returns not-yet-started schedules within the next N days.
func (s *Store) Upcoming(now time.Time, days int) []Schedule {
	if days <= 0 {
		days = 7
	}
	return s.Query(Filter{From: now, To: now.AddDate(0, 0, days)})
}

// Urgent returns high-priority schedules due within 24 hours.
func (s *Store) Urgent(now time.Time) []Schedule {
	return s.Query(Filter{
		Priorities: []Priority{PriorityHigh},
		From:       now,
		To:         now.Add(24 * time.Hour),
	})
}
