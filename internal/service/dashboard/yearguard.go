package dashboard

import (
	"sync"
	"time"
)

// ResolveYear picks the year to display. A requested year wins if it has
// data, then the current calendar year, then the first available year.
// It returns false when no year has data.
func ResolveYear(requested *int, available []int, now time.Time) (int, bool) {
	if len(available) == 0 {
		return 0, false
	}
	if requested != nil && contains(available, *requested) {
		return *requested, true
	}
	if current := now.Year(); contains(available, current) {
		return current, true
	}
	return available[0], true
}

func contains(years []int, y int) bool {
	for _, v := range years {
		if v == y {
			return true
		}
	}
	return false
}

// YearSelection remembers the selected year of one dashboard and keeps it
// inside the available years as they change.
type YearSelection struct {
	mu       sync.Mutex
	selected int
	ok       bool
	now      func() time.Time
}

func NewYearSelection(now func() time.Time) *YearSelection {
	if now == nil {
		now = time.Now
	}
	return &YearSelection{now: now}
}

// Select asks for year. If it has no data the selection falls back as in
// ResolveYear.
func (s *YearSelection) Select(year int, available []int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected, s.ok = ResolveYear(&year, available, s.now())
	return s.selected, s.ok
}

// Update re-resolves against a new list of available years. The current
// selection is kept while it still has data.
func (s *YearSelection) Update(available []int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var requested *int
	if s.ok {
		requested = &s.selected
	}
	s.selected, s.ok = ResolveYear(requested, available, s.now())
	return s.selected, s.ok
}

// Current returns the selection, if any.
func (s *YearSelection) Current() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.ok
}
