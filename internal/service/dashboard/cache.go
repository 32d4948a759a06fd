package dashboard

import (
	"sort"
	"sync"

	"github.com/davidleathers/barangay-insights/internal/domain/metric"
)

// Snapshot is a copy of the cache contents.
type Snapshot struct {
	Records    []metric.Record `json:"records"`
	KnownYears []int           `json:"knownYears"`
}

// YearlyMetricCache accumulates monthly records keyed by (year, month).
// A later record for the same key replaces the earlier one. Records are
// only ever removed all at once by Reset.
type YearlyMetricCache struct {
	mu      sync.RWMutex
	records map[metric.Key]metric.Record
	years   map[int]struct{}
}

func NewYearlyMetricCache() *YearlyMetricCache {
	return &YearlyMetricCache{
		records: make(map[metric.Key]metric.Record),
		years:   make(map[int]struct{}),
	}
}

// Has reports whether year has been merged, even if it produced no records.
func (c *YearlyMetricCache) Has(year int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.years[year]
	return ok
}

// MarkYear records year as loaded without adding records.
func (c *YearlyMetricCache) MarkYear(year int) {
	c.mu.Lock()
	c.years[year] = struct{}{}
	c.mu.Unlock()
}

// Merge adds records, replacing any existing record with the same
// (year, month). Within one batch the last occurrence wins. Records with
// an invalid year or month are dropped. The whole batch is applied under
// one lock, so readers never see half of it.
func (c *YearlyMetricCache) Merge(records []metric.Record) Snapshot {
	c.mu.Lock()
	for _, r := range records {
		if !r.Valid() {
			continue
		}
		c.records[r.Key()] = r.Clone()
		c.years[r.Year] = struct{}{}
	}
	c.mu.Unlock()

	return c.Snapshot()
}

// Slice returns the records of year sorted by month.
func (c *YearlyMetricCache) Slice(year int) []metric.Record {
	c.mu.RLock()
	out := make([]metric.Record, 0, 12)
	for k, r := range c.records {
		if k.Year == year {
			out = append(out, r.Clone())
		}
	}
	c.mu.RUnlock()

	metric.SortByMonth(out)
	return out
}

// Snapshot copies every record, ordered by year and month.
func (c *YearlyMetricCache) Snapshot() Snapshot {
	c.mu.RLock()
	records := make([]metric.Record, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, r.Clone())
	}
	years := c.knownYearsLocked()
	c.mu.RUnlock()

	metric.SortByMonth(records)
	return Snapshot{Records: records, KnownYears: years}
}

// KnownYears lists merged years in ascending order.
func (c *YearlyMetricCache) KnownYears() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.knownYearsLocked()
}

func (c *YearlyMetricCache) knownYearsLocked() []int {
	years := make([]int, 0, len(c.years))
	for y := range c.years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Len is the number of cached records.
func (c *YearlyMetricCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Reset discards everything.
func (c *YearlyMetricCache) Reset() {
	c.mu.Lock()
	c.records = make(map[metric.Key]metric.Record)
	c.years = make(map[int]struct{})
	c.mu.Unlock()
}
