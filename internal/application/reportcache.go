package application

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

type cachedReport struct {
	report   *model.Report
	storedAt time.Time
}

// ReportCache holds the most recent report of each session in memory so it
// can be downloaded or emailed without re-running the fetch.
type ReportCache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	reports map[string]cachedReport
}

// NewReportCache creates an empty cache whose entries live for ttl.
func NewReportCache(clock clockwork.Clock, ttl time.Duration) *ReportCache {
	return &ReportCache{
		clock:   clock,
		ttl:     ttl,
		reports: make(map[string]cachedReport),
	}
}

// Put stores report as the latest for sessionID and evicts stale entries.
func (c *ReportCache) Put(sessionID string, report *model.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for id, entry := range c.reports {
		if c.stale(entry, now) {
			delete(c.reports, id)
		}
	}
	c.reports[sessionID] = cachedReport{report: report, storedAt: now}
}

// Get returns the latest report for sessionID if it has not expired.
func (c *ReportCache) Get(sessionID string) (*model.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.reports[sessionID]
	if !ok {
		return nil, false
	}
	if c.stale(entry, c.clock.Now()) {
		delete(c.reports, sessionID)
		return nil, false
	}
	return entry.report, true
}

// Drop forgets the report of sessionID.
func (c *ReportCache) Drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, sessionID)
}

// Len returns the number of entries, stale or not.
func (c *ReportCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func (c *ReportCache) stale(entry cachedReport, now time.Time) bool {
	return c.ttl > 0 && !now.Before(entry.storedAt.Add(c.ttl))
}
