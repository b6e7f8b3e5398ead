package orchestrator

import (
	"sync"
	"time"

	"github.com/opencorpdata/corpmap/pkg/company"
)

// collector accumulates source records and call accounting across the
// concurrently running phases. All methods are safe for concurrent use.
type collector struct {
	mu      sync.Mutex
	records []company.SourceRecord
	m       company.Meta
}

func newCollector() *collector {
	return &collector{
		m: company.Meta{Timing: make(map[string]int)},
	}
}

// add appends extracted source records.
func (c *collector) add(records ...company.SourceRecord) {
	if len(records) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

// attempt counts one adapter call about to be made.
func (c *collector) attempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Attempted++
}

// success counts one adapter call that returned a usable payload.
func (c *collector) success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Succeeded++
}

// failure counts one failed adapter call and records it for the caller.
func (c *collector) failure(source company.SourceID, phase string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Failed++
	c.m.Errors = append(c.m.Errors, company.CallError{
		Source:  source,
		Phase:   phase,
		Message: err.Error(),
	})
}

// timing records the wall time of one phase in milliseconds.
func (c *collector) timing(phase string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Timing[phase] = int(d.Milliseconds())
}

// take returns the collected records. Called once after all phases finish.
func (c *collector) take() []company.SourceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records
}

// meta returns a copy of the accumulated call accounting.
func (c *collector) meta() company.Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}
