// Package errors provides the structured error taxonomy for charoster along
// with a collector for load failures and a central handler that logs errors
// and forwards user-visible ones to the error notification.
package errors

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Record is one collected error with the moment it was observed.
type Record struct {
	Err       *CharosterError
	Timestamp time.Time
}

// Collector collects errors raised while loading packs so a caller can report
// them after a discovery run.
type Collector struct {
	records []Record
	mutex   sync.RWMutex
}

// NewCollector creates a new error collector
func NewCollector() *Collector {
	return &Collector{
		records: make([]Record, 0),
	}
}

// Add records an error. Plain errors are wrapped as internal errors.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	var ce *CharosterError
	if !errors.As(err, &ce) {
		ce = NewInternalError(ErrCodeInternalError, "unexpected error", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.records = append(c.records, Record{Err: ce, Timestamp: time.Now()})
}

// NotifyError implements Notifier so a collector can sit behind an ErrorHandler
func (c *Collector) NotifyError(_ context.Context, err *CharosterError) {
	c.Add(err)
}

// Records returns a copy of the collected records
func (c *Collector) Records() []Record {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make([]Record, len(c.records))
	copy(result, c.records)
	return result
}

// HasErrors returns true if there are any errors
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.records) > 0
}

// Count returns the number of collected errors of the given type, or of
// every type when errType is empty
func (c *Collector) Count(errType ErrorType) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if errType == "" {
		return len(c.records)
	}
	n := 0
	for _, r := range c.records {
		if r.Err.Type == errType {
			n++
		}
	}
	return n
}

// ByPath returns the errors raised for one file
func (c *Collector) ByPath(path string) []*CharosterError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var result []*CharosterError
	for _, r := range c.records {
		if r.Err.Path == path {
			result = append(result, r.Err)
		}
	}
	return result
}

// Clear clears all errors
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.records = c.records[:0]
}

// MultiNotifier fans an error notification out to several notifiers
type MultiNotifier []Notifier

// NotifyError forwards to every non-nil notifier
func (m MultiNotifier) NotifyError(ctx context.Context, err *CharosterError) {
	for _, n := range m {
		if n != nil {
			n.NotifyError(ctx, err)
		}
	}
}
