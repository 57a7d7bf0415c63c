package memstore

import (
	"context"
	"sync"
)

// ObservationLog is an in-memory observation source for development and
// tests. The engine never writes to it through the vocabulary operations;
// Record stands in for the evidence-capture pipeline.
type ObservationLog struct {
	mu      sync.Mutex
	byScope map[string][]string
}

// NewObservationLog creates an empty log.
func NewObservationLog() *ObservationLog {
	return &ObservationLog{byScope: make(map[string][]string)}
}

// Record appends raw tag values for a scope, duplicates included.
func (l *ObservationLog) Record(projectID, attributeSlug string, values ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := projectID + "|" + attributeSlug
	l.byScope[key] = append(l.byScope[key], values...)
}

// RawValues returns every raw tag value recorded for the scope, in
// observation order.
func (l *ObservationLog) RawValues(ctx context.Context, projectID, attributeSlug string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	values := l.byScope[projectID+"|"+attributeSlug]
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}
