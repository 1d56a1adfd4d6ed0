package ingest

import "time"

// Metrics is a snapshot of ingestion activity since process start.
type Metrics struct {
	TotalInserted   int64          `json:"total_inserted"`
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	SourceCounts    map[string]int `json:"source_counts"`
	ErrorCount      int            `json:"error_count"`
}

func (o *Orchestrator) updateMetrics(inserted, errors int, sources map[string]int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.metrics.TotalInserted += int64(inserted)
	o.metrics.LastRun = o.now().UTC()
	o.metrics.LastRunDuration = duration.String()
	o.metrics.ErrorCount += errors

	for source, count := range sources {
		o.metrics.SourceCounts[source] += count
	}
}

// Snapshot returns a copy of the current metrics.
func (o *Orchestrator) Snapshot() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snapshot := o.metrics
	snapshot.SourceCounts = make(map[string]int, len(o.metrics.SourceCounts))
	for source, count := range o.metrics.SourceCounts {
		snapshot.SourceCounts[source] = count
	}
	return snapshot
}
