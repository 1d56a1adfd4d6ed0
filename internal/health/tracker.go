// Package health records per-project, per-connector fetch outcomes.
package health

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/khabarwatch/khabarwatch/internal/models"
)

// Store is the slice of persistence the tracker needs.
type Store interface {
	UpsertHealth(health models.ConnectorHealth) error
}

// Tracker upserts one health row per (project, connector) after every
// connector invocation, success or failure.
type Tracker struct {
	store Store
}

// NewTracker creates a health tracker.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// MarkOK records a successful connector invocation.
func (t *Tracker) MarkOK(projectID, connector string, at time.Time) {
	t.record(models.ConnectorHealth{
		ProjectID: projectID,
		Connector: connector,
		Status:    models.HealthOK,
		LastError: "",
		CheckedAt: at,
	})
}

// MarkDegraded records a failed connector invocation with its error text.
func (t *Tracker) MarkDegraded(projectID, connector, errText string, at time.Time) {
	t.record(models.ConnectorHealth{
		ProjectID: projectID,
		Connector: connector,
		Status:    models.HealthDegraded,
		LastError: errText,
		CheckedAt: at,
	})
}

func (t *Tracker) record(h models.ConnectorHealth) {
	if err := t.store.UpsertHealth(h); err != nil {
		// Health bookkeeping must never fail an ingestion batch.
		logrus.Errorf("Failed to upsert health for project %s connector %s: %v", h.ProjectID, h.Connector, err)
	}
}
