package store

import (
	"time"

	"github.com/khabarwatch/khabarwatch/internal/models"
)

// Store defines the persistence operations the ingestion core needs.
type Store interface {
	// Accounts
	GetAccount(id string) (*models.Account, error)

	// Projects
	GetProject(id string) (*models.Project, error)
	ActiveProjects() ([]models.Project, error)
	SetProjectLastRun(id string, at time.Time) error
	DeleteProject(id string) error

	// Mentions. InsertMentions is non-atomic across items: uniqueness
	// conflicts are skipped and the count of rows actually written is
	// returned; any other error aborts the batch.
	InsertMentions(mentions []models.Mention) (int, error)
	CountMentionsSince(projectID string, since time.Time) (int64, error)
	ExistingFingerprints(projectID string, fingerprints []string) (map[string]bool, error)

	// Usage ledger
	GetOrCreateUsage(accountID, month string) (*models.UsageRecord, error)
	IncrementUsage(accountID, month string, n int64) error

	// Alerts
	InsertAlert(alert *models.Alert) error

	// Connector health
	UpsertHealth(health models.ConnectorHealth) error
	HealthForProject(projectID string) ([]models.ConnectorHealth, error)
}
