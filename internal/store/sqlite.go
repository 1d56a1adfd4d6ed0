package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/khabarwatch/khabarwatch/internal/models"
)

type sqlStore struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema.
func Open(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Account{},
		&models.Project{},
		&models.Mention{},
		&models.ConnectorHealth{},
		&models.UsageRecord{},
		&models.Alert{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &sqlStore{db: db}, nil
}

// NewWithDB wraps an already-open gorm handle. Used by tests.
func NewWithDB(db *gorm.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) GetAccount(id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return &account, nil
}

func (s *sqlStore) GetProject(id string) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}
	return &project, nil
}

func (s *sqlStore) ActiveProjects() ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.Where("status = ?", models.ProjectActive).Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to load active projects: %w", err)
	}
	return projects, nil
}

func (s *sqlStore) SetProjectLastRun(id string, at time.Time) error {
	return s.db.Model(&models.Project{}).
		Where("id = ?", id).
		Update("last_run_at", at).Error
}

// DeleteProject removes a project and cascades to its mentions, health
// records and alerts.
func (s *sqlStore) DeleteProject(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Mention{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ConnectorHealth{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Alert{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, "id = ?", id).Error
	})
}

func (s *sqlStore) InsertMentions(mentions []models.Mention) (int, error) {
	inserted := 0
	for i := range mentions {
		err := s.db.Create(&mentions[i]).Error
		if err == nil {
			inserted++
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return inserted, fmt.Errorf("failed to insert mention: %w", err)
	}
	return inserted, nil
}

func (s *sqlStore) CountMentionsSince(projectID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.Mention{}).
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count mentions: %w", err)
	}
	return count, nil
}

func (s *sqlStore) ExistingFingerprints(projectID string, fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(fingerprints) == 0 {
		return existing, nil
	}

	var found []string
	err := s.db.Model(&models.Mention{}).
		Where("project_id = ? AND fingerprint IN ?", projectID, fingerprints).
		Pluck("fingerprint", &found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprints: %w", err)
	}

	for _, fp := range found {
		existing[fp] = true
	}
	return existing, nil
}

func (s *sqlStore) GetOrCreateUsage(accountID, month string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := s.db.Where(models.UsageRecord{AccountID: accountID, Month: month}).
		FirstOrCreate(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load usage for account %s: %w", accountID, err)
	}
	return &record, nil
}

func (s *sqlStore) IncrementUsage(accountID, month string, n int64) error {
	return s.db.Model(&models.UsageRecord{}).
		Where("account_id = ? AND month = ?", accountID, month).
		Update("mention_count", gorm.Expr("mention_count + ?", n)).Error
}

func (s *sqlStore) InsertAlert(alert *models.Alert) error {
	if err := s.db.Create(alert).Error; err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertHealth(health models.ConnectorHealth) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "connector"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "checked_at"}),
	}).Create(&health).Error
}

func (s *sqlStore) HealthForProject(projectID string) ([]models.ConnectorHealth, error) {
	var rows []models.ConnectorHealth
	if err := s.db.Where("project_id = ?", projectID).Order("connector").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load connector health: %w", err)
	}
	return rows, nil
}
