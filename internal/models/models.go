package models

import "time"

// Project lifecycle states. Archived projects are excluded from scheduling
// and cascade-delete their mentions, health records and alerts.
const (
	ProjectActive   = "active"
	ProjectPaused   = "paused"
	ProjectArchived = "archived"
)

// ConnectorHealth statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Alert types.
const (
	AlertNewMentions = "new_mentions"
	AlertSpike       = "spike"
)

// Account is the owning principal for projects. Authentication lives
// elsewhere; the core only needs plan and email.
type Account struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	Email     string `gorm:"size:191" json:"email"`
	Plan      string `gorm:"size:32;default:'free'" json:"plan"`
	CreatedAt time.Time
}

// Project is one monitored brand/topic.
type Project struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	AccountID       string          `gorm:"size:36;index" json:"account_id"`
	Name            string          `gorm:"size:191" json:"name"`
	Keywords        []string        `gorm:"serializer:json" json:"keywords"`
	BooleanQuery    string          `json:"boolean_query"`
	Sources         map[string]bool `gorm:"serializer:json" json:"sources"` // per-connector enable overrides
	ScheduleMinutes int             `json:"schedule_minutes"`
	GeoFocus        string          `gorm:"size:64" json:"geo_focus"`
	Status          string          `gorm:"size:16;index;default:'active'" json:"status"`
	LastRunAt       *time.Time      `json:"last_run_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Mention is one piece of matched content. Written only by the ingestion
// orchestrator, after full enrichment.
type Mention struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ProjectID      string     `gorm:"size:36;index;uniqueIndex:ux_mentions_project_source" json:"project_id"`
	Source         string     `gorm:"size:32;index" json:"source"`
	SourceID       string     `gorm:"size:191;uniqueIndex:ux_mentions_project_source" json:"source_id"`
	KeywordMatched string     `gorm:"size:191" json:"keyword_matched"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Author         string     `gorm:"size:191" json:"author"`
	URL            string     `json:"url"`
	PublishedAt    *time.Time `json:"published_at"`
	Likes          int        `json:"likes"`
	Comments       int        `json:"comments"`
	Shares         int        `json:"shares"`
	Followers      int        `json:"followers"`
	Reach          int        `json:"reach"`
	Language       string     `gorm:"size:16" json:"language"`
	Geo            string     `gorm:"size:64" json:"geo"`
	SentimentLabel string     `gorm:"size:16" json:"sentiment_label"`
	SentimentScore float64    `json:"sentiment_score"`
	Fingerprint    string     `gorm:"size:64;index" json:"fingerprint"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
}

// ConnectorHealth is one row per (project, connector), upserted after every
// connector invocation.
type ConnectorHealth struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID string    `gorm:"size:36;uniqueIndex:ux_health_project_connector" json:"project_id"`
	Connector string    `gorm:"size:32;uniqueIndex:ux_health_project_connector" json:"connector"`
	Status    string    `gorm:"size:16" json:"status"`
	LastError string    `json:"last_error"`
	CheckedAt time.Time `json:"checked_at"`
}

// UsageRecord is the monthly mention counter for one account. Month is the
// calendar bucket in "2006-01" form. Created lazily, never decremented.
type UsageRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AccountID    string    `gorm:"size:36;uniqueIndex:ux_usage_account_month" json:"account_id"`
	Month        string    `gorm:"size:7;uniqueIndex:ux_usage_account_month" json:"month"`
	MentionCount int64     `json:"mention_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Alert is a write-once notification record, read by the UI and the
// realtime push layer.
type Alert struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	AccountID string         `gorm:"size:36;index" json:"account_id"`
	ProjectID string         `gorm:"size:36;index" json:"project_id"`
	Type      string         `gorm:"size:32" json:"type"`
	Message   string         `json:"message"`
	Payload   map[string]any `gorm:"serializer:json" json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
