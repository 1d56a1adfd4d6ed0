package connectors

import (
	"context"
	"strings"
	"time"

	"github.com/khabarwatch/khabarwatch/internal/models"
)

// Connector is the contract every data source adapter implements. Adapters
// talk only to their external API; they never touch persistence.
type Connector interface {
	ID() string
	Name() string
	DefaultEnabled() bool
	Capabilities() Capabilities
	Fetch(ctx context.Context, job Job) ([]RawMention, error)
}

// Capabilities describes what a source can do.
type Capabilities struct {
	SupportsRealtime bool   `json:"supports_realtime"`
	SupportsSearch   bool   `json:"supports_search"`
	LimitsNote       string `json:"limits_note"`
}

// Job carries what a connector needs for one fetch: the project (for query
// terms) and the time window, From being the project's last run.
type Job struct {
	Project models.Project
	From    time.Time
	To      time.Time
}

// RawMention is one unenriched item from a source. PublishedAt stays in the
// source-native format; the orchestrator parses it.
type RawMention struct {
	SourceID    string
	Title       string
	Text        string
	Author      string
	URL         string
	PublishedAt string
	Likes       int
	Comments    int
	Shares      int
	Followers   int
}

// SearchTerms builds the free-text query for a search-capable source:
// keywords joined with spaces, else the boolean query string, else the
// project name.
func SearchTerms(p models.Project) string {
	if len(p.Keywords) > 0 {
		return strings.Join(p.Keywords, " ")
	}
	if strings.TrimSpace(p.BooleanQuery) != "" {
		return p.BooleanQuery
	}
	return p.Name
}

// dedupeBySourceID drops repeated items within one fetch.
func dedupeBySourceID(mentions []RawMention) []RawMention {
	seen := make(map[string]bool)
	var unique []RawMention

	for _, m := range mentions {
		if !seen[m.SourceID] {
			seen[m.SourceID] = true
			unique = append(unique, m)
		}
	}

	return unique
}
