// Package ingest coordinates one ingestion batch for one project: connector
// fan-out, filtering, enrichment, persistence and post-batch bookkeeping.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/khabarwatch/khabarwatch/internal/archive"
	"github.com/khabarwatch/khabarwatch/internal/booleanquery"
	"github.com/khabarwatch/khabarwatch/internal/classify"
	"github.com/khabarwatch/khabarwatch/internal/connectors"
	"github.com/khabarwatch/khabarwatch/internal/health"
	"github.com/khabarwatch/khabarwatch/internal/models"
	"github.com/khabarwatch/khabarwatch/internal/plans"
	"github.com/khabarwatch/khabarwatch/internal/similarity"
	"github.com/khabarwatch/khabarwatch/internal/usage"
)

// ReasonLimit annotates a run short-circuited by the monthly quota.
const ReasonLimit = "limit"

// Result is what one orchestrator invocation reports, whether triggered by
// the scheduler or by a manual run.
type Result struct {
	Inserted int    `json:"inserted"`
	Reason   string `json:"reason,omitempty"`
}

// Store is the slice of persistence the orchestrator needs.
type Store interface {
	GetAccount(id string) (*models.Account, error)
	InsertMentions(mentions []models.Mention) (int, error)
	ExistingFingerprints(projectID string, fingerprints []string) (map[string]bool, error)
	SetProjectLastRun(id string, at time.Time) error
}

// AlertSink receives post-batch alerting work.
type AlertSink interface {
	Create(ctx context.Context, accountID, projectID, alertType, message string, payload map[string]any) (*models.Alert, error)
	CheckForSpike(ctx context.Context, project models.Project) error
}

// Options tunes orchestrator behavior.
type Options struct {
	// ConnectorTimeout bounds each connector fetch. A connector that
	// exceeds it is abandoned for this invocation, not killed.
	ConnectorTimeout time.Duration

	// DedupPolicy is "off" (store fingerprints only) or "reject" (drop
	// items whose fingerprint already exists for the project).
	DedupPolicy string
}

// Orchestrator runs the ingestion state machine for one project at a time.
type Orchestrator struct {
	store      Store
	connectors []connectors.Connector
	classifier *classify.SentimentClassifier
	tracker    *health.Tracker
	ledger     *usage.Ledger
	alerts     AlertSink
	archiver   archive.Archiver // nil when archival is not configured
	opts       Options

	locks *lockArena
	now   func() time.Time

	mu      sync.RWMutex
	metrics Metrics
}

// NewOrchestrator wires an orchestrator. archiver may be nil.
func NewOrchestrator(
	store Store,
	conns []connectors.Connector,
	classifier *classify.SentimentClassifier,
	tracker *health.Tracker,
	ledger *usage.Ledger,
	alerts AlertSink,
	archiver archive.Archiver,
	opts Options,
) *Orchestrator {
	if opts.ConnectorTimeout <= 0 {
		opts.ConnectorTimeout = 25 * time.Second
	}

	return &Orchestrator{
		store:      store,
		connectors: conns,
		classifier: classifier,
		tracker:    tracker,
		ledger:     ledger,
		alerts:     alerts,
		archiver:   archiver,
		opts:       opts,
		locks:      newLockArena(),
		now:        time.Now,
		metrics:    Metrics{SourceCounts: make(map[string]int)},
	}
}

// Run executes one ingestion batch for the project. Per-connector and
// per-item failures are isolated here; the returned error covers only
// failures before fan-out starts (account or usage lookups).
func (o *Orchestrator) Run(ctx context.Context, project models.Project) (Result, error) {
	lock := o.locks.forProject(project.ID)
	lock.Lock()
	defer lock.Unlock()

	if project.Status != models.ProjectActive {
		return Result{}, nil
	}

	start := o.now()
	now := start.UTC()

	account, err := o.store.GetAccount(project.AccountID)
	if err != nil {
		return Result{}, err
	}

	limits := plans.ForPlan(account.Plan)
	record, err := o.ledger.Current(account.ID, now)
	if err != nil {
		return Result{}, err
	}

	// Checked once per batch: a batch that starts under quota may finish
	// over it. The overshoot is bounded and accepted.
	if record.MentionCount >= limits.MonthlyMentionQuota {
		logrus.Infof("Project %s skipped: account %s is at its monthly quota", project.ID, account.ID)
		return Result{Reason: ReasonLimit}, nil
	}

	from := now.Add(-24 * time.Hour)
	if project.LastRunAt != nil {
		from = project.LastRunAt.UTC()
	}
	job := connectors.Job{Project: project, From: from, To: now}

	inserted := 0
	errorCount := 0
	sourceCounts := make(map[string]int)

	for _, out := range o.fanOut(ctx, job) {
		connectorID := out.connector.ID()

		if out.err != nil {
			errorCount++
			o.tracker.MarkDegraded(project.ID, connectorID, out.err.Error(), o.now().UTC())
			logrus.WithFields(logrus.Fields{
				"project":   project.ID,
				"connector": connectorID,
			}).Errorf("Connector failed: %v", out.err)
			continue
		}

		o.tracker.MarkOK(project.ID, connectorID, o.now().UTC())

		if o.archiver != nil && len(out.mentions) > 0 {
			if err := o.archiver.StoreBatch(ctx, project.ID, connectorID, out.mentions); err != nil {
				logrus.Errorf("Failed to archive batch for connector %s: %v", connectorID, err)
			}
		}

		enriched := o.enrich(ctx, project, connectorID, out.mentions)
		if o.opts.DedupPolicy == "reject" {
			enriched = o.rejectDuplicates(project.ID, enriched)
		}
		if len(enriched) == 0 {
			continue
		}

		n, err := o.store.InsertMentions(enriched)
		inserted += n
		sourceCounts[connectorID] += n
		if err != nil {
			// Fatal for this connector's batch only.
			errorCount++
			logrus.Errorf("Insert failed for connector %s: %v", connectorID, err)
		}
	}

	if inserted > 0 {
		if err := o.ledger.Add(account.ID, now, int64(inserted)); err != nil {
			logrus.Errorf("Failed to increment usage for account %s: %v", account.ID, err)
		}

		message := fmt.Sprintf("%d new mentions for %s", inserted, project.Name)
		if _, err := o.alerts.Create(ctx, account.ID, project.ID, models.AlertNewMentions, message,
			map[string]any{"count": inserted}); err != nil {
			logrus.Errorf("Failed to create new_mentions alert for project %s: %v", project.ID, err)
		}

		if err := o.alerts.CheckForSpike(ctx, project); err != nil {
			logrus.Errorf("Spike check failed for project %s: %v", project.ID, err)
		}
	}

	// Always stamped: this anchors the next scheduling window.
	if err := o.store.SetProjectLastRun(project.ID, now); err != nil {
		logrus.Errorf("Failed to stamp lastRunAt for project %s: %v", project.ID, err)
	}

	o.updateMetrics(inserted, errorCount, sourceCounts, o.now().Sub(start))
	logrus.Infof("Project %s ingested %d mentions in %v (%d connector errors)",
		project.ID, inserted, o.now().Sub(start), errorCount)

	return Result{Inserted: inserted}, nil
}

type fetchOutcome struct {
	connector connectors.Connector
	mentions  []connectors.RawMention
	err       error
}

func (o *Orchestrator) fanOut(ctx context.Context, job connectors.Job) []fetchOutcome {
	selected := o.enabledConnectors(job.Project)

	outcomes := make(chan fetchOutcome, len(selected))
	var wg sync.WaitGroup

	for _, c := range selected {
		wg.Add(1)
		go func(c connectors.Connector) {
			defer wg.Done()
			outcomes <- o.fetchWithTimeout(ctx, c, job)
		}(c)
	}

	wg.Wait()
	close(outcomes)

	var all []fetchOutcome
	for out := range outcomes {
		all = append(all, out)
	}
	return all
}

// fetchWithTimeout races a fetch against the connector timeout. On timeout
// the fetch goroutine is abandoned; its eventual result lands in the
// buffered channel and is discarded.
func (o *Orchestrator) fetchWithTimeout(ctx context.Context, c connectors.Connector, job connectors.Job) fetchOutcome {
	cctx, cancel := context.WithTimeout(ctx, o.opts.ConnectorTimeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		mentions, err := c.Fetch(cctx, job)
		done <- fetchOutcome{connector: c, mentions: mentions, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-cctx.Done():
		return fetchOutcome{
			connector: c,
			err:       fmt.Errorf("connector %s timed out after %v", c.ID(), o.opts.ConnectorTimeout),
		}
	}
}

// enabledConnectors applies the project's per-source overrides on top of
// each connector's default-enabled flag.
func (o *Orchestrator) enabledConnectors(project models.Project) []connectors.Connector {
	var selected []connectors.Connector
	for _, c := range o.connectors {
		enabled := c.DefaultEnabled()
		if override, ok := project.Sources[c.ID()]; ok {
			enabled = override
		}
		if enabled {
			selected = append(selected, c)
		}
	}
	return selected
}

// enrich runs the per-item pipeline: query filtering, keyword matching,
// language and sentiment classification, reach estimation and
// fingerprinting.
func (o *Orchestrator) enrich(ctx context.Context, project models.Project, source string, raw []connectors.RawMention) []models.Mention {
	cleanQuery := booleanquery.Sanitize(project.BooleanQuery)

	var enriched []models.Mention
	for _, rm := range raw {
		combined := strings.TrimSpace(rm.Title + " " + rm.Text)

		if !booleanquery.Evaluate(cleanQuery, combined) {
			continue
		}

		keyword := matchKeyword(project.Keywords, combined)
		if len(project.Keywords) > 0 && keyword == "" {
			continue
		}

		sentiment := o.classifier.InferSentiment(ctx, combined)

		enriched = append(enriched, models.Mention{
			ID:             uuid.New().String(),
			ProjectID:      project.ID,
			Source:         source,
			SourceID:       rm.SourceID,
			KeywordMatched: keyword,
			Title:          rm.Title,
			Content:        rm.Text,
			Author:         rm.Author,
			URL:            rm.URL,
			PublishedAt:    parsePublishedAt(rm.PublishedAt),
			Likes:          rm.Likes,
			Comments:       rm.Comments,
			Shares:         rm.Shares,
			Followers:      rm.Followers,
			Reach:          reachEstimate(source, rm),
			Language:       classify.DetectLanguage(combined),
			Geo:            project.GeoFocus,
			SentimentLabel: sentiment.Label,
			SentimentScore: sentiment.Confidence,
			Fingerprint:    similarity.Fingerprint(rm.Title + " " + rm.Text),
			CreatedAt:      o.now().UTC(),
		})
	}

	return enriched
}

// rejectDuplicates drops items whose fingerprint already exists for the
// project, or repeats within the batch itself.
func (o *Orchestrator) rejectDuplicates(projectID string, mentions []models.Mention) []models.Mention {
	var fingerprints []string
	for _, m := range mentions {
		if m.Fingerprint != "" {
			fingerprints = append(fingerprints, m.Fingerprint)
		}
	}

	existing, err := o.store.ExistingFingerprints(projectID, fingerprints)
	if err != nil {
		logrus.Errorf("Fingerprint lookup failed for project %s, keeping batch: %v", projectID, err)
		return mentions
	}

	var kept []models.Mention
	for _, m := range mentions {
		if m.Fingerprint != "" && existing[m.Fingerprint] {
			continue
		}
		if m.Fingerprint != "" {
			existing[m.Fingerprint] = true
		}
		kept = append(kept, m)
	}
	return kept
}

// matchKeyword returns the first keyword whose lowercase form is a
// substring of the text, or "" when none match.
func matchKeyword(keywords []string, text string) string {
	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return keyword
		}
	}
	return ""
}

// reachEstimate proxies audience size: a real follower count wins, else a
// source-specific heuristic.
func reachEstimate(source string, rm connectors.RawMention) int {
	if rm.Followers > 0 {
		return rm.Followers
	}
	switch source {
	case "youtube":
		return 10 * rm.Likes
	case "reddit":
		return 5 * rm.Comments
	}
	return 0
}

var publishedAtLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05-0700", // Graph API
	time.RFC822Z,
}

func parsePublishedAt(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range publishedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
