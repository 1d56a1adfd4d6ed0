package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/khabarwatch/khabarwatch/internal/classify"
	"github.com/khabarwatch/khabarwatch/internal/connectors"
	"github.com/khabarwatch/khabarwatch/internal/health"
	"github.com/khabarwatch/khabarwatch/internal/models"
	"github.com/khabarwatch/khabarwatch/internal/usage"
)

// MockStore covers the store slices used by the orchestrator, the health
// tracker and the usage ledger.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetAccount(id string) (*models.Account, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockStore) InsertMentions(mentions []models.Mention) (int, error) {
	args := m.Called(mentions)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ExistingFingerprints(projectID string, fingerprints []string) (map[string]bool, error) {
	args := m.Called(projectID, fingerprints)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockStore) SetProjectLastRun(id string, at time.Time) error {
	args := m.Called(id, at)
	return args.Error(0)
}

func (m *MockStore) UpsertHealth(h models.ConnectorHealth) error {
	args := m.Called(h)
	return args.Error(0)
}

func (m *MockStore) GetOrCreateUsage(accountID, month string) (*models.UsageRecord, error) {
	args := m.Called(accountID, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageRecord), args.Error(1)
}

func (m *MockStore) IncrementUsage(accountID, month string, n int64) error {
	args := m.Called(accountID, month, n)
	return args.Error(0)
}

// MockAlertSink is a mock implementation of the alert emitter
type MockAlertSink struct {
	mock.Mock
}

func (m *MockAlertSink) Create(ctx context.Context, accountID, projectID, alertType, message string, payload map[string]any) (*models.Alert, error) {
	args := m.Called(accountID, projectID, alertType, message, payload)
	return &models.Alert{Type: alertType}, args.Error(0)
}

func (m *MockAlertSink) CheckForSpike(ctx context.Context, project models.Project) error {
	args := m.Called(project)
	return args.Error(0)
}

// stubConnector is a canned connector for fan-out tests
type stubConnector struct {
	id       string
	enabled  bool
	mentions []connectors.RawMention
	err      error
	delay    time.Duration
}

func (s *stubConnector) ID() string           { return s.id }
func (s *stubConnector) Name() string         { return s.id }
func (s *stubConnector) DefaultEnabled() bool { return s.enabled }
func (s *stubConnector) Capabilities() connectors.Capabilities {
	return connectors.Capabilities{SupportsSearch: true}
}

func (s *stubConnector) Fetch(ctx context.Context, job connectors.Job) ([]connectors.RawMention, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.mentions, s.err
}

func newTestOrchestrator(store *MockStore, sink *MockAlertSink, conns []connectors.Connector, opts Options) *Orchestrator {
	return NewOrchestrator(
		store,
		conns,
		classify.NewSentimentClassifier("", ""),
		health.NewTracker(store),
		usage.NewLedger(store),
		sink,
		nil,
		opts,
	)
}

func activeProject() models.Project {
	return models.Project{
		ID:        "proj-1",
		AccountID: "acct-1",
		Name:      "Brand",
		Keywords:  []string{"election"},
		Status:    models.ProjectActive,
	}
}

func expectUnderQuota(store *MockStore, used int64) {
	store.On("GetAccount", "acct-1").Return(&models.Account{ID: "acct-1", Plan: "free"}, nil)
	store.On("GetOrCreateUsage", "acct-1", mock.Anything).
		Return(&models.UsageRecord{AccountID: "acct-1", MentionCount: used}, nil)
}

func TestRun_InactiveProjectIsTerminal(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	o := newTestOrchestrator(store, sink, nil, Options{})

	project := activeProject()
	project.Status = models.ProjectPaused

	result, err := o.Run(context.Background(), project)

	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	store.AssertNotCalled(t, "GetAccount", mock.Anything)
	store.AssertNotCalled(t, "SetProjectLastRun", mock.Anything, mock.Anything)
}

func TestRun_QuotaShortCircuit(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{{SourceID: "r1", Text: "election"}}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	// Free plan quota is 500 mentions/month.
	expectUnderQuota(store, 500)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 0, Reason: ReasonLimit}, result)
	store.AssertNotCalled(t, "InsertMentions", mock.Anything)
	store.AssertNotCalled(t, "SetProjectLastRun", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpsertHealth", mock.Anything)
}

func TestRun_KeywordMatchInsertsEnrichedMention(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{{
		SourceID:    "r1",
		Title:       "Election results announced",
		Text:        "Counting finished overnight.",
		Author:      "reporter",
		URL:         "https://example.com/1",
		PublishedAt: "2026-08-31T09:00:00Z",
		Likes:       3,
		Comments:    4,
	}}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	expectUnderQuota(store, 0)

	var inserted []models.Mention
	store.On("InsertMentions", mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(0).([]models.Mention)
	}).Return(1, nil)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("IncrementUsage", "acct-1", mock.Anything, int64(1)).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)
	sink.On("Create", "acct-1", "proj-1", models.AlertNewMentions, mock.Anything, mock.Anything).Return(nil)
	sink.On("CheckForSpike", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	require.Len(t, inserted, 1)
	m := inserted[0]
	assert.Equal(t, "election", m.KeywordMatched)
	assert.Equal(t, "reddit", m.Source)
	assert.Equal(t, "r1", m.SourceID)
	assert.Equal(t, "en", m.Language)
	assert.NotEmpty(t, m.Fingerprint)
	assert.NotEmpty(t, m.ID)
	require.NotNil(t, m.PublishedAt)
	// Reach heuristic for reddit with no followers: 5x comments.
	assert.Equal(t, 20, m.Reach)

	store.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestRun_ConnectorFailureIsIsolated(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}

	item := func(id string) []connectors.RawMention {
		return []connectors.RawMention{{SourceID: id, Title: "Election update " + id}}
	}
	conns := []connectors.Connector{
		&stubConnector{id: "rss", enabled: true, mentions: item("a")},
		&stubConnector{id: "reddit", enabled: true, err: errors.New("reddit API returned status 503")},
		&stubConnector{id: "x", enabled: true, mentions: item("b")},
	}
	o := newTestOrchestrator(store, sink, conns, Options{})

	expectUnderQuota(store, 0)
	store.On("InsertMentions", mock.Anything).Return(1, nil)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("IncrementUsage", "acct-1", mock.Anything, int64(2)).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)
	sink.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("CheckForSpike", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	store.AssertCalled(t, "UpsertHealth", mock.MatchedBy(func(h models.ConnectorHealth) bool {
		return h.Connector == "reddit" && h.Status == models.HealthDegraded &&
			h.LastError == "reddit API returned status 503"
	}))
	store.AssertCalled(t, "UpsertHealth", mock.MatchedBy(func(h models.ConnectorHealth) bool {
		return h.Connector == "rss" && h.Status == models.HealthOK
	}))
	store.AssertCalled(t, "UpsertHealth", mock.MatchedBy(func(h models.ConnectorHealth) bool {
		return h.Connector == "x" && h.Status == models.HealthOK
	}))
}

func TestRun_TimeoutMarksConnectorDegraded(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "youtube", enabled: true, delay: 500 * time.Millisecond}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{
		ConnectorTimeout: 20 * time.Millisecond,
	})

	expectUnderQuota(store, 0)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	store.AssertCalled(t, "UpsertHealth", mock.MatchedBy(func(h models.ConnectorHealth) bool {
		return h.Connector == "youtube" && h.Status == models.HealthDegraded
	}))
	store.AssertNotCalled(t, "InsertMentions", mock.Anything)
}

func TestRun_DropsItemsWithoutKeywordMatch(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{
		{SourceID: "r1", Title: "Cricket scores today"},
	}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	expectUnderQuota(store, 0)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	store.AssertNotCalled(t, "InsertMentions", mock.Anything)
	sink.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	// lastRunAt is stamped even when nothing was inserted.
	store.AssertCalled(t, "SetProjectLastRun", "proj-1", mock.Anything)
}

func TestRun_BooleanQueryFilters(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{
		{SourceID: "r1", Title: "Election results announced"},
		{SourceID: "r2", Title: "Election cricket special"},
	}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	project := activeProject()
	project.BooleanQuery = "election AND NOT cricket"

	expectUnderQuota(store, 0)
	var inserted []models.Mention
	store.On("InsertMentions", mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(0).([]models.Mention)
	}).Return(1, nil)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("IncrementUsage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)
	sink.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("CheckForSpike", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), project)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, inserted, 1)
	assert.Equal(t, "r1", inserted[0].SourceID)
}

func TestRun_ZeroKeywordProjectAcceptsEverything(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "rss", enabled: true, mentions: []connectors.RawMention{
		{SourceID: "a", Title: "Anything goes"},
	}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	project := activeProject()
	project.Keywords = nil

	expectUnderQuota(store, 0)
	store.On("InsertMentions", mock.Anything).Return(1, nil)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("IncrementUsage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)
	sink.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("CheckForSpike", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), project)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
}

func TestRun_RejectPolicySkipsKnownFingerprints(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{
		{SourceID: "r1", Title: "Election results announced"},
		{SourceID: "r2", Title: "Election results announced"}, // same content, same fingerprint
	}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{DedupPolicy: "reject"})

	expectUnderQuota(store, 0)
	store.On("ExistingFingerprints", "proj-1", mock.Anything).Return(map[string]bool{}, nil)
	var inserted []models.Mention
	store.On("InsertMentions", mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(0).([]models.Mention)
	}).Return(1, nil)
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("IncrementUsage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)
	sink.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("CheckForSpike", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, inserted, 1)
}

func TestRun_PerSourceOverridesDisableConnector(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{
		{SourceID: "r1", Title: "Election news"},
	}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	project := activeProject()
	project.Sources = map[string]bool{"reddit": false}

	expectUnderQuota(store, 0)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), project)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	store.AssertNotCalled(t, "UpsertHealth", mock.Anything)
}

func TestRun_InsertErrorFatalForConnectorBatchOnly(t *testing.T) {
	store := &MockStore{}
	sink := &MockAlertSink{}
	conn := &stubConnector{id: "reddit", enabled: true, mentions: []connectors.RawMention{
		{SourceID: "r1", Title: "Election one"},
		{SourceID: "r2", Title: "Election two"},
	}}
	o := newTestOrchestrator(store, sink, []connectors.Connector{conn}, Options{})

	expectUnderQuota(store, 0)
	// One row written before the store gave up.
	store.On("InsertMentions", mock.Anything).Return(1, errors.New("disk I/O error"))
	store.On("UpsertHealth", mock.Anything).Return(nil)
	store.On("IncrementUsage", "acct-1", mock.Anything, int64(1)).Return(nil)
	store.On("SetProjectLastRun", "proj-1", mock.Anything).Return(nil)
	sink.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("CheckForSpike", mock.Anything).Return(nil)

	result, err := o.Run(context.Background(), activeProject())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
}

func TestReachEstimate(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		mention  connectors.RawMention
		expected int
	}{
		{"Followers win", "x", connectors.RawMention{Followers: 1200, Likes: 10}, 1200},
		{"YouTube 10x likes", "youtube", connectors.RawMention{Likes: 7}, 70},
		{"Reddit 5x comments", "reddit", connectors.RawMention{Comments: 6}, 30},
		{"No signal", "rss", connectors.RawMention{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, reachEstimate(tt.source, tt.mention))
		})
	}
}

func TestParsePublishedAt(t *testing.T) {
	assert.Nil(t, parsePublishedAt(""))
	assert.Nil(t, parsePublishedAt("not a date"))

	rfc := parsePublishedAt("2026-08-31T09:00:00Z")
	require.NotNil(t, rfc)
	assert.Equal(t, 2026, rfc.Year())

	rss := parsePublishedAt("Mon, 31 Aug 2026 09:00:00 +0530")
	require.NotNil(t, rss)
	assert.Equal(t, time.August, rss.Month())
}
