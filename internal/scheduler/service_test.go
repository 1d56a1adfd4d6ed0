package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/khabarwatch/khabarwatch/internal/ingest"
	"github.com/khabarwatch/khabarwatch/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ActiveProjects() ([]models.Project, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *MockStore) GetAccount(id string) (*models.Account, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

// recordingRunner counts dispatches and remembers which projects ran.
type recordingRunner struct {
	mu   sync.Mutex
	ran  []string
	done chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, project models.Project) (ingest.Result, error) {
	r.mu.Lock()
	r.ran = append(r.ran, project.ID)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return ingest.Result{}, nil
}

func (r *recordingRunner) ranProjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func TestDue_NeverRunProject(t *testing.T) {
	store := &MockStore{}
	s := NewService(store, &recordingRunner{}, 60, 4)

	project := models.Project{ID: "p1", AccountID: "a1", ScheduleMinutes: 60}
	assert.True(t, s.due(project, time.Now().UTC()))
	store.AssertNotCalled(t, "GetAccount", mock.Anything)
}

func TestDue_ElapsedAgainstInterval(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		plan            string
		scheduleMinutes int
		lastRunAgo      time.Duration
		expected        bool
	}{
		{"Interval not yet elapsed", "growth", 30, 10 * time.Minute, false},
		{"Interval exactly elapsed", "growth", 30, 30 * time.Minute, true},
		{"Interval long elapsed", "growth", 30, 2 * time.Hour, true},
		// A free account asking for 5-minute polling is clamped to 60.
		{"Free plan clamps tight interval", "free", 5, 20 * time.Minute, false},
		{"Free plan due after clamp window", "free", 5, 61 * time.Minute, true},
		{"Starter plan honors 15m floor", "starter", 5, 16 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{}
			store.On("GetAccount", "a1").Return(&models.Account{ID: "a1", Plan: tt.plan}, nil)
			s := NewService(store, &recordingRunner{}, 60, 4)

			lastRun := now.Add(-tt.lastRunAgo)
			project := models.Project{
				ID:              "p1",
				AccountID:       "a1",
				ScheduleMinutes: tt.scheduleMinutes,
				LastRunAt:       &lastRun,
			}
			assert.Equal(t, tt.expected, s.due(project, now))
		})
	}
}

func TestDue_AccountLookupFailureKeepsRequestedInterval(t *testing.T) {
	store := &MockStore{}
	store.On("GetAccount", "a1").Return(nil, errors.New("database locked"))
	s := NewService(store, &recordingRunner{}, 60, 4)

	now := time.Now().UTC()
	lastRun := now.Add(-10 * time.Minute)
	project := models.Project{ID: "p1", AccountID: "a1", ScheduleMinutes: 5, LastRunAt: &lastRun}

	assert.True(t, s.due(project, now))
}

func TestTick_DispatchesDueProjects(t *testing.T) {
	store := &MockStore{}
	runner := &recordingRunner{done: make(chan struct{}, 2)}
	s := NewService(store, runner, 60, 4)

	lastRun := time.Now().UTC().Add(-5 * time.Minute)
	store.On("ActiveProjects").Return([]models.Project{
		{ID: "due-1", AccountID: "a1", ScheduleMinutes: 60},
		{ID: "not-due", AccountID: "a1", ScheduleMinutes: 60, LastRunAt: &lastRun},
		{ID: "due-2", AccountID: "a1", ScheduleMinutes: 60},
	}, nil)
	store.On("GetAccount", "a1").Return(&models.Account{ID: "a1", Plan: "free"}, nil)

	s.tick()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatched runs")
		}
	}

	ran := runner.ranProjects()
	assert.ElementsMatch(t, []string{"due-1", "due-2"}, ran)
}

func TestTick_StoreFailureIsSwallowed(t *testing.T) {
	store := &MockStore{}
	runner := &recordingRunner{}
	s := NewService(store, runner, 60, 4)

	store.On("ActiveProjects").Return(nil, errors.New("database locked"))

	assert.NotPanics(t, func() { s.tick() })
	assert.Empty(t, runner.ranProjects())
}

func TestTick_CapacityDefersOverflow(t *testing.T) {
	store := &MockStore{}
	block := make(chan struct{})
	runner := &blockingRunner{block: block, started: make(chan struct{}, 4)}
	s := NewService(store, runner, 60, 1)

	store.On("ActiveProjects").Return([]models.Project{
		{ID: "p1", AccountID: "a1", ScheduleMinutes: 60},
		{ID: "p2", AccountID: "a1", ScheduleMinutes: 60},
	}, nil)

	s.tick()

	// Exactly one run starts; the second project is deferred to a later
	// tick rather than queued.
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("no run started")
	}
	select {
	case <-runner.started:
		t.Fatal("second run started despite capacity of 1")
	case <-time.After(100 * time.Millisecond):
	}

	close(block)
}

type blockingRunner struct {
	block   chan struct{}
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, project models.Project) (ingest.Result, error) {
	r.started <- struct{}{}
	<-r.block
	return ingest.Result{}, nil
}
