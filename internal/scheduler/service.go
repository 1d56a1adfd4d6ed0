// Package scheduler drives ingestion on a fixed tick: every tick it finds
// due active projects and dispatches the orchestrator for each.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/khabarwatch/khabarwatch/internal/ingest"
	"github.com/khabarwatch/khabarwatch/internal/models"
	"github.com/khabarwatch/khabarwatch/internal/plans"
)

// Store is the slice of persistence the scheduler needs.
type Store interface {
	ActiveProjects() ([]models.Project, error)
	GetAccount(id string) (*models.Account, error)
}

// Runner runs one ingestion batch. Satisfied by ingest.Orchestrator.
type Runner interface {
	Run(ctx context.Context, project models.Project) (ingest.Result, error)
}

// Service owns the process-wide repeating tick.
type Service struct {
	store       Store
	runner      Runner
	cron        *cron.Cron
	tickSeconds int
	sem         chan struct{}
	now         func() time.Time
}

// NewService creates a scheduler ticking every tickSeconds with at most
// maxConcurrent project runs in flight.
func NewService(store Store, runner Runner, tickSeconds, maxConcurrent int) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		store:       store,
		runner:      runner,
		cron:        cron.New(cron.WithSeconds()),
		tickSeconds: tickSeconds,
		sem:         make(chan struct{}, maxConcurrent),
		now:         time.Now,
	}
}

// Start begins ticking.
func (s *Service) Start() error {
	spec := fmt.Sprintf("@every %ds", s.tickSeconds)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started, ticking every %ds", s.tickSeconds)
	return nil
}

// Stop stops the tick timer. In-flight runs finish on their own.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}

// tick is the dispatch loop. Nothing from an ingestion batch may propagate
// here: a tick failure would starve every subsequent project.
func (s *Service) tick() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Scheduler tick panicked: %v", r)
		}
	}()

	projects, err := s.store.ActiveProjects()
	if err != nil {
		logrus.Errorf("Failed to load active projects: %v", err)
		return
	}

	now := s.now().UTC()
	for _, project := range projects {
		if !s.due(project, now) {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			// At capacity; the project stays due and runs next tick.
			logrus.Warnf("Run capacity reached, deferring project %s", project.ID)
			continue
		}

		go func(p models.Project) {
			defer func() {
				<-s.sem
				if r := recover(); r != nil {
					logrus.Errorf("Ingestion run panicked for project %s: %v", p.ID, r)
				}
			}()

			if _, err := s.runner.Run(context.Background(), p); err != nil {
				logrus.Errorf("Scheduled run failed for project %s: %v", p.ID, err)
			}
		}(project)
	}
}

// due treats a never-run project as immediately due; otherwise the elapsed
// time since the last run must cover the polling interval, clamped to the
// plan minimum.
func (s *Service) due(project models.Project, now time.Time) bool {
	if project.LastRunAt == nil {
		return true
	}

	interval := project.ScheduleMinutes
	if account, err := s.store.GetAccount(project.AccountID); err == nil {
		interval = plans.ClampInterval(account.Plan, interval)
	} else {
		logrus.Errorf("Failed to load account %s for interval clamp: %v", project.AccountID, err)
	}
	if interval < 1 {
		interval = 1
	}

	return now.Sub(project.LastRunAt.UTC()) >= time.Duration(interval)*time.Minute
}
