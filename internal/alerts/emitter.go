// Package alerts creates alert records, pushes them over the realtime
// layer and runs spike detection.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/khabarwatch/khabarwatch/internal/models"
	"github.com/khabarwatch/khabarwatch/internal/notifications"
	"github.com/khabarwatch/khabarwatch/internal/realtime"
)

// Spike detection constants: the floor avoids false positives on
// low-volume projects, the multiplier is a fixed sensitivity.
const (
	spikeFloor      = 5
	spikeMultiplier = 2
)

// Store is the slice of persistence the emitter needs.
type Store interface {
	InsertAlert(alert *models.Alert) error
	CountMentionsSince(projectID string, since time.Time) (int64, error)
	GetAccount(id string) (*models.Account, error)
}

// Emitter persists alerts and fans them out to push and email channels.
type Emitter struct {
	store        Store
	publisher    realtime.Publisher
	mailer       notifications.Mailer
	emailEnabled bool
	now          func() time.Time
}

// NewEmitter creates an alert emitter.
func NewEmitter(store Store, publisher realtime.Publisher, mailer notifications.Mailer, emailEnabled bool) *Emitter {
	return &Emitter{
		store:        store,
		publisher:    publisher,
		mailer:       mailer,
		emailEnabled: emailEnabled,
		now:          time.Now,
	}
}

// Create persists an alert and pushes it to the account and project
// channels. Push and email failures never fail the caller.
func (e *Emitter) Create(ctx context.Context, accountID, projectID, alertType, message string, payload map[string]any) (*models.Alert, error) {
	alert := &models.Alert{
		ID:        uuid.New().String(),
		AccountID: accountID,
		ProjectID: projectID,
		Type:      alertType,
		Message:   message,
		Payload:   payload,
		CreatedAt: e.now().UTC(),
	}

	if err := e.store.InsertAlert(alert); err != nil {
		return nil, err
	}

	// Fire-and-forget push to both addressees.
	if err := e.publisher.Publish(ctx, realtime.AccountChannel(accountID), alert); err != nil {
		logrus.Errorf("Failed to push alert %s to account channel: %v", alert.ID, err)
	}
	if err := e.publisher.Publish(ctx, realtime.ProjectChannel(projectID), alert); err != nil {
		logrus.Errorf("Failed to push alert %s to project channel: %v", alert.ID, err)
	}

	if e.emailEnabled {
		e.emailAlert(alert)
	}

	return alert, nil
}

func (e *Emitter) emailAlert(alert *models.Alert) {
	account, err := e.store.GetAccount(alert.AccountID)
	if err != nil {
		logrus.Errorf("Failed to load account %s for alert email: %v", alert.AccountID, err)
		return
	}
	if account.Email == "" {
		return
	}

	subject := fmt.Sprintf("khabarwatch alert: %s", alert.Type)
	e.mailer.Send(account.Email, subject, alert.Message)
}

// CheckForSpike compares the trailing hour against the trailing day's
// average hourly rate and raises a spike alert when the hour exceeds
// max(floor, multiplier x average).
func (e *Emitter) CheckForSpike(ctx context.Context, project models.Project) error {
	now := e.now().UTC()

	lastHour, err := e.store.CountMentionsSince(project.ID, now.Add(-time.Hour))
	if err != nil {
		return err
	}

	lastDay, err := e.store.CountMentionsSince(project.ID, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	averageHourly := float64(lastDay) / 24
	threshold := float64(spikeFloor)
	if scaled := spikeMultiplier * averageHourly; scaled > threshold {
		threshold = scaled
	}

	if float64(lastHour) <= threshold {
		return nil
	}

	message := fmt.Sprintf("Mention spike on %s: %d mentions in the last hour (average %.1f/h)",
		project.Name, lastHour, averageHourly)

	_, err = e.Create(ctx, project.AccountID, project.ID, models.AlertSpike, message, map[string]any{
		"last_hour_count": lastHour,
		"last_day_count":  lastDay,
		"average_hourly":  averageHourly,
	})
	return err
}
