package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"medtrack/api/internal/config"
	"medtrack/api/internal/ids"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/ws"
)

// Scheduler drives the two recurring jobs: the per-minute scan for
// due medications and the nightly credential sweep that complements
// the sweep-on-access done by the services.
type Scheduler struct {
	cron      *cron.Cron
	queue     *redis.Client
	hub       *ws.Hub
	followups *FollowupScheduler
	meds      *repository.MedicationRepository
	sessions  *repository.SessionRepository
	codes     *repository.CodeRepository
	cfg       config.ReminderConfig
	log       zerolog.Logger
}

func NewScheduler(
	queue *redis.Client,
	hub *ws.Hub,
	followups *FollowupScheduler,
	meds *repository.MedicationRepository,
	sessions *repository.SessionRepository,
	codes *repository.CodeRepository,
	cfg config.ReminderConfig,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		queue:     queue,
		hub:       hub,
		followups: followups,
		meds:      meds,
		sessions:  sessions,
		codes:     codes,
		cfg:       cfg,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ScanSpec, s.scanDue); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.sweepCredentials); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
	s.followups.Shutdown()
}

// scanDue finds medications due this minute, pushes a reminder to the
// bot's stream, notifies live browser connections, and arms a
// follow-up that records a missed dose unless the user reacts first.
func (s *Scheduler) scanDue() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	due, err := s.meds.ListDueNow(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("due scan failed")
		return
	}

	for _, med := range due {
		if err := s.enqueueReminder(ctx, med); err != nil {
			s.log.Error().Err(err).Str("medication_id", med.ID).Msg("enqueue reminder failed")
		}

		s.hub.Notify(med.UserID, ws.NewEvent(ws.EventReminderDue, med.UserID, map[string]any{
			"medicationId": med.ID,
			"name":         med.Name,
			"dosage":       med.Dosage,
		}))

		med := med
		s.followups.Schedule(med.UserID, med.ID, s.cfg.FollowupDelay, func() {
			s.recordMissed(med)
		})
	}
}

func (s *Scheduler) enqueueReminder(ctx context.Context, med models.Medication) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]any{
			"userId":       med.UserID,
			"medicationId": med.ID,
			"name":         med.Name,
			"dosage":       med.Dosage,
		},
	}).Result()
	return err
}

func (s *Scheduler) recordMissed(med models.Medication) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := models.DoseEvent{
		ID:           ids.New(),
		MedicationID: med.ID,
		UserID:       med.UserID,
		Status:       models.DoseStatusMissed,
		OccurredAt:   time.Now().UTC(),
	}
	if err := s.meds.CreateDoseEvent(ctx, event); err != nil {
		s.log.Error().Err(err).Str("medication_id", med.ID).Msg("record missed dose failed")
		return
	}

	s.hub.Notify(med.UserID, ws.NewEvent(ws.EventDoseRecorded, med.UserID, map[string]any{
		"medicationId": med.ID,
		"status":       string(models.DoseStatusMissed),
	}))
}

func (s *Scheduler) sweepCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	if n, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
	} else if n > 0 {
		s.log.Info().Int64("removed", n).Msg("expired sessions swept")
	}

	if n, err := s.codes.DeleteExpired(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("code sweep failed")
	} else if n > 0 {
		s.log.Info().Int64("removed", n).Msg("expired codes swept")
	}
}
