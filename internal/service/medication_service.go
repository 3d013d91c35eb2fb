package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/rs/zerolog"

	"medtrack/api/internal/ids"
	"medtrack/api/internal/media/sniffer"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/ws"
)

const maxPhotoBytes = 5 << 20

type MedicationStore interface {
	Create(ctx context.Context, med models.Medication) error
	GetByID(ctx context.Context, id string) (models.Medication, error)
	ListByUser(ctx context.Context, userID string) ([]models.Medication, error)
	Update(ctx context.Context, med models.Medication) error
	Delete(ctx context.Context, id string) error
	CreateDoseEvent(ctx context.Context, event models.DoseEvent) error
	ListDoseEvents(ctx context.Context, medicationID string, limit int) ([]models.DoseEvent, error)
}

type PhotoStore interface {
	PutPhoto(ctx context.Context, medicationID string, ext string, contentType string, data []byte) (string, error)
	RemovePhoto(ctx context.Context, key string) error
	PhotoURL(key string) string
}

// Notifier is the push fan-out consumed after successful mutations.
// Satisfied by *ws.Hub.
type Notifier interface {
	Notify(uid string, event ws.Event)
}

// FollowupCanceller removes a pending missed-dose follow-up once the
// user has reacted to a reminder. Satisfied by *jobs.FollowupScheduler.
type FollowupCanceller interface {
	Cancel(uid string, medicationID string) bool
}

// MedicationService is plain CRUD plus the mutation-trigger contract:
// every successful persistence is followed by a best-effort push
// notification to the owner's live connections.
type MedicationService struct {
	meds      MedicationStore
	photos    PhotoStore
	notifier  Notifier
	followups FollowupCanceller
	log       zerolog.Logger
	now       func() time.Time
}

func NewMedicationService(meds MedicationStore, photos PhotoStore, notifier Notifier, followups FollowupCanceller, log zerolog.Logger) *MedicationService {
	return &MedicationService{
		meds:      meds,
		photos:    photos,
		notifier:  notifier,
		followups: followups,
		log:       log,
		now:       time.Now,
	}
}

type MedicationInput struct {
	Name         string
	Dosage       string
	ScheduleTime string
	Timezone     string
	Active       *bool
}

func (in MedicationInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("name required")
	}
	if _, err := time.Parse("15:04", in.ScheduleTime); err != nil {
		return fmt.Errorf("scheduleTime must be HH:MM")
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", in.Timezone)
		}
	}
	return nil
}

func (s *MedicationService) Create(ctx context.Context, uid string, input MedicationInput) (models.Medication, error) {
	if err := input.validate(); err != nil {
		return models.Medication{}, err
	}

	tz := input.Timezone
	if tz == "" {
		tz = "UTC"
	}
	med := models.Medication{
		ID:           ids.New(),
		UserID:       uid,
		Name:         input.Name,
		Dosage:       input.Dosage,
		ScheduleTime: input.ScheduleTime,
		Timezone:     tz,
		Active:       true,
	}
	if input.Active != nil {
		med.Active = *input.Active
	}

	if err := s.meds.Create(ctx, med); err != nil {
		return models.Medication{}, err
	}

	s.notifier.Notify(uid, ws.NewEvent(ws.EventMedicationCreated, uid, map[string]any{"id": med.ID}))
	return med, nil
}

func (s *MedicationService) List(ctx context.Context, uid string) ([]models.Medication, error) {
	return s.meds.ListByUser(ctx, uid)
}

func (s *MedicationService) Update(ctx context.Context, uid string, medID string, input MedicationInput) (models.Medication, error) {
	if err := input.validate(); err != nil {
		return models.Medication{}, err
	}

	med, err := s.ownedMedication(ctx, uid, medID)
	if err != nil {
		return models.Medication{}, err
	}

	med.Name = input.Name
	med.Dosage = input.Dosage
	med.ScheduleTime = input.ScheduleTime
	if input.Timezone != "" {
		med.Timezone = input.Timezone
	}
	if input.Active != nil {
		med.Active = *input.Active
	}

	if err := s.meds.Update(ctx, med); err != nil {
		return models.Medication{}, err
	}

	s.notifier.Notify(uid, ws.NewEvent(ws.EventMedicationUpdated, uid, map[string]any{"id": med.ID}))
	return med, nil
}

func (s *MedicationService) Delete(ctx context.Context, uid string, medID string) error {
	med, err := s.ownedMedication(ctx, uid, medID)
	if err != nil {
		return err
	}

	if err := s.meds.Delete(ctx, med.ID); err != nil {
		return err
	}

	if med.PhotoKey != nil && s.photos != nil {
		if err := s.photos.RemovePhoto(ctx, *med.PhotoKey); err != nil {
			s.log.Warn().Err(err).Str("medication_id", med.ID).Msg("remove photo failed")
		}
	}

	s.notifier.Notify(uid, ws.NewEvent(ws.EventMedicationDeleted, uid, map[string]any{"id": med.ID}))
	return nil
}

// RecordDose logs a taken/skipped event against the medication and
// notifies the owner's connections.
func (s *MedicationService) RecordDose(ctx context.Context, uid string, medID string, status models.DoseStatus) (models.DoseEvent, error) {
	if status != models.DoseStatusTaken && status != models.DoseStatusSkipped {
		return models.DoseEvent{}, fmt.Errorf("invalid dose status %q", status)
	}

	med, err := s.ownedMedication(ctx, uid, medID)
	if err != nil {
		return models.DoseEvent{}, err
	}

	event := models.DoseEvent{
		ID:           ids.New(),
		MedicationID: med.ID,
		UserID:       uid,
		Status:       status,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.meds.CreateDoseEvent(ctx, event); err != nil {
		return models.DoseEvent{}, err
	}

	// Reacting to the reminder disarms the pending missed-dose task.
	if s.followups != nil {
		s.followups.Cancel(uid, med.ID)
	}

	s.notifier.Notify(uid, ws.NewEvent(ws.EventDoseRecorded, uid, map[string]any{
		"medicationId": med.ID,
		"status":       string(status),
	}))
	return event, nil
}

func (s *MedicationService) DoseHistory(ctx context.Context, uid string, medID string, limit int) ([]models.DoseEvent, error) {
	med, err := s.ownedMedication(ctx, uid, medID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	return s.meds.ListDoseEvents(ctx, med.ID, limit)
}

// AttachPhoto validates and stores a pill photo for the medication.
func (s *MedicationService) AttachPhoto(ctx context.Context, uid string, medID string, file multipart.File, declared string) (models.Medication, error) {
	med, err := s.ownedMedication(ctx, uid, medID)
	if err != nil {
		return models.Medication{}, err
	}

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		return models.Medication{}, fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return models.Medication{}, errors.New("empty file")
	}
	if len(data) > maxPhotoBytes {
		return models.Medication{}, errors.New("photo too large")
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return models.Medication{}, fmt.Errorf("detect type: %w", err)
	}
	if declared != "" && declared != result.MIME {
		return models.Medication{}, fmt.Errorf("content type mismatch: declared %s, actual %s", declared, result.MIME)
	}

	key, err := s.photos.PutPhoto(ctx, med.ID, string(result.Type), result.MIME, data)
	if err != nil {
		return models.Medication{}, err
	}

	med.PhotoKey = &key
	if err := s.meds.Update(ctx, med); err != nil {
		return models.Medication{}, err
	}

	s.notifier.Notify(uid, ws.NewEvent(ws.EventMedicationUpdated, uid, map[string]any{"id": med.ID}))
	return med, nil
}

// PhotoURL resolves the stored photo key to its public URL, or nil
// when the medication has no photo.
func (s *MedicationService) PhotoURL(med models.Medication) *string {
	if med.PhotoKey == nil || s.photos == nil {
		return nil
	}
	url := s.photos.PhotoURL(*med.PhotoKey)
	return &url
}

// ownedMedication resolves medID and checks ownership. A medication
// owned by someone else looks identical to a missing one.
func (s *MedicationService) ownedMedication(ctx context.Context, uid string, medID string) (models.Medication, error) {
	med, err := s.meds.GetByID(ctx, medID)
	if err != nil {
		return models.Medication{}, err
	}
	if med.UserID != uid {
		return models.Medication{}, repository.ErrMedicationNotFound
	}
	return med, nil
}
