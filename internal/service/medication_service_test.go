package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/ws"
)

type fakeMedicationStore struct {
	mu   sync.Mutex
	meds map[string]models.Medication
	dose []models.DoseEvent
}

func newFakeMedicationStore(meds ...models.Medication) *fakeMedicationStore {
	s := &fakeMedicationStore{meds: make(map[string]models.Medication)}
	for _, med := range meds {
		s.meds[med.ID] = med
	}
	return s
}

func (s *fakeMedicationStore) Create(_ context.Context, med models.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meds[med.ID] = med
	return nil
}

func (s *fakeMedicationStore) GetByID(_ context.Context, id string) (models.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	med, ok := s.meds[id]
	if !ok {
		return models.Medication{}, repository.ErrMedicationNotFound
	}
	return med, nil
}

func (s *fakeMedicationStore) ListByUser(_ context.Context, userID string) ([]models.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Medication
	for _, med := range s.meds {
		if med.UserID == userID {
			out = append(out, med)
		}
	}
	return out, nil
}

func (s *fakeMedicationStore) Update(_ context.Context, med models.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meds[med.ID]; !ok {
		return repository.ErrMedicationNotFound
	}
	s.meds[med.ID] = med
	return nil
}

func (s *fakeMedicationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meds[id]; !ok {
		return repository.ErrMedicationNotFound
	}
	delete(s.meds, id)
	return nil
}

func (s *fakeMedicationStore) CreateDoseEvent(_ context.Context, event models.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dose = append(s.dose, event)
	return nil
}

func (s *fakeMedicationStore) ListDoseEvents(_ context.Context, medicationID string, limit int) ([]models.DoseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DoseEvent
	for _, event := range s.dose {
		if event.MedicationID == medicationID {
			out = append(out, event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakePhotoStore struct{}

func (fakePhotoStore) PutPhoto(_ context.Context, medicationID string, ext string, _ string, _ []byte) (string, error) {
	return "photos/" + medicationID + "." + ext, nil
}

func (fakePhotoStore) RemovePhoto(_ context.Context, _ string) error { return nil }

func (fakePhotoStore) PhotoURL(key string) string {
	return "https://photos.example.com/" + key
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ws.Event
}

func (n *recordingNotifier) Notify(_ string, event ws.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, event := range n.events {
		out[i] = event.Type
	}
	return out
}

type recordingCanceller struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCanceller) Cancel(uid string, medicationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, uid+"/"+medicationID)
	return true
}

func newMedicationService(meds *fakeMedicationStore, notifier *recordingNotifier, followups FollowupCanceller) *MedicationService {
	return NewMedicationService(meds, nil, notifier, followups, zerolog.Nop())
}

func TestMedicationCreate_Notifies(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newMedicationService(newFakeMedicationStore(), notifier, nil)

	med, err := svc.Create(context.Background(), "uid_1", MedicationInput{
		Name:         "Metformin",
		Dosage:       "500mg",
		ScheduleTime: "08:30",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if med.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC default", med.Timezone)
	}
	if !med.Active {
		t.Error("new medication inactive")
	}

	types := notifier.types()
	if len(types) != 1 || types[0] != ws.EventMedicationCreated {
		t.Errorf("notifications = %v", types)
	}
}

func TestMedicationCreate_RejectsBadInput(t *testing.T) {
	svc := newMedicationService(newFakeMedicationStore(), &recordingNotifier{}, nil)

	cases := []MedicationInput{
		{Name: "", ScheduleTime: "08:30"},
		{Name: "X", ScheduleTime: "8:30pm"},
		{Name: "X", ScheduleTime: "25:00"},
		{Name: "X", ScheduleTime: "08:30", Timezone: "Mars/Olympus"},
	}
	for i, input := range cases {
		if _, err := svc.Create(context.Background(), "uid_1", input); err == nil {
			t.Errorf("case %d accepted invalid input %+v", i, input)
		}
	}
}

func TestMedicationUpdate_OtherOwnerLooksMissing(t *testing.T) {
	store := newFakeMedicationStore(models.Medication{ID: "med_1", UserID: "uid_1", Name: "A", ScheduleTime: "08:00", Timezone: "UTC"})
	svc := newMedicationService(store, &recordingNotifier{}, nil)

	input := MedicationInput{Name: "B", ScheduleTime: "09:00"}
	if _, err := svc.Update(context.Background(), "uid_2", "med_1", input); !errors.Is(err, repository.ErrMedicationNotFound) {
		t.Fatalf("err = %v, want ErrMedicationNotFound", err)
	}
}

func TestMedicationDelete_Notifies(t *testing.T) {
	store := newFakeMedicationStore(models.Medication{ID: "med_1", UserID: "uid_1"})
	notifier := &recordingNotifier{}
	svc := newMedicationService(store, notifier, nil)

	if err := svc.Delete(context.Background(), "uid_1", "med_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.GetByID(context.Background(), "med_1"); !errors.Is(err, repository.ErrMedicationNotFound) {
		t.Error("medication still present after delete")
	}
	types := notifier.types()
	if len(types) != 1 || types[0] != ws.EventMedicationDeleted {
		t.Errorf("notifications = %v", types)
	}
}

func TestRecordDose_CancelsFollowupAndNotifies(t *testing.T) {
	store := newFakeMedicationStore(models.Medication{ID: "med_1", UserID: "uid_1"})
	notifier := &recordingNotifier{}
	canceller := &recordingCanceller{}
	svc := newMedicationService(store, notifier, canceller)

	event, err := svc.RecordDose(context.Background(), "uid_1", "med_1", models.DoseStatusTaken)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if event.Status != models.DoseStatusTaken {
		t.Errorf("status = %q", event.Status)
	}
	if event.OccurredAt.IsZero() {
		t.Error("zero OccurredAt")
	}

	if len(canceller.calls) != 1 || canceller.calls[0] != "uid_1/med_1" {
		t.Errorf("cancel calls = %v", canceller.calls)
	}
	types := notifier.types()
	if len(types) != 1 || types[0] != ws.EventDoseRecorded {
		t.Errorf("notifications = %v", types)
	}
}

func TestRecordDose_RejectsMissedStatus(t *testing.T) {
	store := newFakeMedicationStore(models.Medication{ID: "med_1", UserID: "uid_1"})
	svc := newMedicationService(store, &recordingNotifier{}, nil)

	// missed is reserved for the follow-up job.
	if _, err := svc.RecordDose(context.Background(), "uid_1", "med_1", models.DoseStatusMissed); err == nil {
		t.Error("client-supplied missed status accepted")
	}
}

func TestPhotoURL(t *testing.T) {
	store := newFakeMedicationStore()
	svc := NewMedicationService(store, fakePhotoStore{}, &recordingNotifier{}, nil, zerolog.Nop())

	bare := models.Medication{ID: "med_1", UserID: "uid_1"}
	if url := svc.PhotoURL(bare); url != nil {
		t.Errorf("url = %q for a medication without a photo", *url)
	}

	key := "photos/med_1.jpeg"
	withPhoto := models.Medication{ID: "med_1", UserID: "uid_1", PhotoKey: &key}
	url := svc.PhotoURL(withPhoto)
	if url == nil {
		t.Fatal("nil url for a medication with a photo")
	}
	if *url != "https://photos.example.com/photos/med_1.jpeg" {
		t.Errorf("url = %q", *url)
	}
}

func TestDoseHistory_LimitClamped(t *testing.T) {
	store := newFakeMedicationStore(models.Medication{ID: "med_1", UserID: "uid_1"})
	svc := newMedicationService(store, &recordingNotifier{}, nil)

	for i := 0; i < 40; i++ {
		if _, err := svc.RecordDose(context.Background(), "uid_1", "med_1", models.DoseStatusTaken); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	events, err := svc.DoseHistory(context.Background(), "uid_1", "med_1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 30 {
		t.Errorf("len = %d, want default limit 30", len(events))
	}
}
