package models

import "time"

type Medication struct {
	ID           string
	UserID       string
	Name         string
	Dosage       string
	ScheduleTime string // "HH:MM", interpreted in Timezone
	Timezone     string
	PhotoKey     *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DoseStatus string

const (
	DoseStatusTaken   DoseStatus = "taken"
	DoseStatusSkipped DoseStatus = "skipped"
	DoseStatusMissed  DoseStatus = "missed"
)

type DoseEvent struct {
	ID           string
	MedicationID string
	UserID       string
	Status       DoseStatus
	OccurredAt   time.Time
}
