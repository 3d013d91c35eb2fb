package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtrack/api/internal/models"
)

var ErrMedicationNotFound = errors.New("medication not found")

type MedicationRepository struct {
	pool *pgxpool.Pool
}

func NewMedicationRepository(pool *pgxpool.Pool) *MedicationRepository {
	return &MedicationRepository{pool: pool}
}

func (r *MedicationRepository) Create(ctx context.Context, med models.Medication) error {
	const query = `
		INSERT INTO medications (
			id, user_id, name, dosage, schedule_time, timezone, photo_key, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`
	_, err := r.pool.Exec(ctx, query,
		med.ID,
		med.UserID,
		med.Name,
		med.Dosage,
		med.ScheduleTime,
		med.Timezone,
		med.PhotoKey,
		med.Active,
	)
	return err
}

func (r *MedicationRepository) GetByID(ctx context.Context, id string) (models.Medication, error) {
	const query = `
		SELECT id, user_id, name, dosage, schedule_time, timezone, photo_key, active, created_at, updated_at
		FROM medications WHERE id = $1
	`
	return r.scanMedication(r.pool.QueryRow(ctx, query, id))
}

func (r *MedicationRepository) ListByUser(ctx context.Context, userID string) ([]models.Medication, error) {
	const query = `
		SELECT id, user_id, name, dosage, schedule_time, timezone, photo_key, active, created_at, updated_at
		FROM medications
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []models.Medication
	for rows.Next() {
		med, err := r.scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

// ListDueNow returns active medications whose schedule matches the
// current wall-clock minute in their own timezone.
func (r *MedicationRepository) ListDueNow(ctx context.Context) ([]models.Medication, error) {
	const query = `
		SELECT id, user_id, name, dosage, schedule_time, timezone, photo_key, active, created_at, updated_at
		FROM medications
		WHERE active = TRUE
		  AND schedule_time = to_char(NOW() AT TIME ZONE timezone, 'HH24:MI')
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []models.Medication
	for rows.Next() {
		med, err := r.scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

func (r *MedicationRepository) Update(ctx context.Context, med models.Medication) error {
	const query = `
		UPDATE medications
		SET name = $2, dosage = $3, schedule_time = $4, timezone = $5, photo_key = $6, active = $7, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		med.ID,
		med.Name,
		med.Dosage,
		med.ScheduleTime,
		med.Timezone,
		med.PhotoKey,
		med.Active,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMedicationNotFound
	}
	return nil
}

func (r *MedicationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM medications WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMedicationNotFound
	}
	return nil
}

func (r *MedicationRepository) CreateDoseEvent(ctx context.Context, event models.DoseEvent) error {
	const query = `
		INSERT INTO dose_events (id, medication_id, user_id, status, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.MedicationID,
		event.UserID,
		event.Status,
		event.OccurredAt,
	)
	return err
}

func (r *MedicationRepository) ListDoseEvents(ctx context.Context, medicationID string, limit int) ([]models.DoseEvent, error) {
	const query = `
		SELECT id, medication_id, user_id, status, occurred_at
		FROM dose_events
		WHERE medication_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, medicationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.DoseEvent
	for rows.Next() {
		var event models.DoseEvent
		if err := rows.Scan(
			&event.ID,
			&event.MedicationID,
			&event.UserID,
			&event.Status,
			&event.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *MedicationRepository) scanMedication(row pgx.Row) (models.Medication, error) {
	var med models.Medication
	if err := row.Scan(
		&med.ID,
		&med.UserID,
		&med.Name,
		&med.Dosage,
		&med.ScheduleTime,
		&med.Timezone,
		&med.PhotoKey,
		&med.Active,
		&med.CreatedAt,
		&med.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Medication{}, ErrMedicationNotFound
		}
		return models.Medication{}, err
	}
	return med, nil
}
