package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const scheduleColumns = `s.id, s.pot_id, s.care_type, s.interval_days, COALESCE(s.custom_action, ''), s.enabled,
	s.created_at, s.updated_at, p.name, COALESCE(p.image_url, ''), COALESCE(p.last_care, '')`

// ScheduleColumnNames lists the scan order of joined schedule rows.
var ScheduleColumnNames = []string{
	"id", "pot_id", "care_type", "interval_days", "custom_action", "enabled",
	"created_at", "updated_at", "pot_name", "pot_image_url", "last_care",
}

// ScheduleRepository persists care schedules.
type ScheduleRepository struct {
	db DBTX
}

func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func scanSchedule(row interface{ Scan(...any) error }) (*storage.CareSchedule, error) {
	s := &storage.CareSchedule{}
	err := row.Scan(&s.ID, &s.PotID, &s.CareType, &s.IntervalDays, &s.CustomAction, &s.Enabled,
		&s.CreatedAt, &s.UpdatedAt, &s.PotName, &s.PotImageURL, &s.LastCare)
	return s, err
}

func (r *ScheduleRepository) list(ctx context.Context, where string, args ...interface{}) ([]*storage.CareSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM care_schedules s JOIN pots p ON p.id = s.pot_id WHERE %s
		ORDER BY p.sort_order ASC, s.care_type ASC`, scheduleColumns, where)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list care schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*storage.CareSchedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// ListByUser returns the schedules across all of a user's pots.
func (r *ScheduleRepository) ListByUser(ctx context.Context, userID string) ([]*storage.CareSchedule, error) {
	return r.list(ctx, "p.user_id = $1", userID)
}

func (r *ScheduleRepository) ListByPot(ctx context.Context, potID string) ([]*storage.CareSchedule, error) {
	return r.list(ctx, "s.pot_id = $1", potID)
}

// EnabledByUser returns the enabled schedules of a user, with each pot's
// last care date.
func (r *ScheduleRepository) EnabledByUser(ctx context.Context, userID string) ([]*storage.CareSchedule, error) {
	return r.list(ctx, "p.user_id = $1 AND s.enabled", userID)
}

func (r *ScheduleRepository) Get(ctx context.Context, id int64) (*storage.CareSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM care_schedules s JOIN pots p ON p.id = s.pot_id WHERE s.id = $1`, scheduleColumns)
	s, err := scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "get care schedule", "care schedule not found", "")
	}
	return s, nil
}

// Exists reports whether the pot already has a schedule for careType.
func (r *ScheduleRepository) Exists(ctx context.Context, potID, careType string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM care_schedules WHERE pot_id = $1 AND care_type = $2)`, potID, careType).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check care schedule: %w", err)
	}
	return exists, nil
}

func (r *ScheduleRepository) Create(ctx context.Context, s *storage.CareSchedule) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO care_schedules (pot_id, care_type, interval_days, custom_action, enabled)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		s.PotID, s.CareType, s.IntervalDays, nullString(s.CustomAction), s.Enabled).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapError(err, "insert care schedule", "pot not found", "care schedule already exists for this care type")
}

// ScheduleUpdate holds the optional fields of a schedule update.
type ScheduleUpdate struct {
	IntervalDays *int
	CustomAction *string
	Enabled      *bool
}

func (u ScheduleUpdate) Empty() bool {
	return u.IntervalDays == nil && u.CustomAction == nil && u.Enabled == nil
}

func (r *ScheduleRepository) Update(ctx context.Context, id int64, u ScheduleUpdate) error {
	set := &setClause{}
	if u.IntervalDays != nil {
		set.add("interval_days", *u.IntervalDays)
	}
	if u.CustomAction != nil {
		set.add("custom_action", *u.CustomAction)
	}
	if u.Enabled != nil {
		set.add("enabled", *u.Enabled)
	}
	if set.empty() {
		return nil
	}
	set.cols = append(set.cols, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE care_schedules SET %s WHERE id = %s`, set.sql(), set.arg(id))
	res, err := r.db.ExecContext(ctx, query, set.args...)
	if err != nil {
		return fmt.Errorf("update care schedule: %w", err)
	}
	return checkAffected(res, "update care schedule", "care schedule not found")
}

func (r *ScheduleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM care_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete care schedule: %w", err)
	}
	return checkAffected(res, "delete care schedule", "care schedule not found")
}

func (r *ScheduleRepository) DeleteByPot(ctx context.Context, potID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM care_schedules WHERE pot_id = $1`, potID)
	if err != nil {
		return 0, fmt.Errorf("delete care schedules: %w", err)
	}
	return res.RowsAffected()
}

func (r *ScheduleRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM care_schedules WHERE pot_id IN (SELECT id FROM pots WHERE user_id = $1)`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete care schedules: %w", err)
	}
	return res.RowsAffected()
}
