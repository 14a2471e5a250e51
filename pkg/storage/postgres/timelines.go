package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const timelineColumns = `id, pot_id, entry_date, COALESCE(description, ''), images, COALESCE(video, ''), created_at`

// TimelineColumnNames lists the scan order of timeline rows.
var TimelineColumnNames = []string{"id", "pot_id", "entry_date", "description", "images", "video", "created_at"}

// TimelineRepository persists timeline entries.
type TimelineRepository struct {
	db DBTX
}

func NewTimelineRepository(db DBTX) *TimelineRepository {
	return &TimelineRepository{db: db}
}

func scanTimeline(row interface{ Scan(...any) error }) (*storage.TimelineEntry, error) {
	t := &storage.TimelineEntry{}
	var images sql.NullString
	if err := row.Scan(&t.ID, &t.PotID, &t.Date, &t.Description, &images, &t.Video, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Images = decodeImages(images)
	return t, nil
}

func (r *TimelineRepository) Create(ctx context.Context, t *storage.TimelineEntry) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO timelines (pot_id, entry_date, description, images, video)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		t.PotID, t.Date, nullString(t.Description), encodeImages(t.Images), nullString(t.Video)).
		Scan(&t.ID, &t.CreatedAt)
	return mapError(err, "insert timeline", "pot not found", "")
}

func (r *TimelineRepository) Get(ctx context.Context, id int64) (*storage.TimelineEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM timelines WHERE id = $1`, timelineColumns)
	t, err := scanTimeline(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "get timeline", "timeline not found", "")
	}
	return t, nil
}

func (r *TimelineRepository) ListByPot(ctx context.Context, potID string) ([]*storage.TimelineEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM timelines WHERE pot_id = $1 ORDER BY entry_date DESC, id DESC`, timelineColumns)
	rows, err := r.db.QueryContext(ctx, query, potID)
	if err != nil {
		return nil, fmt.Errorf("list timelines: %w", err)
	}
	defer rows.Close()

	entries := []*storage.TimelineEntry{}
	for rows.Next() {
		t, err := scanTimeline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeline: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// TimelineUpdate holds the optional fields of a timeline update.
type TimelineUpdate struct {
	Date        *string
	Description *string
	Images      *[]string
	Video       *string
}

func (u TimelineUpdate) Empty() bool {
	return u.Date == nil && u.Description == nil && u.Images == nil && u.Video == nil
}

func (r *TimelineRepository) Update(ctx context.Context, id int64, u TimelineUpdate) error {
	set := &setClause{}
	if u.Date != nil {
		set.add("entry_date", *u.Date)
	}
	if u.Description != nil {
		set.add("description", *u.Description)
	}
	if u.Images != nil {
		set.add("images", encodeImages(*u.Images))
	}
	if u.Video != nil {
		set.add("video", *u.Video)
	}
	if set.empty() {
		return nil
	}

	query := fmt.Sprintf(`UPDATE timelines SET %s WHERE id = %s`, set.sql(), set.arg(id))
	res, err := r.db.ExecContext(ctx, query, set.args...)
	if err != nil {
		return fmt.Errorf("update timeline: %w", err)
	}
	return checkAffected(res, "update timeline", "timeline not found")
}

func (r *TimelineRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timeline: %w", err)
	}
	return checkAffected(res, "delete timeline", "timeline not found")
}

func (r *TimelineRepository) DeleteByPot(ctx context.Context, potID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timelines WHERE pot_id = $1`, potID)
	if err != nil {
		return 0, fmt.Errorf("delete timelines: %w", err)
	}
	return res.RowsAffected()
}

func (r *TimelineRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM timelines WHERE pot_id IN (SELECT id FROM pots WHERE user_id = $1)`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete timelines: %w", err)
	}
	return res.RowsAffected()
}

func (r *TimelineRepository) CountByPot(ctx context.Context, potID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timelines WHERE pot_id = $1`, potID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count timelines: %w", err)
	}
	return n, nil
}
