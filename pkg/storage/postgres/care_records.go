package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const careColumns = `id, pot_id, care_type, action, COALESCE(description, ''), image_urls, care_date, created_at`

// CareColumnNames lists the scan order of care record rows.
var CareColumnNames = []string{"id", "pot_id", "care_type", "action", "description", "image_urls", "care_date", "created_at"}

// CareRecordRepository persists care records. Ownership is checked by the
// caller before any of these run.
type CareRecordRepository struct {
	db DBTX
}

func NewCareRecordRepository(db DBTX) *CareRecordRepository {
	return &CareRecordRepository{db: db}
}

func scanCareRecord(row interface{ Scan(...any) error }) (*storage.CareRecord, error) {
	c := &storage.CareRecord{}
	var images sql.NullString
	if err := row.Scan(&c.ID, &c.PotID, &c.Type, &c.Action, &c.Description, &images, &c.CareDate, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ImageURLs = decodeImages(images)
	return c, nil
}

// Create inserts c and fills in its id and creation time.
func (r *CareRecordRepository) Create(ctx context.Context, c *storage.CareRecord) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO care_records (pot_id, care_type, action, description, image_urls, care_date)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		c.PotID, c.Type, c.Action, nullString(c.Description), encodeImages(c.ImageURLs), c.CareDate).
		Scan(&c.ID, &c.CreatedAt)
	return mapError(err, "insert care record", "pot not found", "")
}

func (r *CareRecordRepository) Get(ctx context.Context, id int64) (*storage.CareRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM care_records WHERE id = $1`, careColumns)
	c, err := scanCareRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "get care record", "care record not found", "")
	}
	return c, nil
}

// ListByPot returns the newest records of a pot first.
func (r *CareRecordRepository) ListByPot(ctx context.Context, potID string, limit int) ([]*storage.CareRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM care_records WHERE pot_id = $1 ORDER BY care_date DESC, id DESC LIMIT $2`, careColumns)
	rows, err := r.db.QueryContext(ctx, query, potID, limit)
	if err != nil {
		return nil, fmt.Errorf("list care records: %w", err)
	}
	defer rows.Close()

	records := []*storage.CareRecord{}
	for rows.Next() {
		c, err := scanCareRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care record: %w", err)
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// CareRecordUpdate holds the optional fields of a care record update.
type CareRecordUpdate struct {
	Type        *string
	Action      *string
	CareDate    *string
	Description *string
	ImageURLs   *[]string
}

func (u CareRecordUpdate) Empty() bool {
	return u.Type == nil && u.Action == nil && u.CareDate == nil && u.Description == nil && u.ImageURLs == nil
}

func (r *CareRecordRepository) Update(ctx context.Context, id int64, u CareRecordUpdate) error {
	set := &setClause{}
	if u.Type != nil {
		set.add("care_type", *u.Type)
	}
	if u.Action != nil {
		set.add("action", *u.Action)
	}
	if u.CareDate != nil {
		set.add("care_date", *u.CareDate)
	}
	if u.Description != nil {
		set.add("description", *u.Description)
	}
	if u.ImageURLs != nil {
		set.add("image_urls", encodeImages(*u.ImageURLs))
	}
	if set.empty() {
		return nil
	}

	query := fmt.Sprintf(`UPDATE care_records SET %s WHERE id = %s`, set.sql(), set.arg(id))
	res, err := r.db.ExecContext(ctx, query, set.args...)
	if err != nil {
		return fmt.Errorf("update care record: %w", err)
	}
	return checkAffected(res, "update care record", "care record not found")
}

func (r *CareRecordRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM care_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete care record: %w", err)
	}
	return checkAffected(res, "delete care record", "care record not found")
}

func (r *CareRecordRepository) DeleteByPot(ctx context.Context, potID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM care_records WHERE pot_id = $1`, potID)
	if err != nil {
		return 0, fmt.Errorf("delete care records: %w", err)
	}
	return res.RowsAffected()
}

func (r *CareRecordRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM care_records WHERE pot_id IN (SELECT id FROM pots WHERE user_id = $1)`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete care records: %w", err)
	}
	return res.RowsAffected()
}

// CountByType returns the number of records per care type for a pot.
func (r *CareRecordRepository) CountByType(ctx context.Context, potID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT care_type, COUNT(*) FROM care_records WHERE pot_id = $1 GROUP BY care_type`, potID)
	if err != nil {
		return nil, fmt.Errorf("count care records: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var careType string
		var n int
		if err := rows.Scan(&careType, &n); err != nil {
			return nil, fmt.Errorf("scan care count: %w", err)
		}
		counts[careType] = n
	}
	return counts, rows.Err()
}
