package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const potColumns = `id, user_id, name, COALESCE(plant_type, ''), COALESCE(note, ''), COALESCE(plant_date, ''),
	COALESCE(image_url, ''), COALESCE(last_care, ''), COALESCE(last_care_action, ''), sort_order, created_at`

// PotColumnNames lists the scan order of potColumns.
var PotColumnNames = []string{
	"id", "user_id", "name", "plant_type", "note", "plant_date",
	"image_url", "last_care", "last_care_action", "sort_order", "created_at",
}

// PotRepository persists pots. Every query is scoped by owner.
type PotRepository struct {
	db DBTX
}

func NewPotRepository(db DBTX) *PotRepository {
	return &PotRepository{db: db}
}

func scanPot(row interface{ Scan(...any) error }) (*storage.Pot, error) {
	p := &storage.Pot{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.PlantType, &p.Note, &p.PlantDate,
		&p.ImageURL, &p.LastCare, &p.LastCareAction, &p.SortOrder, &p.CreatedAt)
	return p, err
}

// Create inserts p at the end of the owner's ordering and fills in the
// assigned sort order and creation time.
func (r *PotRepository) Create(ctx context.Context, p *storage.Pot) error {
	query := `INSERT INTO pots (id, user_id, name, plant_type, note, plant_date, image_url, last_care, sort_order)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, COALESCE(MAX(sort_order), 0) + 1 FROM pots WHERE user_id = $2
		RETURNING sort_order, created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.UserID, p.Name, nullString(p.PlantType), nullString(p.Note), nullString(p.PlantDate),
		nullString(p.ImageURL), nullString(p.LastCare)).Scan(&p.SortOrder, &p.CreatedAt)
	return mapError(err, "insert pot", "pot not found", "pot already exists")
}

func (r *PotRepository) Get(ctx context.Context, id, userID string) (*storage.Pot, error) {
	query := fmt.Sprintf(`SELECT %s FROM pots WHERE id = $1 AND user_id = $2`, potColumns)
	p, err := scanPot(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, mapError(err, "get pot", "pot not found", "")
	}
	return p, nil
}

// List returns the owner's pots in display order.
func (r *PotRepository) List(ctx context.Context, userID string) ([]*storage.Pot, error) {
	query := fmt.Sprintf(`SELECT %s FROM pots WHERE user_id = $1 ORDER BY sort_order ASC, plant_date DESC`, potColumns)
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list pots: %w", err)
	}
	defer rows.Close()

	pots := []*storage.Pot{}
	for rows.Next() {
		p, err := scanPot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pot: %w", err)
		}
		pots = append(pots, p)
	}
	return pots, rows.Err()
}

func (r *PotRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pots WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pots: %w", err)
	}
	return n, nil
}

// PotUpdate holds the optional fields of a pot update.
type PotUpdate struct {
	Name      *string
	PlantType *string
	Note      *string
	PlantDate *string
	ImageURL  *string
	LastCare  *string
}

func (u PotUpdate) Empty() bool {
	return u.Name == nil && u.PlantType == nil && u.Note == nil &&
		u.PlantDate == nil && u.ImageURL == nil && u.LastCare == nil
}

func (r *PotRepository) Update(ctx context.Context, id, userID string, u PotUpdate) error {
	set := &setClause{}
	if u.Name != nil {
		set.add("name", *u.Name)
	}
	if u.PlantType != nil {
		set.add("plant_type", *u.PlantType)
	}
	if u.Note != nil {
		set.add("note", *u.Note)
	}
	if u.PlantDate != nil {
		set.add("plant_date", *u.PlantDate)
	}
	if u.ImageURL != nil {
		set.add("image_url", *u.ImageURL)
	}
	if u.LastCare != nil {
		set.add("last_care", *u.LastCare)
	}
	if set.empty() {
		return nil
	}

	query := fmt.Sprintf(`UPDATE pots SET %s WHERE id = %s AND user_id = %s`,
		set.sql(), set.arg(id), set.arg(userID))
	res, err := r.db.ExecContext(ctx, query, set.args...)
	if err != nil {
		return fmt.Errorf("update pot: %w", err)
	}
	return checkAffected(res, "update pot", "pot not found")
}

// SetLastCare records the most recent care event on a pot.
func (r *PotRepository) SetLastCare(ctx context.Context, id, date, action string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pots SET last_care = $1, last_care_action = $2 WHERE id = $3`, date, action, id)
	if err != nil {
		return fmt.Errorf("update last care: %w", err)
	}
	return checkAffected(res, "update last care", "pot not found")
}

// SetSortOrder moves one pot. Pots of other users are left untouched.
func (r *PotRepository) SetSortOrder(ctx context.Context, id, userID string, position int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pots SET sort_order = $1 WHERE id = $2 AND user_id = $3`, position, id, userID)
	if err != nil {
		return fmt.Errorf("reorder pot: %w", err)
	}
	return nil
}

func (r *PotRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pots WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete pot: %w", err)
	}
	return checkAffected(res, "delete pot", "pot not found")
}

// DeleteByUser removes every pot of a user.
func (r *PotRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pots WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete pots: %w", err)
	}
	return res.RowsAffected()
}

// Reassign moves every pot of one user to another.
func (r *PotRepository) Reassign(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE pots SET user_id = $1 WHERE user_id = $2`, toUserID, fromUserID)
	if err != nil {
		return 0, fmt.Errorf("reassign pots: %w", err)
	}
	return res.RowsAffected()
}

// ImagesByUser returns the pot images of a user.
func (r *PotRepository) ImagesByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT image_url FROM pots WHERE user_id = $1 AND image_url IS NOT NULL AND image_url <> ''`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pot images: %w", err)
	}
	defer rows.Close()

	var images []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan pot image: %w", err)
		}
		images = append(images, url)
	}
	return images, rows.Err()
}

// imageRows collects decoded image lists from a single-column result.
func imageRows(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var images []string
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan images: %w", err)
		}
		images = append(images, decodeImages(raw)...)
	}
	return images, rows.Err()
}

// PotMedia returns every image referenced by the care records and timelines
// of a pot.
func (r *PotRepository) PotMedia(ctx context.Context, potID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT image_urls FROM care_records WHERE pot_id = $1
		 UNION ALL
		 SELECT images FROM timelines WHERE pot_id = $1`,
		potID)
	if err != nil {
		return nil, fmt.Errorf("list pot media: %w", err)
	}
	return imageRows(rows)
}

// UserMedia returns every care record and timeline image across a user's pots.
func (r *PotRepository) UserMedia(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.image_urls FROM care_records c JOIN pots p ON p.id = c.pot_id WHERE p.user_id = $1
		 UNION ALL
		 SELECT t.images FROM timelines t JOIN pots p ON p.id = t.pot_id WHERE p.user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list user media: %w", err)
	}
	return imageRows(rows)
}
