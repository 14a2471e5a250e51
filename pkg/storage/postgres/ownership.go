package postgres

import (
	"context"
)

// OwnershipRepository resolves whether a resource belongs to a user. Each
// lookup is a single query and reports a missing resource the same way as a
// foreign one.
type OwnershipRepository struct {
	db DBTX
}

func NewOwnershipRepository(db DBTX) *OwnershipRepository {
	return &OwnershipRepository{db: db}
}

// Pot returns the pot's current image URL.
func (r *OwnershipRepository) Pot(ctx context.Context, potID, userID string) (string, error) {
	var imageURL string
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(image_url, '') FROM pots WHERE id = $1 AND user_id = $2`, potID, userID).Scan(&imageURL)
	if err != nil {
		return "", mapError(err, "check pot owner", "pot not found", "")
	}
	return imageURL, nil
}

// CareRecord returns the id of the pot the record belongs to.
func (r *OwnershipRepository) CareRecord(ctx context.Context, id int64, userID string) (string, error) {
	return r.child(ctx, "care_records", "care record not found", id, userID)
}

func (r *OwnershipRepository) Timeline(ctx context.Context, id int64, userID string) (string, error) {
	return r.child(ctx, "timelines", "timeline not found", id, userID)
}

func (r *OwnershipRepository) Schedule(ctx context.Context, id int64, userID string) (string, error) {
	return r.child(ctx, "care_schedules", "care schedule not found", id, userID)
}

func (r *OwnershipRepository) child(ctx context.Context, table, notFound string, id int64, userID string) (string, error) {
	var potID string
	err := r.db.QueryRowContext(ctx,
		`SELECT c.pot_id FROM `+table+` c JOIN pots p ON p.id = c.pot_id WHERE c.id = $1 AND p.user_id = $2`,
		id, userID).Scan(&potID)
	if err != nil {
		return "", mapError(err, "check "+table+" owner", notFound, "")
	}
	return potID, nil
}
