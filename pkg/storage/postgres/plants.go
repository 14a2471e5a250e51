package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

const plantColumns = `id, name, COALESCE(category, ''), COALESCE(care_difficulty, ''),
	basic_info, ornamental_features, care_guide, COALESCE(image_url, ''), created_at, updated_at`

// PlantColumnNames lists the scan order of plant rows.
var PlantColumnNames = []string{
	"id", "name", "category", "care_difficulty",
	"basic_info", "ornamental_features", "care_guide", "image_url", "created_at", "updated_at",
}

// PlantRepository persists the reference catalog.
type PlantRepository struct {
	db DBTX
}

func NewPlantRepository(db DBTX) *PlantRepository {
	return &PlantRepository{db: db}
}

func scanPlant(row interface{ Scan(...any) error }) (*storage.Plant, error) {
	p := &storage.Plant{Synonyms: []string{}}
	var basic, ornamental, guide []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.CareDifficulty,
		&basic, &ornamental, &guide, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BasicInfo = rawJSON(basic)
	p.OrnamentalFeatures = rawJSON(ornamental)
	p.CareGuide = rawJSON(guide)
	return p, nil
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// jsonArg passes a raw JSON blob to a JSONB column, or NULL when empty.
func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

// plantSearch builds the predicate shared by the page and count queries.
func plantSearch(search string) (string, []interface{}) {
	if search == "" {
		return "", nil
	}
	return ` WHERE (name ILIKE $1 OR id ILIKE $1)`, []interface{}{"%" + search + "%"}
}

// List returns one page of the catalog ordered by name, with the total
// matching count.
func (r *PlantRepository) List(ctx context.Context, search string, page storage.Page) ([]*storage.Plant, int, error) {
	where, args := plantSearch(search)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plants`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count plants: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM plants%s ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d`,
		plantColumns, where, n+1, n+2)
	plants, err := r.query(ctx, query, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadSynonyms(ctx, plants); err != nil {
		return nil, 0, err
	}
	return plants, total, nil
}

// Search matches names and synonyms.
func (r *PlantRepository) Search(ctx context.Context, q string, limit int) ([]*storage.Plant, error) {
	query := fmt.Sprintf(`SELECT %s FROM plants
		WHERE name ILIKE $1 OR id IN (SELECT plant_id FROM plant_synonyms WHERE synonym ILIKE $1)
		ORDER BY name ASC LIMIT $2`, plantColumns)
	plants, err := r.query(ctx, query, "%"+q+"%", limit)
	if err != nil {
		return nil, err
	}
	if err := r.loadSynonyms(ctx, plants); err != nil {
		return nil, err
	}
	return plants, nil
}

func (r *PlantRepository) Get(ctx context.Context, id string) (*storage.Plant, error) {
	query := fmt.Sprintf(`SELECT %s FROM plants WHERE id = $1`, plantColumns)
	p, err := scanPlant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "get plant", "plant not found", "")
	}
	if err := r.loadSynonyms(ctx, []*storage.Plant{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PlantRepository) query(ctx context.Context, query string, args ...interface{}) ([]*storage.Plant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	defer rows.Close()

	plants := []*storage.Plant{}
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		plants = append(plants, p)
	}
	return plants, rows.Err()
}

// loadSynonyms fills in synonyms for all plants with a single query.
func (r *PlantRepository) loadSynonyms(ctx context.Context, plants []*storage.Plant) error {
	if len(plants) == 0 {
		return nil
	}
	ids := make([]string, len(plants))
	byID := make(map[string]*storage.Plant, len(plants))
	for i, p := range plants {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT plant_id, synonym FROM plant_synonyms WHERE plant_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load synonyms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var plantID, synonym string
		if err := rows.Scan(&plantID, &synonym); err != nil {
			return fmt.Errorf("scan synonym: %w", err)
		}
		if p, ok := byID[plantID]; ok {
			p.Synonyms = append(p.Synonyms, synonym)
		}
	}
	return rows.Err()
}

func (r *PlantRepository) Create(ctx context.Context, p *storage.Plant) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO plants (id, name, category, care_difficulty, basic_info, ornamental_features, care_guide, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
		p.ID, p.Name, nullString(p.Category), nullString(p.CareDifficulty),
		jsonArg(p.BasicInfo), jsonArg(p.OrnamentalFeatures), jsonArg(p.CareGuide), nullString(p.ImageURL)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "insert plant", "plant not found", "plant already exists")
}

// Update replaces every field of an existing plant.
func (r *PlantRepository) Update(ctx context.Context, p *storage.Plant) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE plants SET name = $1, category = $2, care_difficulty = $3, basic_info = $4,
			ornamental_features = $5, care_guide = $6, image_url = $7, updated_at = NOW()
		 WHERE id = $8 RETURNING created_at, updated_at`,
		p.Name, nullString(p.Category), nullString(p.CareDifficulty),
		jsonArg(p.BasicInfo), jsonArg(p.OrnamentalFeatures), jsonArg(p.CareGuide), nullString(p.ImageURL), p.ID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "update plant", "plant not found", "")
}

// Upsert inserts p or overwrites the existing row with the same id.
func (r *PlantRepository) Upsert(ctx context.Context, p *storage.Plant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plants (id, name, category, care_difficulty, basic_info, ornamental_features, care_guide, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			care_difficulty = EXCLUDED.care_difficulty,
			basic_info = EXCLUDED.basic_info,
			ornamental_features = EXCLUDED.ornamental_features,
			care_guide = EXCLUDED.care_guide,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()`,
		p.ID, p.Name, nullString(p.Category), nullString(p.CareDifficulty),
		jsonArg(p.BasicInfo), jsonArg(p.OrnamentalFeatures), jsonArg(p.CareGuide), nullString(p.ImageURL))
	if err != nil {
		return fmt.Errorf("upsert plant: %w", err)
	}
	return nil
}

// ReplaceSynonyms deletes the plant's synonyms and inserts the given set.
func (r *PlantRepository) ReplaceSynonyms(ctx context.Context, plantID string, synonyms []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM plant_synonyms WHERE plant_id = $1`, plantID); err != nil {
		return fmt.Errorf("delete synonyms: %w", err)
	}
	for _, s := range synonyms {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO plant_synonyms (plant_id, synonym) VALUES ($1, $2)`, plantID, s); err != nil {
			return fmt.Errorf("insert synonym: %w", err)
		}
	}
	return nil
}

func (r *PlantRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM plants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plant: %w", err)
	}
	return checkAffected(res, "delete plant", "plant not found")
}

// DeleteMany removes all listed plants in one statement and returns how many
// existed.
func (r *PlantRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM plants WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete plants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete plants: %w", err)
	}
	return n, nil
}

