package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// PlantPage is one page of the admin catalog listing.
type PlantPage struct {
	Plants     []*storage.Plant `json:"plants"`
	Pagination storage.Page     `json:"pagination"`
}

// plantDoc is a catalog item as posted by admins or found in import files.
// Field names vary between camelCase and snake_case exports.
type plantDoc map[string]json.RawMessage

func (d plantDoc) raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := d[k]; ok && len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

func (d plantDoc) str(keys ...string) string {
	for _, k := range keys {
		var s string
		if v, ok := d[k]; ok && json.Unmarshal(v, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func nested(raw json.RawMessage) plantDoc {
	var d plantDoc
	if len(raw) == 0 || json.Unmarshal(raw, &d) != nil {
		return plantDoc{}
	}
	return d
}

func stringList(raw json.RawMessage) []string {
	var values []string
	if len(raw) == 0 || json.Unmarshal(raw, &values) != nil {
		return nil
	}
	return values
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// parsePlant resolves a catalog item from either naming convention.
func parsePlant(raw json.RawMessage) (*storage.Plant, error) {
	var doc plantDoc
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, apperr.Validationf("plant must be a JSON object")
	}

	basic := doc.raw("basicInfo", "basic_info")
	ornamental := doc.raw("ornamentalFeatures", "ornamental_features")
	guide := doc.raw("careGuide", "care_guide")
	basicDoc, ornamentalDoc, guideDoc := nested(basic), nested(ornamental), nested(guide)

	name := basicDoc.str("name")
	if name == "" {
		name = doc.str("name")
	}
	synonyms := stringList(basicDoc.raw("synonyms"))
	if synonyms == nil {
		synonyms = stringList(doc.raw("synonyms"))
	}
	category := ornamentalDoc.str("category")
	if category == "" {
		category = doc.str("category")
	}
	difficulty := guideDoc.str("careDifficulty")
	if difficulty == "" {
		difficulty = doc.str("careDifficulty", "care_difficulty")
	}

	return &storage.Plant{
		ID:                 doc.str("id", "_id"),
		Name:               name,
		Category:           category,
		CareDifficulty:     difficulty,
		BasicInfo:          basic,
		OrnamentalFeatures: ornamental,
		CareGuide:          guide,
		ImageURL:           doc.str("imageUrl", "image_url"),
		Synonyms:           dedupe(synonyms),
	}, nil
}

func requireIdentity(p *storage.Plant) error {
	switch {
	case p.ID == "" && p.Name == "":
		return apperr.Validationf("plant id and name are required")
	case p.ID == "":
		return apperr.Validationf("plant id is required")
	case p.Name == "":
		return apperr.Validationf("plant name is required")
	}
	return nil
}

func (s *Service) ListPlants(ctx context.Context, page, pageSize int, search string) (*PlantPage, error) {
	pg, err := NewPage(page, pageSize)
	if err != nil {
		return nil, err
	}
	plants, total, err := postgres.NewPlantRepository(s.db).List(ctx, strings.TrimSpace(search), pg)
	if err != nil {
		return nil, err
	}
	pg.Total = total
	return &PlantPage{Plants: plants, Pagination: pg}, nil
}

func (s *Service) CreatePlant(ctx context.Context, raw json.RawMessage) (*storage.Plant, error) {
	p, err := parsePlant(raw)
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(p); err != nil {
		return nil, err
	}

	err = postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		repo := postgres.NewPlantRepository(tx)
		if err := repo.Create(ctx, p); err != nil {
			return err
		}
		return repo.ReplaceSynonyms(ctx, p.ID, p.Synonyms)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return p, nil
}

// UpdatePlant overwrites an existing plant and its synonym set.
func (s *Service) UpdatePlant(ctx context.Context, id string, raw json.RawMessage) (*storage.Plant, error) {
	p, err := parsePlant(raw)
	if err != nil {
		return nil, err
	}
	p.ID = strings.TrimSpace(id)
	if err := requireIdentity(p); err != nil {
		return nil, err
	}

	err = postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		repo := postgres.NewPlantRepository(tx)
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		return repo.ReplaceSynonyms(ctx, p.ID, p.Synonyms)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return p, nil
}

func (s *Service) DeletePlant(ctx context.Context, id string) error {
	if err := postgres.NewPlantRepository(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// BatchImport upserts every item in its own transaction. A bad item is
// reported and skipped.
func (s *Service) BatchImport(ctx context.Context, items []json.RawMessage) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, apperr.Validationf("plants must be a non-empty array")
	}

	result := &BatchResult{Errors: []string{}}
	for i, raw := range items {
		err := s.importOne(ctx, raw)
		s.recordItem("plant_import", err)
		if err != nil {
			if apperr.KindOf(err) == apperr.Internal {
				s.logger.WithError(err).WithField("item", i+1).Warn("plant import item failed")
			}
			result.fail(fmt.Sprintf("item %d: %s", i+1, apperr.Message(err)))
			continue
		}
		result.Success++
	}

	s.invalidateCatalog()
	s.logger.WithFields(map[string]interface{}{
		"success": result.Success,
		"failed":  result.Failed,
	}).Info("plant batch import finished")
	return result, nil
}

func (s *Service) importOne(ctx context.Context, raw json.RawMessage) error {
	p, err := parsePlant(raw)
	if err != nil {
		return err
	}
	if err := requireIdentity(p); err != nil {
		return err
	}
	return postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		repo := postgres.NewPlantRepository(tx)
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}
		return repo.ReplaceSynonyms(ctx, p.ID, p.Synonyms)
	})
}

// BatchDeletePlants removes the listed plants in one statement and returns
// how many existed.
func (s *Service) BatchDeletePlants(ctx context.Context, ids []string) (int64, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return 0, apperr.Validationf("ids must be a non-empty array")
	}
	n, err := postgres.NewPlantRepository(s.db).DeleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.invalidateCatalog()
	return n, nil
}
