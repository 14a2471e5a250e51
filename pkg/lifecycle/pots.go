package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// PotInput is the body of a pot create request.
type PotInput struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	PlantType string `json:"plantType"`
	Note      string `json:"note"`
	PlantDate string `json:"plantDate"`
	ImageURL  string `json:"imageUrl"`
	LastCare  string `json:"lastCare"`
}

// PotPatch is the body of a pot update request. Absent fields are left alone.
type PotPatch struct {
	Name      *string `json:"name"`
	PlantType *string `json:"plantType"`
	Note      *string `json:"note"`
	PlantDate *string `json:"plantDate"`
	ImageURL  *string `json:"imageUrl"`
	LastCare  *string `json:"lastCare"`
}

// DeleteReport summarizes a pot deletion.
type DeleteReport struct {
	TimelineCount   int64 `json:"timelineCount"`
	CareRecordCount int64 `json:"careRecordCount"`
	ScheduleCount   int64 `json:"scheduleCount"`
	ImagesScheduled int   `json:"imagesScheduled"`
}

// PotStats is the per-pot summary.
type PotStats struct {
	PotID             string         `json:"potId"`
	CareCounts        map[string]int `json:"careCounts"`
	TotalCareRecords  int            `json:"totalCareRecords"`
	TimelineCount     int            `json:"timelineCount"`
	ImageCount        int            `json:"imageCount"`
	LastCare          string         `json:"lastCare,omitempty"`
	LastCareAction    string         `json:"lastCareAction,omitempty"`
	DaysSinceLastCare *int           `json:"daysSinceLastCare"`
	DaysSincePlanting *int           `json:"daysSincePlanting"`
}

// CreatePot adds a pot for the caller, subject to their quota.
func (s *Service) CreatePot(ctx context.Context, p *auth.Principal, in PotInput) (*storage.Pot, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validationf("name is required")
	}
	if in.UserID != "" && in.UserID != p.UserID {
		return nil, apperr.Forbiddenf("cannot create a pot for another user")
	}
	if err := validDate("plantDate", in.PlantDate); err != nil {
		return nil, err
	}
	if err := validDate("lastCare", in.LastCare); err != nil {
		return nil, err
	}

	pot := &storage.Pot{
		ID:        clientPotID(in.ID),
		UserID:    p.UserID,
		Name:      in.Name,
		PlantType: in.PlantType,
		Note:      in.Note,
		PlantDate: in.PlantDate,
		ImageURL:  in.ImageURL,
		LastCare:  in.LastCare,
	}

	err := postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		if err := s.gate.CheckPotQuota(ctx, tx, p.UserID); err != nil {
			return err
		}
		return postgres.NewPotRepository(tx).Create(ctx, pot)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"pot_id":  pot.ID,
		"user_id": p.UserID,
	}).Info("pot created")
	return pot, nil
}

// clientPotID keeps a caller-chosen id only when it is a UUID. Anything
// else is replaced with a generated one so ids stay unguessable across
// tenants.
func clientPotID(id string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.NewString()
	}
	return parsed.String()
}

func (s *Service) GetPot(ctx context.Context, p *auth.Principal, potID string) (*storage.Pot, error) {
	return s.pots().Get(ctx, potID, p.UserID)
}

func (s *Service) ListPots(ctx context.Context, p *auth.Principal) ([]*storage.Pot, error) {
	return s.pots().List(ctx, p.UserID)
}

// UpdatePot applies a partial update. Replacing the image schedules the
// old one for deletion.
func (s *Service) UpdatePot(ctx context.Context, p *auth.Principal, potID string, patch PotPatch) (*storage.Pot, error) {
	u := postgres.PotUpdate(patch)
	if u.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, apperr.Validationf("name cannot be empty")
		}
		u.Name = &name
	}
	if u.PlantDate != nil {
		if err := validDate("plantDate", *u.PlantDate); err != nil {
			return nil, err
		}
	}
	if u.LastCare != nil {
		if err := validDate("lastCare", *u.LastCare); err != nil {
			return nil, err
		}
	}

	oldImage, err := s.gate.PotOwned(ctx, potID, p.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.pots().Update(ctx, potID, p.UserID, u); err != nil {
		return nil, err
	}
	if u.ImageURL != nil && *u.ImageURL != oldImage {
		s.cleanupLater(ctx, "pot_image_cleanup", []string{oldImage})
	}
	return s.pots().Get(ctx, potID, p.UserID)
}

// DeletePot removes a pot and everything under it. The cascade runs in
// schedule, care record, timeline, pot order; images are deleted after commit.
func (s *Service) DeletePot(ctx context.Context, p *auth.Principal, potID string) (*DeleteReport, error) {
	potImage, err := s.gate.PotOwned(ctx, potID, p.UserID)
	if err != nil {
		return nil, err
	}

	images, err := s.pots().PotMedia(ctx, potID)
	if err != nil {
		return nil, err
	}
	images = append([]string{potImage}, images...)

	report := &DeleteReport{}
	err = postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		var err error
		if report.ScheduleCount, err = postgres.NewScheduleRepository(tx).DeleteByPot(ctx, potID); err != nil {
			return err
		}
		if report.CareRecordCount, err = postgres.NewCareRecordRepository(tx).DeleteByPot(ctx, potID); err != nil {
			return err
		}
		if report.TimelineCount, err = postgres.NewTimelineRepository(tx).DeleteByPot(ctx, potID); err != nil {
			return err
		}
		return postgres.NewPotRepository(tx).Delete(ctx, potID, p.UserID)
	})
	if err != nil {
		return nil, err
	}

	report.ImagesScheduled = s.cleanupLater(ctx, "pot_delete_cleanup", images)
	s.logger.WithFields(map[string]interface{}{
		"pot_id":           potID,
		"user_id":          p.UserID,
		"care_records":     report.CareRecordCount,
		"timelines":        report.TimelineCount,
		"images_scheduled": report.ImagesScheduled,
	}).Info("pot deleted")
	return report, nil
}

// ReorderPots assigns positions 1..n to the listed pots. Ids the caller does
// not own are ignored.
func (s *Service) ReorderPots(ctx context.Context, p *auth.Principal, potIDs []string) error {
	if potIDs == nil {
		return apperr.Validationf("potIds must be an array")
	}
	return postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		repo := postgres.NewPotRepository(tx)
		for i, id := range potIDs {
			if err := repo.SetSortOrder(ctx, id, p.UserID, i+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats summarizes the care history of one pot.
func (s *Service) Stats(ctx context.Context, p *auth.Principal, potID string) (*PotStats, error) {
	pot, err := s.pots().Get(ctx, potID, p.UserID)
	if err != nil {
		return nil, err
	}
	counts, err := s.careRecords().CountByType(ctx, potID)
	if err != nil {
		return nil, err
	}
	timelines, err := s.timelines().CountByPot(ctx, potID)
	if err != nil {
		return nil, err
	}
	images, err := s.pots().PotMedia(ctx, potID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	distinct := map[string]struct{}{}
	for _, img := range images {
		distinct[img] = struct{}{}
	}

	now := s.now()
	return &PotStats{
		PotID:             potID,
		CareCounts:        counts,
		TotalCareRecords:  total,
		TimelineCount:     timelines,
		ImageCount:        len(distinct),
		LastCare:          pot.LastCare,
		LastCareAction:    pot.LastCareAction,
		DaysSinceLastCare: daysSince(pot.LastCare, now),
		DaysSincePlanting: daysSince(pot.PlantDate, now),
	}, nil
}
