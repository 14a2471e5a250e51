package lifecycle

import (
	"context"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// TimelineInput is the body of a timeline create request.
type TimelineInput struct {
	PotID       string   `json:"potId"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Video       string   `json:"video"`
}

// TimelinePatch is the body of a timeline update request.
type TimelinePatch struct {
	Date        *string   `json:"date"`
	Description *string   `json:"description"`
	Images      *[]string `json:"images"`
	Video       *string   `json:"video"`
}

func (s *Service) CreateTimeline(ctx context.Context, p *auth.Principal, in TimelineInput) (*storage.TimelineEntry, error) {
	if in.PotID == "" || in.Date == "" {
		return nil, apperr.Validationf("potId and date are required")
	}
	if err := validDate("date", in.Date); err != nil {
		return nil, err
	}
	if _, err := s.gate.PotOwned(ctx, in.PotID, p.UserID); err != nil {
		return nil, err
	}

	entry := &storage.TimelineEntry{
		PotID:       in.PotID,
		Date:        in.Date,
		Description: in.Description,
		Images:      nonEmpty(in.Images),
		Video:       in.Video,
	}
	if err := s.timelines().Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ListTimelines(ctx context.Context, p *auth.Principal, potID string) ([]*storage.TimelineEntry, error) {
	if _, err := s.gate.PotOwned(ctx, potID, p.UserID); err != nil {
		return nil, err
	}
	return s.timelines().ListByPot(ctx, potID)
}

func (s *Service) GetTimeline(ctx context.Context, p *auth.Principal, id int64) (*storage.TimelineEntry, error) {
	if _, err := s.gate.TimelineOwned(ctx, id, p.UserID); err != nil {
		return nil, err
	}
	return s.timelines().Get(ctx, id)
}

// UpdateTimeline applies a partial update. Images dropped from the entry are
// deleted once nothing else in the pot references them.
func (s *Service) UpdateTimeline(ctx context.Context, p *auth.Principal, id int64, patch TimelinePatch) (*storage.TimelineEntry, error) {
	u := postgres.TimelineUpdate(patch)
	if u.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if u.Date != nil {
		if *u.Date == "" {
			return nil, apperr.Validationf("date cannot be empty")
		}
		if err := validDate("date", *u.Date); err != nil {
			return nil, err
		}
	}
	if u.Images != nil {
		images := nonEmpty(*u.Images)
		u.Images = &images
	}

	potID, err := s.gate.TimelineOwned(ctx, id, p.UserID)
	if err != nil {
		return nil, err
	}

	var removed []string
	if u.Images != nil {
		before, err := s.timelines().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		removed = media.Unreferenced(before.Images, *u.Images)
	}

	if err := s.timelines().Update(ctx, id, u); err != nil {
		return nil, err
	}
	s.cleanupUnreferenced(ctx, "timeline_update_cleanup", potID, removed)
	return s.timelines().Get(ctx, id)
}

// DeleteTimeline removes an entry and schedules deletion of its images that
// are not used elsewhere in the pot.
func (s *Service) DeleteTimeline(ctx context.Context, p *auth.Principal, id int64) (int, error) {
	potID, err := s.gate.TimelineOwned(ctx, id, p.UserID)
	if err != nil {
		return 0, err
	}
	entry, err := s.timelines().Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.timelines().Delete(ctx, id); err != nil {
		return 0, err
	}
	return s.cleanupUnreferenced(ctx, "timeline_cleanup", potID, entry.Images), nil
}
