package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

const (
	defaultCareLimit = 20
	maxCareLimit     = 100
)

// CareInput is the body of a care record create request. One record is
// written per entry in Types (or the single Type).
type CareInput struct {
	PotID       string   `json:"potId"`
	Type        string   `json:"type"`
	Types       []string `json:"types"`
	Action      string   `json:"action"`
	Actions     []string `json:"actions"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl"`
	ImageURLs   []string `json:"imageUrls"`
	CareDate    string   `json:"careDate"`
}

// CarePatch is the body of a care record update request.
type CarePatch struct {
	Type        *string   `json:"type"`
	Action      *string   `json:"action"`
	CareDate    *string   `json:"careDate"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	ImageURLs   *[]string `json:"imageUrls"`
}

// CareResult reports what CreateCareRecords wrote.
type CareResult struct {
	Count      int    `json:"count"`
	TimelineID *int64 `json:"timelineId,omitempty"`
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (in CareInput) types() []string {
	if types := nonEmpty(in.Types); len(types) > 0 {
		return types
	}
	return nonEmpty([]string{in.Type})
}

func (in CareInput) actions(types []string) []string {
	actions := make([]string, len(types))
	for i, t := range types {
		switch {
		case i < len(in.Actions) && strings.TrimSpace(in.Actions[i]) != "":
			actions[i] = strings.TrimSpace(in.Actions[i])
		case len(types) == 1 && strings.TrimSpace(in.Action) != "":
			actions[i] = strings.TrimSpace(in.Action)
		default:
			actions[i] = t
		}
	}
	return actions
}

func (in CareInput) images() []string {
	if images := nonEmpty(in.ImageURLs); len(images) > 0 {
		return images
	}
	return nonEmpty([]string{in.ImageURL})
}

// CreateCareRecords logs one or more care actions on a pot. When images are
// attached, a timeline entry describing the care is written alongside.
func (s *Service) CreateCareRecords(ctx context.Context, p *auth.Principal, in CareInput) (*CareResult, error) {
	if in.PotID == "" || in.CareDate == "" {
		return nil, apperr.Validationf("potId and careDate are required")
	}
	if err := validDate("careDate", in.CareDate); err != nil {
		return nil, err
	}
	if _, err := s.gate.PotOwned(ctx, in.PotID, p.UserID); err != nil {
		return nil, err
	}

	types := in.types()
	if len(types) == 0 {
		return nil, apperr.Validationf("at least one care type is required")
	}
	actions := in.actions(types)
	images := in.images()
	joined := strings.Join(actions, ", ")

	result := &CareResult{}
	err := postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		records := postgres.NewCareRecordRepository(tx)
		for i, t := range types {
			rec := &storage.CareRecord{
				PotID:       in.PotID,
				Type:        t,
				Action:      actions[i],
				Description: in.Description,
				ImageURLs:   images,
				CareDate:    in.CareDate,
			}
			if err := records.Create(ctx, rec); err != nil {
				return err
			}
			result.Count++
		}

		if err := postgres.NewPotRepository(tx).SetLastCare(ctx, in.PotID, in.CareDate, joined); err != nil {
			return err
		}

		if len(images) == 0 {
			return nil
		}
		entry := &storage.TimelineEntry{
			PotID:       in.PotID,
			Date:        in.CareDate,
			Description: strings.TrimSpace(fmt.Sprintf("[%s] %s", joined, in.Description)),
			Images:      images,
		}
		if err := postgres.NewTimelineRepository(tx).Create(ctx, entry); err != nil {
			return err
		}
		result.TimelineID = &entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListCareRecords returns a pot's most recent care records.
func (s *Service) ListCareRecords(ctx context.Context, p *auth.Principal, potID string, limit int) ([]*storage.CareRecord, error) {
	if _, err := s.gate.PotOwned(ctx, potID, p.UserID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultCareLimit
	case limit > maxCareLimit:
		limit = maxCareLimit
	}
	return s.careRecords().ListByPot(ctx, potID, limit)
}

func (s *Service) GetCareRecord(ctx context.Context, p *auth.Principal, id int64) (*storage.CareRecord, error) {
	if _, err := s.gate.CareRecordOwned(ctx, id, p.UserID); err != nil {
		return nil, err
	}
	return s.careRecords().Get(ctx, id)
}

// UpdateCareRecord applies a partial update. Images removed here are left in
// place since timelines may share them.
func (s *Service) UpdateCareRecord(ctx context.Context, p *auth.Principal, id int64, patch CarePatch) (*storage.CareRecord, error) {
	u := postgres.CareRecordUpdate{
		Type:        patch.Type,
		Action:      patch.Action,
		CareDate:    patch.CareDate,
		Description: patch.Description,
		ImageURLs:   patch.ImageURLs,
	}
	if u.ImageURLs == nil && patch.ImageURL != nil {
		images := nonEmpty([]string{*patch.ImageURL})
		u.ImageURLs = &images
	}
	if u.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if u.CareDate != nil {
		if *u.CareDate == "" {
			return nil, apperr.Validationf("careDate cannot be empty")
		}
		if err := validDate("careDate", *u.CareDate); err != nil {
			return nil, err
		}
	}
	if u.Type != nil && strings.TrimSpace(*u.Type) == "" {
		return nil, apperr.Validationf("type cannot be empty")
	}

	if _, err := s.gate.CareRecordOwned(ctx, id, p.UserID); err != nil {
		return nil, err
	}
	if err := s.careRecords().Update(ctx, id, u); err != nil {
		return nil, err
	}
	return s.careRecords().Get(ctx, id)
}

// DeleteCareRecord removes a record and schedules deletion of the images no
// other record or timeline of the pot still uses.
func (s *Service) DeleteCareRecord(ctx context.Context, p *auth.Principal, id int64) (int, error) {
	potID, err := s.gate.CareRecordOwned(ctx, id, p.UserID)
	if err != nil {
		return 0, err
	}
	rec, err := s.careRecords().Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.careRecords().Delete(ctx, id); err != nil {
		return 0, err
	}
	return s.cleanupUnreferenced(ctx, "care_record_cleanup", potID, rec.ImageURLs), nil
}
