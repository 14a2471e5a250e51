package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users      []*storage.UserSummary `json:"users"`
	Pagination storage.Page           `json:"pagination"`
}

// NullableInt records whether a JSON field was present, and its value when
// it was not null.
type NullableInt struct {
	Set   bool
	Value *int
}

func (n *NullableInt) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return apperr.Validationf("potQuota must be an integer or null")
	}
	n.Value = &v
	return nil
}

// UserPatch is the body of an admin user update.
type UserPatch struct {
	IsDisabled    *bool       `json:"isDisabled"`
	EmailVerified *bool       `json:"emailVerified"`
	DisplayName   *string     `json:"displayName"`
	PotQuota      NullableInt `json:"potQuota"`
}

// EraseReport summarizes a user erasure.
type EraseReport struct {
	UserID      string       `json:"userId"`
	Pots        int64        `json:"pots"`
	CareRecords int64        `json:"careRecords"`
	Timelines   int64        `json:"timelines"`
	Schedules   int64        `json:"schedules"`
	Images      media.Result `json:"images"`
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int, search string) (*UserPage, error) {
	pg, err := NewPage(page, pageSize)
	if err != nil {
		return nil, err
	}
	users, total, err := postgres.NewUserRepository(s.db).List(ctx, strings.TrimSpace(search), pg)
	if err != nil {
		return nil, err
	}
	pg.Total = total
	return &UserPage{Users: users, Pagination: pg}, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*storage.UserSummary, error) {
	return postgres.NewUserRepository(s.db).Summary(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id string, patch UserPatch) (*storage.UserSummary, error) {
	u := postgres.AdminUpdate{
		IsDisabled:    patch.IsDisabled,
		EmailVerified: patch.EmailVerified,
		DisplayName:   patch.DisplayName,
		SetQuota:      patch.PotQuota.Set,
		PotQuota:      patch.PotQuota.Value,
	}
	if u.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if u.PotQuota != nil && *u.PotQuota < 0 {
		return nil, apperr.Validationf("potQuota must not be negative")
	}

	users := postgres.NewUserRepository(s.db)
	if err := users.ApplyAdminUpdate(ctx, id, u); err != nil {
		return nil, err
	}
	s.logger.WithField("user_id", id).Info("user updated by admin")
	return users.Summary(ctx, id)
}

// EraseUser deletes an account and everything it owns. Blobs go first and
// best-effort; the rows are then removed in one transaction.
func (s *Service) EraseUser(ctx context.Context, actorID, id string) (*EraseReport, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validationf("user id is required")
	}
	if id == actorID {
		return nil, apperr.Validationf("cannot delete your own account")
	}
	if _, err := postgres.NewUserRepository(s.db).GetByID(ctx, id); err != nil {
		return nil, err
	}

	pots := postgres.NewPotRepository(s.db)
	potImages, err := pots.ImagesByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	mediaImages, err := pots.UserMedia(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &EraseReport{UserID: id}
	report.Images = s.cleaner.DeleteURLs(ctx, append(potImages, mediaImages...))

	err = postgres.WithTx(ctx, s.db, func(ctx context.Context, tx postgres.DBTX) error {
		var err error
		if report.Schedules, err = postgres.NewScheduleRepository(tx).DeleteByUser(ctx, id); err != nil {
			return err
		}
		if report.CareRecords, err = postgres.NewCareRecordRepository(tx).DeleteByUser(ctx, id); err != nil {
			return err
		}
		if report.Timelines, err = postgres.NewTimelineRepository(tx).DeleteByUser(ctx, id); err != nil {
			return err
		}
		if report.Pots, err = postgres.NewPotRepository(tx).DeleteByUser(ctx, id); err != nil {
			return err
		}
		return postgres.NewUserRepository(tx).Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":        id,
		"actor_id":       actorID,
		"pots":           report.Pots,
		"images_deleted": report.Images.Deleted,
		"images_failed":  report.Images.Failed,
	}).Info("user erased")
	return report, nil
}

// BatchEraseUsers erases each listed user independently.
func (s *Service) BatchEraseUsers(ctx context.Context, actorID string, ids []string) (*BatchResult, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, apperr.Validationf("ids must be a non-empty array")
	}

	result := &BatchResult{Errors: []string{}}
	for _, id := range ids {
		_, err := s.EraseUser(ctx, actorID, id)
		s.recordItem("user_erase", err)
		if err != nil {
			if apperr.KindOf(err) == apperr.Internal {
				s.logger.WithError(err).WithField("user_id", id).Warn("user erase failed")
			}
			result.fail(fmt.Sprintf("%s: %s", id, apperr.Message(err)))
			continue
		}
		result.Success++
	}
	return result, nil
}
