package lifecycle

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// neverCared is reported as days since care for pots with no care history.
const neverCared = 999

// ScheduleInput is the body of a schedule create request.
type ScheduleInput struct {
	PotID        string `json:"potId"`
	CareType     string `json:"careType"`
	IntervalDays int    `json:"intervalDays"`
	CustomAction string `json:"customAction"`
	Enabled      *bool  `json:"enabled"`
}

// SchedulePatch is the body of a schedule update request.
type SchedulePatch struct {
	IntervalDays *int    `json:"intervalDays"`
	CustomAction *string `json:"customAction"`
	Enabled      *bool   `json:"enabled"`
}

func (s *Service) ListSchedules(ctx context.Context, p *auth.Principal) ([]*storage.CareSchedule, error) {
	return s.schedules().ListByUser(ctx, p.UserID)
}

func (s *Service) ListPotSchedules(ctx context.Context, p *auth.Principal, potID string) ([]*storage.CareSchedule, error) {
	if _, err := s.gate.PotOwned(ctx, potID, p.UserID); err != nil {
		return nil, err
	}
	return s.schedules().ListByPot(ctx, potID)
}

func (s *Service) CreateSchedule(ctx context.Context, p *auth.Principal, in ScheduleInput) (*storage.CareSchedule, error) {
	in.CareType = strings.TrimSpace(in.CareType)
	if in.PotID == "" || in.CareType == "" || in.IntervalDays <= 0 {
		return nil, apperr.Validationf("potId, careType and a positive intervalDays are required")
	}
	if _, err := s.gate.PotOwned(ctx, in.PotID, p.UserID); err != nil {
		return nil, err
	}

	exists, err := s.schedules().Exists(ctx, in.PotID, in.CareType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflictf("care schedule already exists for this care type")
	}

	sched := &storage.CareSchedule{
		PotID:        in.PotID,
		CareType:     in.CareType,
		IntervalDays: in.IntervalDays,
		CustomAction: in.CustomAction,
		Enabled:      in.Enabled == nil || *in.Enabled,
	}
	if err := s.schedules().Create(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, p *auth.Principal, id int64, patch SchedulePatch) (*storage.CareSchedule, error) {
	u := postgres.ScheduleUpdate(patch)
	if u.Empty() {
		return nil, apperr.Validationf("no fields to update")
	}
	if u.IntervalDays != nil && *u.IntervalDays <= 0 {
		return nil, apperr.Validationf("intervalDays must be positive")
	}
	if _, err := s.gate.ScheduleOwned(ctx, id, p.UserID); err != nil {
		return nil, err
	}
	if err := s.schedules().Update(ctx, id, u); err != nil {
		return nil, err
	}
	return s.schedules().Get(ctx, id)
}

func (s *Service) DeleteSchedule(ctx context.Context, p *auth.Principal, id int64) error {
	if _, err := s.gate.ScheduleOwned(ctx, id, p.UserID); err != nil {
		return err
	}
	return s.schedules().Delete(ctx, id)
}

// Reminders returns the enabled schedules that are due, most neglected first.
// A pot that has never been cared for is always due. Every reminder returned
// is overdue: a schedule becomes overdue on the day its interval elapses.
func (s *Service) Reminders(ctx context.Context, p *auth.Principal) ([]*storage.Reminder, error) {
	schedules, err := s.schedules().EnabledByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return dueReminders(schedules, s.now()), nil
}

func dueReminders(schedules []*storage.CareSchedule, now time.Time) []*storage.Reminder {
	reminders := []*storage.Reminder{}
	for _, sched := range schedules {
		days := neverCared
		if d := daysSince(sched.LastCare, now); d != nil {
			days = *d
		}
		if days < sched.IntervalDays {
			continue
		}
		reminders = append(reminders, &storage.Reminder{
			CareSchedule:  *sched,
			DaysSinceCare: days,
			IsOverdue:     days >= sched.IntervalDays,
		})
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].DaysSinceCare > reminders[j].DaysSinceCare
	})
	return reminders
}
