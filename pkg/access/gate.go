// Package access decides whether a principal may touch a resource: it
// resolves ownership, admin rights and pot quotas.
package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

// Tier names a quota class.
type Tier string

const (
	TierOverride   Tier = "override"
	TierAnonymous  Tier = "anonymous"
	TierUnverified Tier = "unverified"
	TierVerified   Tier = "verified"
)

// Quotas are the default pot limits per tier.
type Quotas struct {
	Anonymous  int `yaml:"anonymous"`
	Unverified int `yaml:"unverified"`
	Verified   int `yaml:"verified"`
}

// DefaultQuotas returns the standard tier limits.
func DefaultQuotas() Quotas {
	return Quotas{Anonymous: 3, Unverified: 10, Verified: 50}
}

// QuotaExceededError is returned when a user is at their pot limit.
type QuotaExceededError struct {
	Tier    Tier
	Current int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	switch e.Tier {
	case TierAnonymous:
		return fmt.Sprintf("pot limit reached (%d/%d): register an account to raise the limit", e.Current, e.Limit)
	case TierUnverified:
		return fmt.Sprintf("pot limit reached (%d/%d): verify your email address to raise the limit", e.Current, e.Limit)
	default:
		return fmt.Sprintf("pot limit reached (%d/%d): contact support to raise the limit", e.Current, e.Limit)
	}
}

// Kind reports the error as Forbidden.
func (e *QuotaExceededError) Kind() apperr.Kind { return apperr.Forbidden }

// Usage describes a user's pot count against their limit.
type Usage struct {
	Tier    Tier `json:"tier"`
	Current int  `json:"potCount"`
	Limit   int  `json:"potLimit"`
}

// Gate answers authorization questions against the database.
type Gate struct {
	db      *sql.DB
	admins  map[string]struct{}
	quotas  Quotas
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewGate builds a gate. adminEmails are matched case-insensitively.
func NewGate(db *sql.DB, adminEmails []string, quotas Quotas, logger *observability.Logger, metrics *observability.Metrics) *Gate {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = auth.NormalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &Gate{db: db, admins: admins, quotas: quotas, logger: logger, metrics: metrics}
}

// PotOwned checks that the pot belongs to userID and returns its image URL.
func (g *Gate) PotOwned(ctx context.Context, potID, userID string) (string, error) {
	return postgres.NewOwnershipRepository(g.db).Pot(ctx, potID, userID)
}

// CareRecordOwned returns the pot id of a care record owned by userID.
func (g *Gate) CareRecordOwned(ctx context.Context, id int64, userID string) (string, error) {
	return postgres.NewOwnershipRepository(g.db).CareRecord(ctx, id, userID)
}

func (g *Gate) TimelineOwned(ctx context.Context, id int64, userID string) (string, error) {
	return postgres.NewOwnershipRepository(g.db).Timeline(ctx, id, userID)
}

func (g *Gate) ScheduleOwned(ctx context.Context, id int64, userID string) (string, error) {
	return postgres.NewOwnershipRepository(g.db).Schedule(ctx, id, userID)
}

// IsAdmin reports whether userID has an allow-listed, verified email.
// A missing user is not an admin.
func (g *Gate) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if len(g.admins) == 0 {
		return false, nil
	}
	email, verified, err := postgres.NewUserRepository(g.db).AdminIdentity(ctx, userID)
	if apperr.Is(err, apperr.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.isAdminEmail(email) && verified, nil
}

func (g *Gate) isAdminEmail(email string) bool {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return false
	}
	_, ok := g.admins[email]
	return ok
}

func (g *Gate) limit(st *postgres.QuotaState) (Tier, int) {
	switch {
	case st.PotQuota != nil:
		return TierOverride, *st.PotQuota
	case st.Kind == auth.KindAnonymous:
		return TierAnonymous, g.quotas.Anonymous
	case !st.EmailVerified:
		return TierUnverified, g.quotas.Unverified
	default:
		return TierVerified, g.quotas.Verified
	}
}

// CheckPotQuota locks the user row on db and fails when the user is missing,
// disabled, or already at their pot limit. Run it inside the transaction
// that inserts the pot.
func (g *Gate) CheckPotQuota(ctx context.Context, db postgres.DBTX, userID string) error {
	st, err := postgres.NewUserRepository(db).LockQuotaState(ctx, userID)
	if err != nil {
		return err
	}
	if st.IsDisabled {
		return apperr.New(apperr.Forbidden, "account disabled")
	}

	tier, limit := g.limit(st)
	count, err := postgres.NewPotRepository(db).Count(ctx, userID)
	if err != nil {
		return err
	}
	if count >= limit {
		if g.metrics != nil {
			g.metrics.QuotaRejectionsTotal.WithLabelValues(string(tier)).Inc()
		}
		g.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"tier":    string(tier),
			"count":   count,
			"limit":   limit,
		}).Info("pot quota exceeded")
		return &QuotaExceededError{Tier: tier, Current: count, Limit: limit}
	}
	return nil
}

// PotUsage reports the user's pot count against their limit without locking.
func (g *Gate) PotUsage(ctx context.Context, user *auth.User) (Usage, error) {
	tier, limit := g.limit(&postgres.QuotaState{
		Kind:          user.Kind,
		EmailVerified: user.EmailVerified,
		PotQuota:      user.PotQuota,
	})
	count, err := postgres.NewPotRepository(g.db).Count(ctx, user.ID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Tier: tier, Current: count, Limit: limit}, nil
}
