//go:build integration

package lifecycle

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/potkeeper/pkg/access"
	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/async"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres/migrations"
)

// setupPostgres starts a disposable Postgres and applies the schema.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("potkeeper_test"),
		tcpostgres.WithUsername("potkeeper"),
		tcpostgres.WithPassword("potkeeper_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	require.NoError(t, migrations.Up(ctx, db))
	return db
}

func countRows(t *testing.T, db *sql.DB, table, potID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE pot_id = $1", potID).Scan(&n))
	return n
}

func TestIntegration_PotCreateDeleteCascade(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	logger := observability.NewNopLogger()
	blobs := newMemoryBlobStore()
	keys := media.NewKeys(base, []string{"icons-default-pot.png"})
	runner := async.NewRunner(logger, nil, 5*time.Second)
	gate := access.NewGate(db, nil, access.DefaultQuotas(), logger, nil)
	svc := NewService(db, gate, blobs, media.NewCleaner(blobs, keys, logger, nil), runner, logger)

	owner := &auth.User{
		ID:            "owner-1",
		Kind:          auth.KindEmail,
		Email:         "owner@example.com",
		EmailVerified: true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, postgres.NewUserRepository(db).Create(ctx, owner))
	p := &auth.Principal{UserID: owner.ID, Kind: auth.KindEmail, Email: owner.Email}

	pot, err := svc.CreatePot(ctx, p, PotInput{
		Name:      "Fiddle leaf",
		PlantDate: "2024-03-01",
		ImageURL:  base + "/pots/p1.jpg",
	})
	require.NoError(t, err)

	care, err := svc.CreateCareRecords(ctx, p, CareInput{
		PotID:     pot.ID,
		Types:     []string{"watering", "fertilizing"},
		ImageURLs: []string{base + "/care/c1.jpg"},
		CareDate:  "2024-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, care.Count)
	require.NotNil(t, care.TimelineID)

	_, err = svc.CreateSchedule(ctx, p, ScheduleInput{PotID: pot.ID, CareType: "watering", IntervalDays: 7})
	require.NoError(t, err)

	// A stranger sees the pot as missing.
	stranger := &auth.Principal{UserID: "someone-else", Kind: auth.KindAnonymous}
	_, err = svc.DeletePot(ctx, stranger, pot.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	report, err := svc.DeletePot(ctx, p, pot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.CareRecordCount)
	assert.Equal(t, int64(1), report.TimelineCount)
	assert.Equal(t, int64(1), report.ScheduleCount)
	assert.Equal(t, 2, report.ImagesScheduled)

	for _, table := range []string{"care_records", "timelines", "care_schedules"} {
		assert.Zero(t, countRows(t, db, table, pot.ID), table)
	}
	_, err = svc.GetPot(ctx, p, pot.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	require.NoError(t, runner.Drain(ctx))
	assert.Equal(t, []string{"care/c1.jpg", "pots/p1.jpg"}, blobs.deletedKeys())
}
