package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/storage"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newMock(t)
	quota := 7
	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(UserColumnNames).AddRow(
			"u1", "email", "ann@example.com", "hash", "salt",
			"Ann", "", true, quota, false,
			"", "", nil,
			"", "", nil,
			now, nil))

	u, err := NewUserRepository(db).GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.KindEmail, u.Kind)
	assert.True(t, u.EmailVerified)
	require.NotNil(t, u.PotQuota)
	assert.Equal(t, 7, *u.PotQuota)
	assert.Nil(t, u.LastLogin)
	assert.True(t, u.HasPassword())
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepository(db).GetByID(context.Background(), "ghost")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestUserRepository_CreateConflict(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	err := NewUserRepository(db).Create(context.Background(), &auth.User{
		ID: "u1", Kind: auth.KindEmail, Email: "ann@example.com", CreatedAt: now,
	})
	assert.True(t, apperr.Is(err, apperr.Conflict))
	assert.Equal(t, "email already registered", apperr.Message(err))
}

func TestUserRepository_LockQuotaState(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT account_kind, email_verified, pot_quota, is_disabled FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"account_kind", "email_verified", "pot_quota", "is_disabled"}).
			AddRow("anonymous", false, nil, false))

	st, err := NewUserRepository(db).LockQuotaState(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, auth.KindAnonymous, st.Kind)
	assert.Nil(t, st.PotQuota)
}

func TestUserRepository_ApplyAdminUpdate(t *testing.T) {
	db, mock := newMock(t)
	disabled := true
	mock.ExpectExec(`UPDATE users SET is_disabled = \$1, pot_quota = \$2 WHERE id = \$3`).
		WithArgs(true, nil, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewUserRepository(db).ApplyAdminUpdate(context.Background(), "u1", AdminUpdate{
		IsDisabled: &disabled,
		SetQuota:   true,
	})
	require.NoError(t, err)
}

func TestUserRepository_UpdateMissingUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE users SET email_verified = TRUE`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepository(db).MarkEmailVerified(context.Background(), "ghost")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestUserRepository_ListSharesPredicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users u WHERE \(u.email ILIKE \$1`).
		WithArgs("%ann%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM users u WHERE \(u.email ILIKE \$1 .+ LIMIT \$2 OFFSET \$3`).
		WithArgs("%ann%", 20, 20).
		WillReturnRows(sqlmock.NewRows(SummaryColumnNames).
			AddRow("u1", "email", "ann@example.com", "Ann", true, false, nil, now, now, 4))

	users, total, err := NewUserRepository(db).List(context.Background(), "ann", storage.Page{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, 4, users[0].PotCount)
	require.NotNil(t, users[0].LastLogin)
}

func TestPotRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?s)INSERT INTO pots .+ COALESCE\(MAX\(sort_order\), 0\) \+ 1 FROM pots WHERE user_id = \$2`).
		WithArgs("p1", "u1", "Fern", nil, nil, "2024-04-01", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"sort_order", "created_at"}).AddRow(3, now))

	p := &storage.Pot{ID: "p1", UserID: "u1", Name: "Fern", PlantDate: "2024-04-01"}
	require.NoError(t, NewPotRepository(db).Create(context.Background(), p))
	assert.Equal(t, 3, p.SortOrder)
	assert.Equal(t, now, p.CreatedAt)
}

func TestPotRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO pots`).WillReturnError(&pq.Error{Code: "23505"})

	err := NewPotRepository(db).Create(context.Background(), &storage.Pot{ID: "p1", UserID: "u1", Name: "Fern"})
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestPotRepository_UpdateScopedByOwner(t *testing.T) {
	db, mock := newMock(t)
	name := "Big fern"
	mock.ExpectExec(`UPDATE pots SET name = \$1 WHERE id = \$2 AND user_id = \$3`).
		WithArgs("Big fern", "p1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPotRepository(db).Update(context.Background(), "p1", "u2", PotUpdate{Name: &name})
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestPotRepository_List(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM pots WHERE user_id = \$1 ORDER BY sort_order ASC, plant_date DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(PotColumnNames).
			AddRow("p1", "u1", "Fern", "", "", "", "", "", "", 1, now).
			AddRow("p2", "u1", "Cactus", "succulent", "", "2024-01-01", "", "2024-04-30", "watering", 2, now))

	pots, err := NewPotRepository(db).List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, pots, 2)
	assert.Equal(t, "watering", pots[1].LastCareAction)
}

func TestPotRepository_PotMedia(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT image_urls FROM care_records WHERE pot_id = \$1\s+UNION ALL\s+SELECT images FROM timelines WHERE pot_id = \$1`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"image_urls"}).
			AddRow(`["a.png","b.png"]`).
			AddRow(nil).
			AddRow("legacy.png"))

	images, err := NewPotRepository(db).PotMedia(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png", "legacy.png"}, images)
}

func TestCareRecordRepository_CreateEncodesImages(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO care_records`).
		WithArgs("p1", "watering", "watered", nil, `["a.png"]`, "2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, now))

	rec := &storage.CareRecord{PotID: "p1", Type: "watering", Action: "watered", ImageURLs: []string{"a.png"}, CareDate: "2024-05-01"}
	require.NoError(t, NewCareRecordRepository(db).Create(context.Background(), rec))
	assert.Equal(t, int64(9), rec.ID)
}

func TestCareRecordRepository_ListByPot(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM care_records WHERE pot_id = \$1 ORDER BY care_date DESC, id DESC LIMIT \$2`).
		WithArgs("p1", 20).
		WillReturnRows(sqlmock.NewRows(CareColumnNames).
			AddRow(2, "p1", "watering", "watered", "", nil, "2024-05-01", now))

	records, err := NewCareRecordRepository(db).ListByPot(context.Background(), "p1", 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{}, records[0].ImageURLs)
}

func TestTimelineRepository_UpdateImages(t *testing.T) {
	db, mock := newMock(t)
	images := []string{}
	mock.ExpectExec(`UPDATE timelines SET images = \$1 WHERE id = \$2`).
		WithArgs(nil, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewTimelineRepository(db).Update(context.Background(), 5, TimelineUpdate{Images: &images}))
}

func TestScheduleRepository_UpdateBumpsUpdatedAt(t *testing.T) {
	db, mock := newMock(t)
	interval := 3
	mock.ExpectExec(`UPDATE care_schedules SET interval_days = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs(3, int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewScheduleRepository(db).Update(context.Background(), 8, ScheduleUpdate{IntervalDays: &interval}))
}

func TestScheduleRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO care_schedules`).WillReturnError(&pq.Error{Code: "23505"})

	err := NewScheduleRepository(db).Create(context.Background(), &storage.CareSchedule{PotID: "p1", CareType: "watering", IntervalDays: 3})
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestPlantRepository_ListLoadsSynonymsOnce(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM plants WHERE \(name ILIKE \$1 OR id ILIKE \$1\)`).
		WithArgs("%fern%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`FROM plants WHERE \(name ILIKE \$1 OR id ILIKE \$1\) ORDER BY name ASC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("%fern%", 20, 0).
		WillReturnRows(sqlmock.NewRows(PlantColumnNames).
			AddRow("boston-fern", "Boston fern", "fern", "easy", []byte(`{"name":"Boston fern"}`), nil, nil, "", now, now).
			AddRow("maidenhair", "Maidenhair fern", "fern", "hard", nil, nil, nil, "", now, now))
	mock.ExpectQuery(`SELECT plant_id, synonym FROM plant_synonyms WHERE plant_id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"boston-fern", "maidenhair"})).
		WillReturnRows(sqlmock.NewRows([]string{"plant_id", "synonym"}).
			AddRow("boston-fern", "sword fern").
			AddRow("boston-fern", "Nephrolepis"))

	plants, total, err := NewPlantRepository(db).List(context.Background(), "fern", storage.Page{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, plants, 2)
	assert.Equal(t, []string{"sword fern", "Nephrolepis"}, plants[0].Synonyms)
	assert.Equal(t, []string{}, plants[1].Synonyms)
	assert.JSONEq(t, `{"name":"Boston fern"}`, string(plants[0].BasicInfo))
	assert.Nil(t, plants[1].BasicInfo)
}

func TestPlantRepository_UpsertAndReplaceSynonyms(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`(?s)INSERT INTO plants .+ ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs("fern", "Fern", nil, nil, `{"a":1}`, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM plant_synonyms WHERE plant_id = \$1`).
		WithArgs("fern").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO plant_synonyms`).WithArgs("fern", "ladder fern").WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewPlantRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &storage.Plant{ID: "fern", Name: "Fern", BasicInfo: []byte(`{"a":1}`)}))
	require.NoError(t, repo.ReplaceSynonyms(ctx, "fern", []string{"ladder fern"}))
}

func TestPlantRepository_DeleteMany(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM plants WHERE id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"a", "b", "c"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewPlantRepository(db).DeleteMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOwnershipRepository_ForeignLooksMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT c.pot_id FROM timelines c JOIN pots p ON p.id = c.pot_id WHERE c.id = \$1 AND p.user_id = \$2`).
		WithArgs(int64(3), "intruder").
		WillReturnError(sql.ErrNoRows)

	_, err := NewOwnershipRepository(db).Timeline(context.Background(), 3, "intruder")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.Equal(t, "timeline not found", apperr.Message(err))
}

func TestOwnershipRepository_Pot(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COALESCE\(image_url, ''\) FROM pots WHERE id = \$1 AND user_id = \$2`).
		WithArgs("p1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"image_url"}).AddRow("https://cdn/pots/u1/a.png"))

	img, err := NewOwnershipRepository(db).Pot(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/pots/u1/a.png", img)
}
