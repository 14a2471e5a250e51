package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/potkeeper/pkg/access"
	"github.com/platinummonkey/potkeeper/pkg/accounts"
	"github.com/platinummonkey/potkeeper/pkg/admin"
	"github.com/platinummonkey/potkeeper/pkg/async"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/catalog"
	"github.com/platinummonkey/potkeeper/pkg/lifecycle"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/middleware"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
)

const adminIdentityQuery = `SELECT COALESCE\(email, ''\), email_verified FROM users WHERE id = \$1`

type testEnv struct {
	server  *Server
	handler http.Handler
	mock    sqlmock.Sqlmock
	codec   *auth.TokenCodec
}

func newTestEnv(t *testing.T, throttle *middleware.RateLimitMiddleware) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewNopLogger()
	codec := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"))
	gate := access.NewGate(db, []string{"admin@example.com"}, access.DefaultQuotas(), logger, nil)
	runner := async.NewRunner(logger, nil, time.Second)
	keys := media.NewKeys("https://img.example.com", nil)
	blobs := storage.NopBlobStore{}
	cleaner := media.NewCleaner(blobs, keys, logger, nil)
	cat := catalog.New(db, nil)

	server := NewServer(Dependencies{
		Accounts:         accounts.NewService(db, codec, auth.NewPasswordHasher(), gate, accounts.NewLogMailer(logger), runner, logger, "http://localhost:8080"),
		Lifecycle:        lifecycle.NewService(db, gate, blobs, cleaner, runner, logger),
		Admin:            admin.NewService(db, cat, cleaner, logger, nil),
		Catalog:          cat,
		Identity:         middleware.NewIdentityMiddleware(codec, logger),
		Admins:           gate,
		IdentifyThrottle: throttle,
		Logger:           logger,
	})

	return &testEnv{server: server, handler: server.Handler(), mock: mock, codec: codec}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.codec.Sign(auth.Principal{UserID: userID, Kind: auth.KindEmail, Email: userID + "@example.com"})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// TestRouteTable verifies static paths win over the {id} routes beside them
// and that every route is also mounted under /api.
func TestRouteTable(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		method string
		path   string
		name   string
	}{
		{http.MethodPut, "/pots/reorder", "pots.reorder"},
		{http.MethodPut, "/pots/p1", "pots.update"},
		{http.MethodGet, "/care-schedules/reminders", "care_schedules.reminders"},
		{http.MethodGet, "/care-schedules/pot/p1", "care_schedules.by_pot"},
		{http.MethodPut, "/care-schedules/7", "care_schedules.update"},
		{http.MethodGet, "/care-records/42", "care_records.get"},
		{http.MethodGet, "/care-records/detail/42", "care_records.detail"},
		{http.MethodGet, "/care-records/6f1d2c3b-8a4e-4f5d-9b6c-7e8f9a0b1c2d", "care_records.by_pot"},
		{http.MethodPut, "/care-records/42", "care_records.update"},
		{http.MethodGet, "/api/care-records/detail/42", "api.care_records.detail"},
		{http.MethodPost, "/admin/plants/batch", "admin.plants.import"},
		{http.MethodDelete, "/admin/plants/batch", "admin.plants.batch_delete"},
		{http.MethodDelete, "/admin/plants/monstera", "admin.plants.delete"},
		{http.MethodDelete, "/admin/users/batch", "admin.users.batch_delete"},
		{http.MethodDelete, "/admin/users/u1", "admin.users.delete"},
		{http.MethodGet, "/plants/monstera", "plants.get"},
		{http.MethodPost, "/care-advice", "care_advice"},
		{http.MethodGet, "/api/pots/p1/stats", "api.pots.stats"},
		{http.MethodPut, "/api/pots/reorder", "api.pots.reorder"},
		{http.MethodPost, "/api/auth/identify", "api.auth.identify"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			require.True(t, env.server.Router().Match(req, &match))
			require.NotNil(t, match.Route)
			assert.Equal(t, tt.name, match.Route.GetName())
		})
	}
}

func TestPotScopedAliases_CheckOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	const potID = "6f1d2c3b-8a4e-4f5d-9b6c-7e8f9a0b1c2d"

	for _, path := range []string{"/care-records/" + potID, "/api/care-schedules/pot/" + potID} {
		env.mock.ExpectQuery(`SELECT COALESCE\(image_url, ''\) FROM pots WHERE id = \$1 AND user_id = \$2`).
			WithArgs(potID, "bob").
			WillReturnError(sql.ErrNoRows)

		rec := env.do(t, http.MethodGet, path, env.token(t, "bob"), "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "pot not found", decodeBody(t, rec)["error"], path)
	}
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCareRecordDetail_InvalidID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/care-records/detail/abc", env.token(t, "bob"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid id: abc", decodeBody(t, rec)["error"])
}

func TestRouteTable_AccessLevels(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, route := range env.server.Routes() {
		switch {
		case len(route.Path) >= 7 && route.Path[:7] == "/admin/":
			assert.Equal(t, Admin, route.Access, route.Name)
		case route.Path == "/plants" || route.Path == "/plants/{id}" || route.Path == "/care-advice":
			assert.Equal(t, Public, route.Access, route.Name)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decodeBody(t, rec)["error"])
}

func TestAuthenticatedRoute_RequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/pots", "/api/pots"} {
		rec := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "authentication required", decodeBody(t, rec)["error"])
	}

	rec := env.do(t, http.MethodGet, "/pots", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCheck(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		verified bool
		want     int
	}{
		{"verified admin", "admin@example.com", true, http.StatusOK},
		{"unverified admin", "admin@example.com", false, http.StatusForbidden},
		{"ordinary user", "someone@example.com", true, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.mock.ExpectQuery(adminIdentityQuery).WithArgs("u1").
				WillReturnRows(sqlmock.NewRows([]string{"email", "email_verified"}).AddRow(tt.email, tt.verified))

			rec := env.do(t, http.MethodGet, "/api/admin/check", env.token(t, "u1"), "")
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				body := decodeBody(t, rec)
				assert.Equal(t, true, body["success"])
				assert.Equal(t, "Admin access granted", body["message"])
			} else {
				assert.Equal(t, "admin access required", decodeBody(t, rec)["error"])
			}
			assert.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestAdminListPlants_PageOverflow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.ExpectQuery(adminIdentityQuery).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"email", "email_verified"}).AddRow("admin@example.com", true))

	rec := env.do(t, http.MethodGet, "/admin/plants?page=9223372036854775807&pageSize=100", env.token(t, "u1"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page is too large", decodeBody(t, rec)["error"])
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAdminRoute_Anonymous(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/admin/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBatchImport_RejectsNonArray(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.ExpectQuery(adminIdentityQuery).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"email", "email_verified"}).AddRow("admin@example.com", true))

	rec := env.do(t, http.MethodPost, "/admin/plants/batch", env.token(t, "u1"), `"monstera"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid data format", decodeBody(t, rec)["error"])
}

func TestImportItems(t *testing.T) {
	items, err := importItems(json.RawMessage(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = importItems(json.RawMessage(` {"plants":[{"id":"a"}]}`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = importItems(json.RawMessage(`{"items":[]}`))
	assert.Error(t, err)

	_, err = importItems(json.RawMessage(`42`))
	assert.Error(t, err)
}

func TestReorderPots_InvalidBody(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/pots/reorder", env.token(t, "u1"), `{"potIds": "p1,p2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid potIds, expected array", decodeBody(t, rec)["error"])

	rec = env.do(t, http.MethodPut, "/pots/reorder", env.token(t, "u1"), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "potIds must be an array", decodeBody(t, rec)["error"])
}

func TestCareAdvice(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/care-advice", "",
		`{"weather":{"current":{"temp":35,"humidity":60},"forecast":[{"rain_chance":10}]},"pots":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool `json:"success"`
		Data    []struct {
			Type     string `json:"type"`
			Priority string `json:"priority"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "high", body.Data[0].Priority)
	assert.Equal(t, "medium", body.Data[1].Priority)
}

func TestCareAdvice_MissingWeather(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/care-advice", "", `{"pots":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing weather data", decodeBody(t, rec)["error"])
}

func TestGetPlant(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	env.mock.ExpectQuery(`FROM plants WHERE id = \$1`).WithArgs("monstera").
		WillReturnRows(sqlmock.NewRows(postgres.PlantColumnNames).
			AddRow("monstera", "Monstera", "foliage", "easy", nil, nil, nil, "", now, now))
	env.mock.ExpectQuery(`FROM plant_synonyms WHERE plant_id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"plant_id", "synonym"}).AddRow("monstera", "Swiss cheese plant"))

	rec := env.do(t, http.MethodGet, "/plants/monstera", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "Monstera", data["name"])
	assert.Equal(t, []interface{}{"Swiss cheese plant"}, data["synonyms"])

	// Served from cache the second time.
	rec = env.do(t, http.MethodGet, "/api/plants/monstera", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestGetPlant_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.ExpectQuery(`FROM plants WHERE id = \$1`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(postgres.PlantColumnNames))

	rec := env.do(t, http.MethodGet, "/plants/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "plant not found", decodeBody(t, rec)["error"])
}

func TestVerifyEmail_RendersPage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/auth/verify-email", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Verification Failed")
	assert.Contains(t, rec.Body.String(), "verification token is required")
}

func TestIdentify_Throttled(t *testing.T) {
	cfg := &middleware.RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}
	logger := observability.NewNopLogger()
	throttle := middleware.NewRateLimitMiddleware(middleware.NewRateLimiter(cfg), cfg, "identify", logger)
	env := newTestEnv(t, throttle)

	env.mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := env.do(t, http.MethodPost, "/auth/identify", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, string(auth.KindAnonymous), body["userType"])
	assert.NotEmpty(t, body["token"])

	principal, err := env.codec.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, body["userId"], principal.UserID)

	rec = env.do(t, http.MethodPost, "/api/auth/identify", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}
