package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"currencyapi/config"
	"currencyapi/internal/cache"
	"currencyapi/internal/middleware"
	"currencyapi/internal/model"
	"currencyapi/internal/service"
	"currencyapi/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestAPI(t *testing.T, jobs JobRunner, jwt config.JWTConfig) *testAPI {
	t.Helper()

	db, err := model.OpenDB(model.DBConfig{
		Driver:       "sqlite",
		DSN:          "file::memory:?_foreign_keys=on",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	t.Cleanup(func() { _ = model.CloseDB(db) })

	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	r := gin.New()
	RegisterRoutes(r, Routes{
		DB:           func() *gorm.DB { return db },
		Cache:        middleware.NewResponseCache(store, "test:"),
		CacheBackend: "memory",
		ListTTL:      300 * time.Second,
		DetailTTL:    60 * time.Second,
		Timeout:      5 * time.Second,
		Jobs:         jobs,
		JWT:          jwt,
	})
	return &testAPI{t: t, db: db, router: r}
}

func (a *testAPI) do(method, target string, body any, header ...string) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) createGroup(name string) model.CurrencyGroup {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/currency_group/", gin.H{"name": name})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.CurrencyGroup](a.t, w)
}

func (a *testAPI) createCurrency(groupID uint, num int, char, name string) model.Currency {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/currency/", gin.H{
		"currency_group_id": groupID,
		"num_code":          num,
		"char_code":         char,
		"name":              name,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Currency](a.t, w)
}

func TestCreateCurrency(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	group := api.createGroup("Foreign Currency Market")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantDetail string
		wantLoc    []string
	}{
		{
			name:       "created",
			body:       gin.H{"currency_group_id": group.ID, "num_code": 840, "char_code": "USD", "name": "US Dollar"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate char code",
			body:       gin.H{"currency_group_id": group.ID, "num_code": 841, "char_code": "USD", "name": "US Dollar"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "[Currency] Integrity constraint violated",
		},
		{
			name:       "duplicate num code",
			body:       gin.H{"currency_group_id": group.ID, "num_code": 840, "char_code": "USX", "name": "US Dollar"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "[Currency] Integrity constraint violated",
		},
		{
			name:       "unknown group",
			body:       gin.H{"currency_group_id": group.ID + 100, "num_code": 978, "char_code": "EUR", "name": "Euro"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "[Currency] Integrity constraint violated",
		},
		{
			name:       "num code not a number",
			body:       `{"currency_group_id": 1, "num_code": "abc", "char_code": "EUR", "name": "Euro"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantLoc:    []string{"body", "num_code"},
		},
		{
			name:       "bad char code",
			body:       gin.H{"currency_group_id": group.ID, "num_code": 978, "char_code": "E1", "name": "Euro"},
			wantStatus: http.StatusUnprocessableEntity,
			wantLoc:    []string{"body", "char_code"},
		},
		{
			name:       "missing name",
			body:       gin.H{"currency_group_id": group.ID, "num_code": 978, "char_code": "EUR"},
			wantStatus: http.StatusUnprocessableEntity,
			wantLoc:    []string{"body", "name"},
		},
		{
			name:       "not json",
			body:       `{`,
			wantStatus: http.StatusUnprocessableEntity,
			wantLoc:    []string{"body"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, "/api/v1/currency/", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			switch {
			case tt.wantDetail != "":
				body := decode[util.Response](t, w)
				assert.True(t, strings.HasPrefix(body.Detail.(string), tt.wantDetail), body.Detail)
			case tt.wantLoc != nil:
				body := decode[struct {
					Detail []util.FieldError `json:"detail"`
				}](t, w)
				require.NotEmpty(t, body.Detail)
				assert.Equal(t, tt.wantLoc, body.Detail[0].Loc)
			default:
				created := decode[model.Currency](t, w)
				assert.NotZero(t, created.ID)
				assert.Equal(t, "USD", created.CharCode)
				assert.False(t, created.CreatedAt.IsZero())
			}
		})
	}
}

func TestReadCurrency(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	group := api.createGroup("Foreign Currency Market")
	usd := api.createCurrency(group.ID, 840, "USD", "US Dollar")

	w := api.do(http.MethodGet, fmt.Sprintf("/api/v1/currency/%d", usd.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	read := decode[model.Currency](t, w)
	assert.Equal(t, usd.ID, read.ID)
	assert.Equal(t, usd.CharCode, read.CharCode)
	assert.True(t, usd.CreatedAt.Equal(read.CreatedAt))

	w = api.do(http.MethodGet, "/api/v1/currency/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Currency not found"}`, w.Body.String())

	w = api.do(http.MethodGet, "/api/v1/currency/usd", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[struct {
		Detail []util.FieldError `json:"detail"`
	}](t, w)
	require.Len(t, body.Detail, 1)
	assert.Equal(t, []string{"path", "id"}, body.Detail[0].Loc)
}

func TestUpdateCurrency(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	group := api.createGroup("Foreign Currency Market")
	usd := api.createCurrency(group.ID, 840, "USD", "US Dollar")
	api.createCurrency(group.ID, 978, "EUR", "Euro")
	target := fmt.Sprintf("/api/v1/currency/%d", usd.ID)

	t.Run("empty object leaves entity unchanged", func(t *testing.T) {
		w := api.do(http.MethodPatch, target, gin.H{})
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[model.Currency](t, w)
		assert.Equal(t, usd.Name, got.Name)
		assert.True(t, usd.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("empty body leaves entity unchanged", func(t *testing.T) {
		w := api.do(http.MethodPatch, target, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, usd.Name, decode[model.Currency](t, w).Name)
	})

	t.Run("subset", func(t *testing.T) {
		w := api.do(http.MethodPatch, target, gin.H{"name": "Dollar"})
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[model.Currency](t, w)
		assert.Equal(t, "Dollar", got.Name)
		assert.Equal(t, "USD", got.CharCode)
		assert.Equal(t, 840, got.NumCode)
	})

	t.Run("null is skipped", func(t *testing.T) {
		w := api.do(http.MethodPatch, target, `{"name": null, "num_code": 841}`)
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[model.Currency](t, w)
		assert.Equal(t, "Dollar", got.Name)
		assert.Equal(t, 841, got.NumCode)
	})

	t.Run("conflict", func(t *testing.T) {
		w := api.do(http.MethodPatch, target, gin.H{"char_code": "EUR"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "[Currency] Integrity constraint violated")
	})

	t.Run("invalid field", func(t *testing.T) {
		w := api.do(http.MethodPatch, target, gin.H{"char_code": "EURO"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := api.do(http.MethodPatch, "/api/v1/currency/999", gin.H{"name": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteCascades(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	group := api.createGroup("Foreign Currency Market")
	usd := api.createCurrency(group.ID, 840, "USD", "US Dollar")

	w := api.do(http.MethodPost, "/api/v1/currency_rate/", gin.H{
		"currency_id": usd.ID, "nominal": 1, "value": "92.5", "vunit_rate": 92.5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rate := decode[model.CurrencyRate](t, w)
	assert.True(t, decimal.RequireFromString("92.5").Equal(rate.Value))

	w = api.do(http.MethodDelete, fmt.Sprintf("/api/v1/currency_group/%d", group.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = api.do(http.MethodDelete, fmt.Sprintf("/api/v1/currency_group/%d", group.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var currencies, rates int64
	require.NoError(t, api.db.Model(&model.Currency{}).Count(&currencies).Error)
	require.NoError(t, api.db.Model(&model.CurrencyRate{}).Count(&rates).Error)
	assert.Zero(t, currencies)
	assert.Zero(t, rates)
}

func TestListCurrencyRates(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	group := api.createGroup("Foreign Currency Market")
	usd := api.createCurrency(group.ID, 840, "USD", "US Dollar")
	eur := api.createCurrency(group.ID, 978, "EUR", "Euro")

	rates := make([]*model.CurrencyRate, 0, 600)
	for i := 0; i < 600; i++ {
		currencyID := usd.ID
		if i%2 == 1 {
			currencyID = eur.ID
		}
		rates = append(rates, &model.CurrencyRate{
			CurrencyID: currencyID,
			Nominal:    1,
			Value:      decimal.NewFromInt(int64(i + 1)),
			VunitRate:  decimal.NewFromInt(int64(i + 1)),
		})
	}
	require.NoError(t, model.NewStore[model.CurrencyRate](api.db).CreateMany(context.Background(), rates))

	tests := []struct {
		name      string
		query     string
		wantLen   int
		wantFirst string
	}{
		{"limit capped", "limit=10000", 500, "1"},
		{"default limit", "", 500, "1"},
		{"small limit", "limit=3", 3, "1"},
		{"offset", "limit=2&offset=10", 2, "11"},
		{"filter", fmt.Sprintf("currency_id=%d&limit=1000", eur.ID), 300, "2"},
		{"sort desc", "_value&limit=1", 1, "600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodGet, "/api/v1/currency_rate/?"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)
			got := decode[[]model.CurrencyRate](t, w)
			require.Len(t, got, tt.wantLen)
			assert.True(t, decimal.RequireFromString(tt.wantFirst).Equal(got[0].Value), "first = %s", got[0].Value)
		})
	}

	w := api.do(http.MethodGet, "/api/v1/currency_rate/?currency_id=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"query"`)
}

func TestListIncludesRelations(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	group := api.createGroup("Foreign Currency Market")
	api.createCurrency(group.ID, 840, "USD", "US Dollar")

	w := api.do(http.MethodGet, "/api/v1/currency_group/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "currencies")

	w = api.do(http.MethodGet, "/api/v1/currency_group/?include_currencies=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	groups := decode[[]model.CurrencyGroup](t, w)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Currencies, 1)
	assert.Equal(t, "USD", groups[0].Currencies[0].CharCode)

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/currency_group/%d?include_currencies=1", group.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[model.CurrencyGroup](t, w).Currencies, 1)
}

func TestListIsCached(t *testing.T) {
	api := newTestAPI(t, nil, config.JWTConfig{})
	api.createGroup("First")

	first := api.do(http.MethodGet, "/api/v1/currency_group/", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get(middleware.CacheHeader))

	api.createGroup("Second")

	second := api.do(http.MethodGet, "/api/v1/currency_group/?limit=500&offset=0", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(middleware.CacheHeader))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Len(t, decode[[]model.CurrencyGroup](t, second), 1)
}

type stubJobs struct {
	applyErr error
	calls    []string
}

func (s *stubJobs) RunFetch(ctx context.Context) (service.JobStatus, error) {
	s.calls = append(s.calls, service.JobFetch)
	return service.JobStatus{Status: "ok", FeedDate: "15.03.2024"}, nil
}

func (s *stubJobs) RunApply(ctx context.Context) (service.JobStatus, error) {
	s.calls = append(s.calls, service.JobApply)
	if s.applyErr != nil {
		return service.JobStatus{Status: "failed"}, s.applyErr
	}
	return service.JobStatus{Status: "ok", Reconciled: &service.ReconcileResult{Inserted: 1}}, nil
}

func (s *stubJobs) Status() map[string]service.JobStatus {
	return map[string]service.JobStatus{service.JobFetch: {Status: "ok"}}
}

func TestJobEndpoints(t *testing.T) {
	hash, err := util.HashPassword("s3cret")
	require.NoError(t, err)
	jobs := &stubJobs{}
	api := newTestAPI(t, jobs, config.JWTConfig{
		Secret:            "signing-key",
		AdminUser:         "admin",
		AdminPasswordHash: hash,
		ExpireHours:       1,
	})

	w := api.do(http.MethodPost, "/api/v1/jobs/fetch", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, "/api/v1/auth/token", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, "/api/v1/auth/token", gin.H{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[struct {
		AccessToken string `json:"access_token"`
	}](t, w).AccessToken
	require.NotEmpty(t, token)
	bearer := "Bearer " + token

	w = api.do(http.MethodPost, "/api/v1/jobs/fetch", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "15.03.2024", decode[service.JobStatus](t, w).FeedDate)

	w = api.do(http.MethodPost, "/api/v1/jobs/apply", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[service.JobStatus](t, w).Reconciled.Inserted)

	jobs.applyErr = fmt.Errorf("%w: Value of USD", service.ErrMalformedFeed)
	w = api.do(http.MethodPost, "/api/v1/jobs/apply", nil, "Authorization", bearer)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(http.MethodGet, "/api/v1/jobs", nil, "Authorization", bearer)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{service.JobFetch, service.JobApply, service.JobApply}, jobs.calls)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, &stubJobs{}, config.JWTConfig{})

	w := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = api.do(http.MethodGet, "/health/detail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]any](t, w)
	assert.Equal(t, "ok", detail["status"])
	assert.Contains(t, detail, "database")
	assert.Contains(t, detail, "jobs")

	require.NoError(t, model.CloseDB(api.db))
	w = api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
