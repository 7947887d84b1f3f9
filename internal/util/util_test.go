package util

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"currencyapi/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestValidationDetails(t *testing.T) {
	type body struct {
		Name string `validate:"required"`
		Code int    `validate:"gt=0"`
	}
	verr := validator.New().Struct(body{})
	require.Error(t, verr)

	var typed struct {
		NumCode int `json:"num_code"`
	}
	typeErr := json.Unmarshal([]byte(`{"num_code":"abc"}`), &typed)
	require.Error(t, typeErr)

	synErr := json.Unmarshal([]byte(`{`), &typed)
	require.Error(t, synErr)

	tests := []struct {
		name     string
		source   string
		err      error
		wantLocs [][]string
		wantMsg  string
	}{
		{
			name:     "validator",
			source:   "body",
			err:      verr,
			wantLocs: [][]string{{"body", "Name"}, {"body", "Code"}},
			wantMsg:  "field required",
		},
		{
			name:     "type mismatch",
			source:   "body",
			err:      typeErr,
			wantLocs: [][]string{{"body", "num_code"}},
			wantMsg:  "value is not a valid int",
		},
		{
			name:     "syntax",
			source:   "body",
			err:      synErr,
			wantLocs: [][]string{{"body"}},
			wantMsg:  "request body is not valid JSON",
		},
		{
			name:   "filter",
			source: "query",
			err: &model.FilterError{
				Field: "num_code", Value: "x", Err: strconv.ErrSyntax,
			},
			wantLocs: [][]string{{"query", "num_code"}},
			wantMsg:  "invalid syntax",
		},
		{
			name:     "other",
			source:   "path",
			err:      errors.New("id must be an integer"),
			wantLocs: [][]string{{"path"}},
			wantMsg:  "id must be an integer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := ValidationDetails(tt.source, tt.err)
			require.Len(t, details, len(tt.wantLocs))
			for i, loc := range tt.wantLocs {
				assert.Equal(t, loc, details[i].Loc)
			}
			assert.Equal(t, tt.wantMsg, details[0].Msg)
		})
	}
}

func TestResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(c *gin.Context)
		status int
		body   string
	}{
		{"not found", func(c *gin.Context) { NotFound(c, "Currency") }, http.StatusNotFound, `{"detail":"Currency not found"}`},
		{"bad request", func(c *gin.Context) { BadRequest(c, errors.New("[Currency] Integrity constraint violated: dup")) }, http.StatusBadRequest, `{"detail":"[Currency] Integrity constraint violated: dup"}`},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "") }, http.StatusUnauthorized, `{"detail":"Not authenticated"}`},
		{"rate limit", RateLimitError, http.StatusTooManyRequests, `{"detail":"Too many requests"}`},
		{"server error", func(c *gin.Context) { ServerError(c, "") }, http.StatusInternalServerError, `{"detail":"Internal server error"}`},
		{"validation", func(c *gin.Context) { ValidationError(c, "path", errors.New("bad id")) }, http.StatusUnprocessableEntity, `{"detail":[{"loc":["path"],"msg":"bad id","type":"value_error"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tt.write(c)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Close()

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(11 * time.Minute)
	rl.Allow("b")
	rl.sweep()
	assert.Equal(t, 1, rl.Len())
}

func TestPasswordAndToken(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("wrong", hash))

	token, expires, err := IssueAdminToken("key", "admin", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	user, err := ParseAdminToken("key", token)
	require.NoError(t, err)
	assert.Equal(t, "admin", user)

	_, err = ParseAdminToken("other-key", token)
	assert.Error(t, err)

	expired, _, err := IssueAdminToken("key", "admin", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAdminToken("key", expired)
	assert.Error(t, err)
}
