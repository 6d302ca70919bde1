package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/customers"
	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server *httptest.Server
	key    string
	other  string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(database))
	queries, err := db.LoadQueries(database)
	require.NoError(t, err)

	matcher, err := customers.NewMatcher(database, 5, nil)
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(map[string][]byte{testSecretID: []byte(strings.Repeat("k", 32))}, queries)

	svc, err := NewService(
		segments.NewStore(queries, matcher, nil),
		customers.NewStore(queries),
		matcher,
		authenticator,
		Options{MaxBodyBytes: 64 << 10, MaxBatchSize: 10},
		nil,
	)
	require.NoError(t, err)

	key, _, err := authenticator.CreateKey(context.Background(), "shop-1", "test")
	require.NoError(t, err)
	other, _, err := authenticator.CreateKey(context.Background(), "shop-2", "test")
	require.NoError(t, err)

	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)
	return &testEnv{server: server, key: key, other: other}
}

func (e *testEnv) do(t *testing.T, method, path, key, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(auth.HeaderAPIKey, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

const importBody = `{"customers":[
	{"id":"c1","email":"ann@example.com","firstName":"Ann","totalSpent":1200,"ordersCount":12,"rfmSegment":"champions","isHighValue":true},
	{"id":"c2","email":"bob@example.com","firstName":"Bob","totalSpent":450,"ordersCount":3,"rfmSegment":"loyal"},
	{"id":"c3","firstName":"Cy","totalSpent":80,"ordersCount":1,"rfmSegment":"at_risk","isChurnRisk":true},
	{"id":"bad","totalSpent":10,"rfmSegment":"vip"}
]}`

func TestAuthRequired(t *testing.T) {
	env := setup(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/segments", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"API key required in x-api-key header"}`, body)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/segments", "sk-v1-garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestImportAndPreview(t *testing.T) {
	env := setup(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/customers", env.key, importBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"acceptedCount":3`)
	assert.Contains(t, body, `{"id":"bad","status":"rejected"`)

	// legacy grouped shape is accepted
	preview := `{"query":{"logic":"AND","groups":[{"logic":"OR","conditions":[
		{"field":"totalSpent","operator":"gte","value":"400"}]}]}}`
	resp, body = env.do(t, http.MethodPost, "/api/v1/preview", env.key, preview)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"count":2`)
	assert.Contains(t, body, `"id":"c1"`)
	assert.NotContains(t, body, `"id":"c3"`)

	// shop scoping: the other shop has no customers
	resp, body = env.do(t, http.MethodPost, "/api/v1/preview", env.other, preview)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"count":0,"sample":[]}`, body)
}

func TestPreviewErrors(t *testing.T) {
	env := setup(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"query":`, http.StatusBadRequest},
		{"empty query", `{"query":{"logic":"AND","conditions":[]}}`, http.StatusBadRequest},
		{"only incomplete conditions", `{"query":[{"field":"email","operator":"eq","value":""}]}`, http.StatusBadRequest},
		{"body too large", `{"query":"` + strings.Repeat("x", 70<<10) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/v1/preview", env.key, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, body)
			assert.Contains(t, body, `"error"`)
		})
	}
}

func TestSegmentLifecycle(t *testing.T) {
	env := setup(t)
	resp, body := env.do(t, http.MethodPost, "/api/v1/customers", env.key, importBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	create := `{"name":"Churn risk","filters":{"logic":"AND","conditions":[{"field":"isChurnRisk","operator":"eq","value":true}]},"isActive":true}`
	resp, body = env.do(t, http.MethodPost, "/api/v1/segments", env.key, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Contains(t, body, `"memberCount":1`)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/api/v1/segments/"))

	resp, body = env.do(t, http.MethodGet, location, env.key, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"name":"Churn risk"`)

	// another shop cannot see it
	resp, _ = env.do(t, http.MethodGet, location, env.other, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/segments", env.key, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/segments", env.key, "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	update := `{"name":"Spenders","filters":[{"field":"totalSpent","operator":"gt","value":100}],"isActive":false}`
	resp, body = env.do(t, http.MethodPut, location, env.key, update)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"memberCount":2`)
	assert.Contains(t, body, `"isActive":false`)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/segments", env.key, "", "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "etag must change after update")

	resp, _ = env.do(t, http.MethodDelete, location, env.key, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, location, env.key, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSegmentValidation(t *testing.T) {
	env := setup(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"blank name", http.MethodPost, "/api/v1/segments", `{"name":" ","filters":[{"field":"email","operator":"isNull"}]}`, http.StatusBadRequest},
		{"empty filters", http.MethodPost, "/api/v1/segments", `{"name":"x","filters":{"logic":"AND","conditions":[]}}`, http.StatusBadRequest},
		{"malformed id", http.MethodGet, "/api/v1/segments/not-a-uuid", "", http.StatusNotFound},
		{"missing id", http.MethodPut, "/api/v1/segments/" + string(types.NewSegmentID()), `{"name":"x","filters":[{"field":"email","operator":"isNull"}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, env.key, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, body)
		})
	}
}

func TestFields(t *testing.T) {
	env := setup(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/fields", env.key, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, `[{"key":"totalSpent"`), body)
	assert.Contains(t, body, `"key":"email"`)
}

func TestImportBatchLimits(t *testing.T) {
	env := setup(t)
	resp, _ := env.do(t, http.MethodPost, "/api/v1/customers", env.key, `{"customers":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rows := make([]string, 11)
	for i := range rows {
		rows[i] = `{"id":"c","rfmSegment":"loyal"}`
	}
	resp, _ = env.do(t, http.MethodPost, "/api/v1/customers", env.key, `{"customers":[`+strings.Join(rows, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(types.ErrUnknownField, http.StatusTeapot))
	assert.Equal(t, http.StatusNotFound, statusFor(types.ErrSegmentNotFound, http.StatusTeapot))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(types.ErrStorage, http.StatusTeapot))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded, http.StatusTeapot))
	assert.Equal(t, http.StatusTeapot, statusFor(io.ErrUnexpectedEOF, http.StatusTeapot))
}
