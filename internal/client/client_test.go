package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(server.URL+"/", "sk-v1-test")
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New("not a url", "key")
	assert.Error(t, err)
	_, err = New("http://localhost:8080", "")
	assert.Error(t, err)
	c, err := New("http://localhost:8080/", "key", WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, time.Second, c.http.Timeout)
}

func TestMatch(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/preview", r.URL.Path)
		assert.Equal(t, "sk-v1-test", r.Header.Get("x-api-key"))
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":3,"sample":[{"id":"c1","email":"a@b.c","totalSpent":900}]}`))
	})

	q := wire.Query{Logic: "AND", Conditions: []wire.Condition{{Field: "totalSpent", Operator: "gte", Value: 500.0}}}
	res, err := c.Match(context.Background(), "ignored", q)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	require.Len(t, res.Sample, 1)
	assert.Equal(t, "c1", res.Sample[0].ID)
	assert.JSONEq(t, `{"query":{"logic":"AND","conditions":[{"field":"totalSpent","operator":"gte","value":500}]}}`, gotBody)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		is      error
	}{
		{"json error", http.StatusBadRequest, `{"error":"filter has no complete conditions"}`, "filter has no complete conditions", nil},
		{"not found", http.StatusNotFound, `{"error":"segment not found"}`, "segment not found", types.ErrSegmentNotFound},
		{"unavailable", http.StatusServiceUnavailable, `{"error":"database error"}`, "database error", types.ErrStorage},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down", nil},
		{"empty", http.StatusInternalServerError, "", "Internal Server Error", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetSegment(context.Background(), types.NewSegmentID())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.True(t, IsAPIError(err, tt.status))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestSegmentCalls(t *testing.T) {
	id := types.NewSegmentID()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/v1/segments":
			data, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"name":"VIP","filters":{"logic":"OR","conditions":[{"field":"isHighValue","operator":"eq","value":true}]},"isActive":true}`, string(data))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"` + string(id) + `","name":"VIP","memberCount":4,"filters":{"logic":"OR","conditions":[{"field":"isHighValue","operator":"eq","value":true}]}}`))
		case "GET /api/v1/segments":
			_, _ = w.Write([]byte(`[{"id":"` + string(id) + `","name":"VIP"}]`))
		case "DELETE /api/v1/segments/" + string(id):
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	in := segments.Input{
		Name:     "VIP",
		Filters:  wire.Query{Logic: "OR", Conditions: []wire.Condition{{Field: "isHighValue", Operator: "eq", Value: true}}},
		IsActive: true,
	}
	seg, err := c.CreateSegment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, id, seg.ID)
	assert.Equal(t, 4, seg.MemberCount)
	assert.Equal(t, "isHighValue", seg.Filters.Conditions[0].Field)

	list, err := c.ListSegments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DeleteSegment(ctx, id))
}

func TestContextCancel(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Match(ctx, "", wire.Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
