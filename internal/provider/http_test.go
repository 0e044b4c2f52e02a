package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ranktracker/internal/provider"
)

func newVendor(t *testing.T, handler http.HandlerFunc) *provider.HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return provider.NewHTTPClient(server.URL, "test-key", 5*time.Second)
}

func TestHTTPClient_RankingTaskFlow(t *testing.T) {
	client := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/ranking-tasks":
			var payload struct {
				Domain   string   `json:"domain"`
				Keywords []string `json:"keywords"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "acme-plumbing.example", payload.Domain)
			_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-123"})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/ranking-tasks/task-123":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/ranking-tasks/task-123/positions":
			assert.Equal(t, "plumber near me", r.URL.Query().Get("keyword"))
			_ = json.NewEncoder(w).Encode(map[string]int{"position": 4})

		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()

	taskID, err := client.SubmitRankingTask(ctx, "acme-plumbing.example", []string{"plumber near me"})
	require.NoError(t, err)
	assert.Equal(t, "task-123", taskID)

	ready, err := client.TaskReady(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, ready)

	position, err := client.FetchPosition(ctx, taskID, "plumber near me")
	require.NoError(t, err)
	require.True(t, position.Valid)
	assert.EqualValues(t, 4, position.Int64)
}

func TestHTTPClient_NullPosition(t *testing.T) {
	client := newVendor(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"position": nil})
	})

	position, err := client.FetchPosition(context.Background(), "task-123", "plumber near me")
	require.NoError(t, err)
	assert.False(t, position.Valid)
}

func TestHTTPClient_NotFoundMeansNoData(t *testing.T) {
	client := newVendor(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no listing", http.StatusNotFound)
	})

	_, err := client.FetchListing(context.Background(), "unknown.example")
	assert.ErrorIs(t, err, provider.ErrNoData)
}

func TestHTTPClient_ErrorsCarryStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusInternalServerError, false},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newVendor(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "vendor says no", tt.status)
			})

			_, err := client.FetchReviews(context.Background(), "acme-plumbing.example")
			var provErr *provider.Error
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.transient, provErr.Transient)
			assert.Contains(t, provErr.Message, "vendor says no")
		})
	}
}

func TestHTTPClient_Listing(t *testing.T) {
	client := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listings", r.URL.Path)
		assert.Equal(t, "acme-plumbing.example", r.URL.Query().Get("domain"))
		_ = json.NewEncoder(w).Encode(provider.Listing{
			Name:       "Acme Plumbing",
			Address:    "1 Main St",
			Phone:      "555-0100",
			Website:    "https://acme-plumbing.example",
			Categories: []string{"plumber"},
		})
	})

	listing, err := client.FetchListing(context.Background(), "acme-plumbing.example")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", listing.Name)
	assert.Equal(t, []string{"plumber"}, listing.Categories)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	client := newVendor(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.TaskReady(ctx, "task-123")
	assert.True(t, errors.Is(err, context.Canceled))
}
