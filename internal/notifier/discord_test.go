package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/komsu/internal/models"
)

func newTestClient(url string) *Client {
	client := New(url)
	// Override rate limiter for tests to run fast
	client.rateLimiter = rate.NewLimiter(rate.Inf, 1)
	client.backoffBase = time.Millisecond
	return client
}

func TestFormatListingToEmbed(t *testing.T) {
	listing := models.Listing{
		Name:        "Oak Table",
		Description: "Seats four",
		Images:      []string{"file:///local/1.jpg", "https://example.com/2.jpg"},
	}

	embed := formatListingToEmbed("pub-1", listing)

	if embed.Title != "Oak Table" {
		t.Errorf("Title = %q, want Oak Table", embed.Title)
	}
	if embed.Description != "Seats four" {
		t.Errorf("Description = %q", embed.Description)
	}
	if embed.Thumbnail == nil || embed.Thumbnail.URL != "https://example.com/2.jpg" {
		t.Errorf("Thumbnail should skip device-local URIs, got %+v", embed.Thumbnail)
	}
	if embed.Footer.Text != "pub-1 · 2 image(s)" {
		t.Errorf("Footer = %q", embed.Footer.Text)
	}
}

func TestFormatListingToEmbed_Untitled(t *testing.T) {
	embed := formatListingToEmbed("pub-1", models.Listing{})
	if embed.Title != "Untitled listing" {
		t.Errorf("Title = %q, want placeholder", embed.Title)
	}
	if embed.Thumbnail != nil {
		t.Errorf("Thumbnail = %+v, want none", embed.Thumbnail)
	}
}

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("Expected wait=true query param")
		}

		var payload discordWebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if len(payload.Embeds) != 1 || payload.Embeds[0].Title != "Chair" {
			t.Errorf("unexpected payload %+v", payload)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "12345", "channel_id": "67890"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	id, err := client.Send(context.Background(), "pub-1", models.Listing{Name: "Chair"})
	if err != nil {
		t.Fatalf("Send() returned error: %v", err)
	}
	if id != "12345" {
		t.Errorf("Expected ID 12345, got %s", id)
	}
}

func TestClient_Send_RetriesOn5xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message": "server error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "retry-success", "channel_id": "67890"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	id, err := client.Send(context.Background(), "pub-1", models.Listing{Name: "Retry"})
	if err != nil {
		t.Fatalf("Send() should have succeeded after retries, got error: %v", err)
	}
	if id != "retry-success" {
		t.Errorf("Expected ID 'retry-success', got %s", id)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts (2 failures + 1 success), got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_Send_NoRetryOn4xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "bad request"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Send(context.Background(), "pub-1", models.Listing{Name: "Bad"}); err == nil {
		t.Fatal("Send() should have returned error for 400 response")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt (no retry for 400), got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_Send_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Send(context.Background(), "pub-1", models.Listing{Name: "Down"}); err == nil {
		t.Fatal("Send() should fail once retries are exhausted")
	}
	if got := atomic.LoadInt32(&attempts); got != maxRetries+1 {
		t.Errorf("attempts = %d, want %d", got, maxRetries+1)
	}
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		retryAfter string
		attempt    int
		want       time.Duration
	}{
		{"429 with Retry-After", 429, "2", 0, 2 * time.Second},
		{"429 without Retry-After", 429, "", 0, time.Millisecond},
		{"500 error", 500, "", 0, time.Millisecond},
		{"503 error", 503, "", 1, 2 * time.Millisecond},
		{"400 error", 400, "", 0, 0},
		{"404 error", 404, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.statusCode,
				Header:     http.Header{},
			}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}

			if got := retryBackoff(resp, tt.attempt, time.Millisecond); got != tt.want {
				t.Errorf("retryBackoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_Send_EmptyWebhookURL(t *testing.T) {
	c := New("")
	id, err := c.Send(context.Background(), "pub-1", models.Listing{Name: "Test"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "" {
		t.Errorf("Send() with empty webhook should return empty ID, got %q", id)
	}
}
