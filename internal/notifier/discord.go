package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/util"
)

const (
	colorListing = 3447003 // #3498DB
	maxRetries   = 3
)

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	backoffBase time.Duration
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Discord allows roughly 5 webhook requests per 2 seconds.
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
		backoffBase: util.DefaultBackoffBase,
	}
}

// Send announces a newly published listing and returns the message ID.
// An empty webhook URL disables announcements.
func (c *Client) Send(ctx context.Context, publicID string, listing models.Listing) (string, error) {
	if c.webhookURL == "" {
		return "", nil
	}
	embed := formatListingToEmbed(publicID, listing)
	return c.sendAndGetMessageID(ctx, embed)
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedImage struct {
	URL string `json:"url,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
	Color       int                `json:"color,omitempty"`
	Thumbnail   *discordEmbedImage `json:"thumbnail,omitempty"`
	Footer      discordEmbedFooter `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatListingToEmbed(publicID string, listing models.Listing) discordEmbed {
	title := listing.Name
	if title == "" {
		title = "Untitled listing"
	}

	// Device-local file URIs are meaningless to anyone else.
	var thumbnail *discordEmbedImage
	for _, img := range listing.Images {
		if u, err := url.Parse(img); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			thumbnail = &discordEmbedImage{URL: img}
			break
		}
	}

	imageCount := len(listing.Images)
	return discordEmbed{
		Title:       title,
		Description: listing.Description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Color:       colorListing,
		Thumbnail:   thumbnail,
		Footer:      discordEmbedFooter{Text: fmt.Sprintf("%s · %d image(s)", publicID, imageCount)},
	}
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the status is not retryable.
func retryBackoff(resp *http.Response, attempt int, base time.Duration) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return util.Backoff(base, attempt)
	case resp.StatusCode >= 500:
		return util.Backoff(base, attempt)
	}
	return 0
}

func (c *Client) sendAndGetMessageID(ctx context.Context, embed discordEmbed) (string, error) {
	payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var msgResponse discordMessageResponse
			if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
				return "", err
			}
			return msgResponse.ID, nil
		}

		wait := retryBackoff(resp, attempt, c.backoffBase)
		if wait == 0 || attempt >= maxRetries {
			return "", fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		slog.Warn("Discord webhook failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}
