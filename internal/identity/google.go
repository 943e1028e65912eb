// Package identity signs the user in with Google and keeps the profile
// cached locally so later launches skip the prompt.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pauljones0/komsu/internal/models"
)

const userInfoURL = "https://www.googleapis.com/userinfo/v2/me"

// GoogleProvider runs the OAuth 2.0 device flow against Google and fetches
// the account profile.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

// PromptInteractiveSignIn asks the operator to approve the sign-in on another
// device and blocks until Google issues a token or ctx ends.
func (g *GoogleProvider) PromptInteractiveSignIn(ctx context.Context) (*oauth2.Token, error) {
	if g.config.ClientID == "" {
		return nil, fmt.Errorf("google client id not configured: %w", models.ErrNotSignedIn)
	}
	da, err := g.config.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization: %w", err)
	}
	slog.Info("Sign in with Google to continue", "url", da.VerificationURI, "code", da.UserCode)

	token, err := g.config.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device access token: %w", err)
	}
	return token, nil
}

// FetchProfile exchanges an access token for the Google account profile.
func (g *GoogleProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (models.Profile, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return models.Profile{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.Profile{}, fmt.Errorf("fetch user info: status %s, body: %s", resp.Status, string(body))
	}

	var profile models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return models.Profile{}, fmt.Errorf("decode user info: %w", err)
	}
	return profile, nil
}
