package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/validator"
)

// ProfileKey is the local storage key of the cached profile.
const ProfileKey = "@user"

type Provider interface {
	PromptInteractiveSignIn(ctx context.Context) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (models.Profile, error)
}

type Resolver interface {
	Resolve(ctx context.Context, profile models.Profile) (string, error)
}

// KV is the local key-value persistence holding the cached profile.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type Manager struct {
	provider Provider
	resolver Resolver
	kv       KV
	validate *validator.Validator

	mu      sync.Mutex
	session models.Session
}

func NewManager(p Provider, r Resolver, kv KV) *Manager {
	return &Manager{provider: p, resolver: r, kv: kv, validate: validator.New()}
}

// SignIn restores the cached profile or, when there is none, prompts for an
// interactive sign-in, fetches the profile and caches it.
func (m *Manager) SignIn(ctx context.Context) (models.Session, error) {
	profile, ok, err := m.cachedProfile(ctx)
	if err != nil {
		return models.Session{}, err
	}
	if ok {
		slog.Info("Loaded user info from local storage", "email", profile.Email)
	} else {
		profile, err = m.signInInteractive(ctx)
		if err != nil {
			return models.Session{}, err
		}
	}

	uid, err := m.resolver.Resolve(ctx, profile)
	if err != nil {
		return models.Session{}, fmt.Errorf("resolve user id: %w", err)
	}

	session := models.Session{UserID: uid, Profile: profile}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return session, nil
}

func (m *Manager) cachedProfile(ctx context.Context) (models.Profile, bool, error) {
	data, ok, err := m.kv.Get(ctx, ProfileKey)
	if err != nil {
		return models.Profile{}, false, fmt.Errorf("read cached profile: %w", err)
	}
	if !ok {
		return models.Profile{}, false, nil
	}
	var profile models.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		slog.Warn("Discarding unreadable cached profile", "error", err)
		return models.Profile{}, false, nil
	}
	if err := m.validate.ValidateStruct(profile); err != nil {
		slog.Warn("Discarding invalid cached profile", "error", err)
		return models.Profile{}, false, nil
	}
	return profile, true, nil
}

func (m *Manager) signInInteractive(ctx context.Context) (models.Profile, error) {
	token, err := m.provider.PromptInteractiveSignIn(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("sign in: %w", err)
	}
	profile, err := m.provider.FetchProfile(ctx, token)
	if err != nil {
		slog.Error("Failed to fetch user info", "error", err)
		return models.Profile{}, fmt.Errorf("could not fetch user information: %w", err)
	}
	if err := m.validate.ValidateStruct(profile); err != nil {
		return models.Profile{}, err
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return models.Profile{}, err
	}
	if err := m.kv.Set(ctx, ProfileKey, string(data)); err != nil {
		return models.Profile{}, fmt.Errorf("cache profile: %w", err)
	}
	return profile, nil
}

// Session returns the active session, if any.
func (m *Manager) Session() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.session.Valid()
}

// SignOut forgets the session and removes the cached profile.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.session = models.Session{}
	m.mu.Unlock()
	if err := m.kv.Remove(ctx, ProfileKey); err != nil {
		return fmt.Errorf("remove cached profile: %w", err)
	}
	return nil
}
