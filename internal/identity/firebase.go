package identity

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/auth"

	"github.com/pauljones0/komsu/internal/models"
)

type userLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
}

// FirebaseResolver maps a Google profile to the Firebase user id that owns
// the user's store namespace.
type FirebaseResolver struct {
	users    userLookup
	notFound func(error) bool
}

func NewFirebaseResolver(client *auth.Client) *FirebaseResolver {
	return &FirebaseResolver{users: client, notFound: auth.IsUserNotFound}
}

// Resolve returns the Firebase uid for profile, or the Google account id when
// no Firebase user has that email yet.
func (r *FirebaseResolver) Resolve(ctx context.Context, profile models.Profile) (string, error) {
	user, err := r.users.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		if r.notFound(err) {
			slog.Info("No Firebase user for email, using Google account id", "email", profile.Email)
			return fallbackUID(profile)
		}
		return "", fmt.Errorf("look up firebase user: %w", err)
	}
	return user.UID, nil
}

// ProfileResolver uses the Google account id directly.
type ProfileResolver struct{}

func (ProfileResolver) Resolve(_ context.Context, profile models.Profile) (string, error) {
	return fallbackUID(profile)
}

func fallbackUID(profile models.Profile) (string, error) {
	if profile.ID == "" {
		return "", fmt.Errorf("profile has no account id: %w", models.ErrNotSignedIn)
	}
	return profile.ID, nil
}
