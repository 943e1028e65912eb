package models

// Profile is the Google userinfo v2 payload, cached locally between launches.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email" validate:"required,email"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty" validate:"omitempty,url"`
	VerifiedEmail bool   `json:"verified_email"`
}

// Session identifies the signed-in user. Every user-scoped store path is
// derived from UserID.
type Session struct {
	UserID  string
	Profile Profile
}

func (s Session) Valid() bool {
	return s.UserID != ""
}
