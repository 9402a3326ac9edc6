// Package auth decides who may bind a session. It never touches session
// state: a rejection returns an error and binds nothing.
package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/teslashibe/pulseai/pkg/profile"
)

var (
	// ErrInvalidEmail is returned when the email is not well formed.
	ErrInvalidEmail = errors.New("auth: invalid email")

	// ErrAccessDenied is returned when the password does not match.
	ErrAccessDenied = errors.New("auth: access denied")

	// ErrInvalidState is returned when an OAuth callback carries an unknown
	// or expired state nonce.
	ErrInvalidState = errors.New("auth: invalid oauth state")

	// ErrNotConfigured is returned when a provider lacks credentials.
	ErrNotConfigured = errors.New("auth: provider not configured")
)

// Notice returns the user-facing text for an authentication error.
func Notice(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrAccessDenied):
		return "Access Denied: Enter correct password!"
	case errors.Is(err, ErrInvalidState):
		return "Sign-in expired, please try again."
	}
	return "Sign-in failed."
}

// Credentials is an email/password login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticator verifies credentials and returns the profile to bind.
type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (*profile.UserProfile, error)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailPrefix accepts any well-formed email whose password is the text
// before the '@'. It is the demo login of the kiosk build.
type EmailPrefix struct {
	profile func() *profile.UserProfile
}

// NewEmailPrefix returns an authenticator that binds the demo operator.
func NewEmailPrefix() *EmailPrefix {
	return &EmailPrefix{profile: profile.MockUser}
}

// Authenticate checks c.
func (a *EmailPrefix) Authenticate(ctx context.Context, c Credentials) (*profile.UserProfile, error) {
	if !emailPattern.MatchString(c.Email) {
		return nil, ErrInvalidEmail
	}
	prefix, _, _ := strings.Cut(c.Email, "@")
	if c.Password != prefix {
		return nil, ErrAccessDenied
	}
	return a.profile(), nil
}

// Verify EmailPrefix implements Authenticator at compile time.
var _ Authenticator = (*EmailPrefix)(nil)
