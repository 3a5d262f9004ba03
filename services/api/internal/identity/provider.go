// Package identity is the boundary to the external identity provider: a REST
// client for account operations and the process-wide handle used to verify
// ID tokens.
package identity

import (
	"context"
	"errors"
	"time"
)

// Provider performs account operations at the identity provider.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignInWithIdP(ctx context.Context, providerID, idpToken, requestURI string) (Session, error)
	UpdateProfile(ctx context.Context, idToken, displayName, photoURL string) error
	Lookup(ctx context.Context, idToken string) (Account, error)
}

// Session is the token set returned by a successful sign-in.
type Session struct {
	UserID       string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Account is the provider-side user record.
type Account struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	// ProviderIDs lists linked identities in provider order, e.g. "google.com".
	ProviderIDs  []string
	CreatedAt    time.Time
	LastSignInAt time.Time
}

// Provider error codes callers branch on.
const (
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
	CodeEmailNotFound      = "EMAIL_NOT_FOUND"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeUserDisabled       = "USER_DISABLED"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeInvalidIDToken     = "INVALID_ID_TOKEN"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS_TRY_LATER"
)

// APIError is an error response from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" && e.Message != e.Code {
		return "identity provider: " + e.Code + ": " + e.Message
	}
	return "identity provider: " + e.Code
}

// HasCode reports whether err is an *APIError with one of codes.
func HasCode(err error, codes ...string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.Code == c {
			return true
		}
	}
	return false
}

// IsCredentialError reports whether err means the caller presented bad or
// unusable credentials rather than the provider failing.
func IsCredentialError(err error) bool {
	return HasCode(err, CodeInvalidCredentials, CodeEmailNotFound, CodeInvalidPassword, CodeUserDisabled, CodeInvalidIDToken)
}
