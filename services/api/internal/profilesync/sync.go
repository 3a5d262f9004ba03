// Package profilesync copies identity-provider profile data into the local
// user record.
package profilesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyhub/internal/idtoken"
	"studyhub/pkg/domain"
	"studyhub/services/api/internal/identity"
)

// Profile is the provider-side view of a user at one sign-in.
type Profile struct {
	UserID        string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	Provider      string
	CreatedAt     time.Time
	LastSignInAt  time.Time
}

// UserStore is the slice of the document store the synchronizer writes to.
type UserStore interface {
	UpsertUser(ctx context.Context, u domain.User) error
}

// ProviderTag returns the first linked identity, or "email" when none.
func ProviderTag(providerIDs []string) string {
	for _, id := range providerIDs {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return domain.DefaultAuthProvider
}

func ProfileFromAccount(a identity.Account) Profile {
	return Profile{
		UserID:        a.UID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		PhotoURL:      a.PhotoURL,
		EmailVerified: a.EmailVerified,
		Provider:      ProviderTag(a.ProviderIDs),
		CreatedAt:     a.CreatedAt,
		LastSignInAt:  a.LastSignInAt,
	}
}

// ProfileFromClaims builds a profile from a verified ID token when no account
// lookup is available. Only the sign-in time is known, so it doubles as the
// creation time for a first sighting.
func ProfileFromClaims(c idtoken.Claims) Profile {
	var signIn time.Time
	if c.AuthTime > 0 {
		signIn = time.Unix(c.AuthTime, 0).UTC()
	}
	return Profile{
		UserID:        c.UserID(),
		Email:         c.Email,
		DisplayName:   c.Name,
		PhotoURL:      c.Picture,
		EmailVerified: c.EmailVerified,
		Provider:      ProviderTag([]string{c.Firebase.SignInProvider}),
		CreatedAt:     signIn,
		LastSignInAt:  signIn,
	}
}

// Synchronizer upserts profiles keyed by provider user id.
type Synchronizer struct {
	users UserStore
	now   func() time.Time
}

func New(users UserStore) *Synchronizer {
	return &Synchronizer{users: users, now: time.Now}
}

// Sync creates the user on first sight and refreshes the profile fields on
// later calls. The stored creation time is never replaced. The returned error
// is for logging: callers complete the authentication flow regardless.
func (s *Synchronizer) Sync(ctx context.Context, p Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("profile sync: user id is required")
	}
	now := s.now().UTC()
	u := domain.User{
		ID:            p.UserID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		PhotoURL:      p.PhotoURL,
		EmailVerified: p.EmailVerified,
		AuthProvider:  p.Provider,
		CreatedAt:     p.CreatedAt,
		LastSignInAt:  p.LastSignInAt,
		UpdatedAt:     now,
	}
	if u.AuthProvider == "" {
		u.AuthProvider = domain.DefaultAuthProvider
	}
	if u.LastSignInAt.IsZero() {
		u.LastSignInAt = now
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = u.LastSignInAt
	}
	if err := s.users.UpsertUser(ctx, u); err != nil {
		return fmt.Errorf("profile sync %s: %w", p.UserID, err)
	}
	return nil
}

// User returns the record Sync would write, for callers that need a user
// value when the store is unavailable.
func (p Profile) User() domain.User {
	u := domain.User{
		ID:            p.UserID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		PhotoURL:      p.PhotoURL,
		EmailVerified: p.EmailVerified,
		AuthProvider:  p.Provider,
		CreatedAt:     p.CreatedAt,
		LastSignInAt:  p.LastSignInAt,
	}
	if u.AuthProvider == "" {
		u.AuthProvider = domain.DefaultAuthProvider
	}
	return u
}
