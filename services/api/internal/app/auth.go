package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyhub/internal/idtoken"
	"studyhub/internal/util"
	"studyhub/pkg/domain"
	"studyhub/pkg/limits"
	"studyhub/services/api/internal/identity"
	"studyhub/services/api/internal/profilesync"
)

// AuthResult is returned by every sign-in flow.
type AuthResult struct {
	User    domain.User      `json:"user"`
	Session identity.Session `json:"-"`
}

// SignUp creates the provider account, sets its display name, then syncs the
// local profile. A failed sync does not fail the sign-up.
func (a *App) SignUp(ctx context.Context, email, password, displayName string) (AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	displayName = strings.TrimSpace(displayName)
	if err := checkCredentials(email, password); err != nil {
		return AuthResult{}, err
	}
	provider := a.identity.Provider()
	session, err := provider.SignUp(ctx, email, password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("sign up: %w", err)
	}
	if displayName != "" {
		if err := provider.UpdateProfile(ctx, session.IDToken, displayName, ""); err != nil {
			util.LoggerFromContext(ctx).Warn("set display name failed", "user_id", session.UserID, "err", err)
		}
	}
	profile := a.lookupProfile(ctx, session, email)
	if profile.DisplayName == "" {
		profile.DisplayName = displayName
	}
	a.syncProfile(ctx, profile)
	return AuthResult{User: profile.User(), Session: session}, nil
}

// Login signs in with email and password.
func (a *App) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := checkCredentials(email, password); err != nil {
		return AuthResult{}, err
	}
	session, err := a.identity.Provider().SignIn(ctx, email, password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("login: %w", err)
	}
	profile := a.lookupProfile(ctx, session, email)
	a.syncProfile(ctx, profile)
	return AuthResult{User: profile.User(), Session: session}, nil
}

// LoginWithIdP signs in with a federated credential such as a Google ID token.
func (a *App) LoginWithIdP(ctx context.Context, providerID, idpToken, requestURI string) (AuthResult, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		providerID = "google.com"
	}
	if strings.TrimSpace(idpToken) == "" {
		return AuthResult{}, &limits.ValidationError{Field: "idToken", Reason: "required"}
	}
	session, err := a.identity.Provider().SignInWithIdP(ctx, providerID, idpToken, requestURI)
	if err != nil {
		return AuthResult{}, fmt.Errorf("federated login: %w", err)
	}
	profile := a.lookupProfile(ctx, session, "")
	if profile.Provider == domain.DefaultAuthProvider {
		profile.Provider = providerID
	}
	a.syncProfile(ctx, profile)
	return AuthResult{User: profile.User(), Session: session}, nil
}

// Authenticate verifies an ID token and returns the caller. A caller with no
// local record yet gets one synced from the token claims; if that sync fails
// the claims-built user is still returned.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	claims, err := a.identity.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, idtoken.ErrInvalidToken) {
			return domain.User{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	user, ok, err := a.store.GetUser(ctx, claims.UserID())
	if err == nil && ok {
		return user, nil
	}
	if err != nil {
		util.LoggerFromContext(ctx).Warn("load user profile failed", "user_id", claims.UserID(), "err", err)
	}
	profile := profilesync.ProfileFromClaims(claims)
	if !ok && err == nil {
		a.syncProfile(ctx, profile)
	}
	return profile.User(), nil
}

// lookupProfile reads the provider account behind session. On failure it
// falls back to what the session itself tells us.
func (a *App) lookupProfile(ctx context.Context, session identity.Session, email string) profilesync.Profile {
	acct, err := a.identity.Provider().Lookup(ctx, session.IDToken)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("account lookup failed", "user_id", session.UserID, "err", err)
		now := a.timestamp()
		return profilesync.Profile{
			UserID:       session.UserID,
			Email:        email,
			Provider:     domain.DefaultAuthProvider,
			CreatedAt:    now,
			LastSignInAt: now,
		}
	}
	if acct.UID == "" {
		acct.UID = session.UserID
	}
	return profilesync.ProfileFromAccount(acct)
}

// syncProfile is best-effort: the error is logged and dropped.
func (a *App) syncProfile(ctx context.Context, p profilesync.Profile) {
	if err := a.profiles.Sync(ctx, p); err != nil {
		util.LoggerFromContext(ctx).Warn("profile sync failed", "user_id", p.UserID, "err", err)
	}
}

func checkCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return &limits.ValidationError{Field: "email", Reason: "a valid email is required"}
	}
	if password == "" {
		return &limits.ValidationError{Field: "password", Reason: "required"}
	}
	return nil
}
