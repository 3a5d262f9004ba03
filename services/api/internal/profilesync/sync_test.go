package profilesync

import (
	"context"
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"studyhub/internal/idtoken"
	"studyhub/pkg/store"
	"studyhub/services/api/internal/identity"
)

func TestProviderTag(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, "email"},
		{[]string{}, "email"},
		{[]string{" ", "google.com"}, "google.com"},
		{[]string{"google.com", "password"}, "google.com"},
		{[]string{"password"}, "password"},
	}
	for _, tc := range tests {
		if got := ProviderTag(tc.in); got != tc.want {
			t.Errorf("ProviderTag(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSyncCreatesThenRefreshesWithoutTouchingCreation(t *testing.T) {
	users := store.NewMemoryStore()
	s := New(users)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := ProfileFromAccount(identity.Account{
		UID:          "uid-1",
		DisplayName:  "Ada",
		CreatedAt:    created,
		LastSignInAt: created,
	})
	if err := s.Sync(ctx, first); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	got, ok, _ := users.GetUser(ctx, "uid-1")
	if !ok || got.AuthProvider != "email" || got.DisplayName != "Ada" {
		t.Fatalf("unexpected first record: %+v", got)
	}

	later := created.Add(72 * time.Hour)
	second := ProfileFromAccount(identity.Account{
		UID:           "uid-1",
		DisplayName:   "Ada Lovelace",
		PhotoURL:      "https://img/ada.png",
		EmailVerified: true,
		ProviderIDs:   []string{"google.com"},
		CreatedAt:     later,
		LastSignInAt:  later,
	})
	if err := s.Sync(ctx, second); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	got, _, _ = users.GetUser(ctx, "uid-1")
	if got.DisplayName != "Ada Lovelace" || got.PhotoURL == "" || !got.EmailVerified || got.AuthProvider != "google.com" {
		t.Fatalf("profile not refreshed: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("creation time changed to %v", got.CreatedAt)
	}
	if !got.LastSignInAt.Equal(later) {
		t.Fatalf("last sign-in = %v, want %v", got.LastSignInAt, later)
	}
}

func TestSyncReturnsStoreErrors(t *testing.T) {
	users := store.NewMemoryStore()
	outage := errors.New("connection refused")
	users.FailUserWrites(outage)
	if err := New(users).Sync(context.Background(), Profile{UserID: "uid-1"}); !errors.Is(err, outage) {
		t.Fatalf("expected wrapped outage, got %v", err)
	}
}

func TestSyncRequiresUserID(t *testing.T) {
	if err := New(store.NewMemoryStore()).Sync(context.Background(), Profile{}); err == nil {
		t.Fatalf("expected error without user id")
	}
}

func TestSyncFillsMissingTimestamps(t *testing.T) {
	users := store.NewMemoryStore()
	s := New(users)
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	if err := s.Sync(context.Background(), Profile{UserID: "uid-1"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got, _, _ := users.GetUser(context.Background(), "uid-1")
	if !got.CreatedAt.Equal(fixed) || !got.LastSignInAt.Equal(fixed) {
		t.Fatalf("timestamps not defaulted: %+v", got)
	}
}

func TestProfileFromClaims(t *testing.T) {
	c := idtoken.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "uid-9"},
		Name:             "Grace",
		Picture:          "https://img/grace.png",
		Email:            "grace@example.com",
		EmailVerified:    true,
		AuthTime:         1700000000,
		Firebase:         idtoken.FirebaseClaims{SignInProvider: "google.com"},
	}
	p := ProfileFromClaims(c)
	if p.UserID != "uid-9" || p.Provider != "google.com" || p.DisplayName != "Grace" || !p.EmailVerified {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if !p.LastSignInAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected sign-in time %v", p.LastSignInAt)
	}

	c.Firebase.SignInProvider = ""
	if got := ProfileFromClaims(c).Provider; got != "email" {
		t.Fatalf("missing provider should default to email, got %q", got)
	}
}
