package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"studyhub/internal/idtoken"
	"studyhub/pkg/domain"
	"studyhub/pkg/limits"
	"studyhub/pkg/store"
	"studyhub/services/api/internal/blobs"
	"studyhub/services/api/internal/identity"
	"studyhub/services/api/internal/profilesync"
	"studyhub/services/api/internal/quota"
)

// Identity is what the application needs from the identity boundary.
// *identity.Context implements it.
type Identity interface {
	Provider() identity.Provider
	Verify(ctx context.Context, token string) (idtoken.Claims, error)
}

// Config holds the collaborators of the application service.
type Config struct {
	Store    store.Store
	Identity Identity
	Blobs    *blobs.Manager
	Limits   limits.Limits
	// DownloadURLExpiry bounds presigned note links. Defaults to 15 minutes.
	DownloadURLExpiry time.Duration
	// PendingNoteTTL is how long a note may stay without its file before the
	// sweep releases it. Defaults to one hour.
	PendingNoteTTL time.Duration
}

// App implements the study-hub use cases on top of the document store, the
// object store and the identity provider.
type App struct {
	store    store.Store
	identity Identity
	blobs    *blobs.Manager
	limits   limits.Limits
	quota    *quota.Enforcer
	profiles *profilesync.Synchronizer

	downloadExpiry time.Duration
	pendingTTL     time.Duration
	now            func() time.Time
	newID          func() string
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob manager is required")
	}
	l := cfg.Limits.WithDefaults()
	if err := l.Validate(); err != nil {
		return nil, err
	}
	expiry := cfg.DownloadURLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	pendingTTL := cfg.PendingNoteTTL
	if pendingTTL <= 0 {
		pendingTTL = time.Hour
	}
	return &App{
		store:          cfg.Store,
		identity:       cfg.Identity,
		blobs:          cfg.Blobs,
		limits:         l,
		quota:          quota.NewEnforcer(cfg.Store, l),
		profiles:       profilesync.New(cfg.Store),
		downloadExpiry: expiry,
		pendingTTL:     pendingTTL,
		now:            time.Now,
		newID:          uuid.NewString,
	}, nil
}

// Limits returns the ceilings in force.
func (a *App) Limits() limits.Limits { return a.limits }

// ListVersionUpdates returns the changelog, newest first.
func (a *App) ListVersionUpdates(ctx context.Context) ([]domain.VersionUpdate, error) {
	items, err := a.store.ListVersionUpdates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list version updates: %w", err)
	}
	return items, nil
}

// guarded maps a lost insert race onto the error the pre-checks would have
// returned: the quota error, or a missing subject when it was deleted
// concurrently.
func (a *App) guarded(kind domain.ResourceKind, err error) error {
	switch {
	case errors.Is(err, store.ErrCeilingReached):
		return a.quota.Exceeded(kind)
	case errors.Is(err, store.ErrNotFound):
		return ErrSubjectNotFound
	}
	return err
}

func (a *App) timestamp() time.Time { return a.now().UTC() }
