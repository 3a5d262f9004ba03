package identity

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"studyhub/internal/idtoken"
)

// Context is the process-wide identity handle. It is built once at startup
// and shared by every request; the first request to need token verification
// loads the signing keys, concurrent first callers wait on that same load,
// and a failed load is retried by the next caller.
type Context struct {
	provider Provider
	verifier *idtoken.Verifier

	ready atomic.Bool
	group singleflight.Group
	inits atomic.Int32
}

func NewContext(provider Provider, verifier *idtoken.Verifier) (*Context, error) {
	if provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if verifier == nil {
		return nil, errors.New("id token verifier is required")
	}
	return &Context{provider: provider, verifier: verifier}, nil
}

func (c *Context) Provider() Provider { return c.provider }

// Init is idempotent.
func (c *Context) Init(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	_, err, _ := c.group.Do("init", func() (any, error) {
		if c.ready.Load() {
			return nil, nil
		}
		c.inits.Add(1)
		if err := c.verifier.Warm(ctx); err != nil {
			return nil, err
		}
		c.ready.Store(true)
		return nil, nil
	})
	return err
}

// Initialized reports whether Init has completed successfully.
func (c *Context) Initialized() bool { return c.ready.Load() }

// Verify checks an ID token, initializing the handle first if needed.
func (c *Context) Verify(ctx context.Context, token string) (idtoken.Claims, error) {
	if err := c.Init(ctx); err != nil {
		return idtoken.Claims{}, err
	}
	return c.verifier.Verify(ctx, token)
}
