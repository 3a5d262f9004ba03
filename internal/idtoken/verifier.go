// Package idtoken verifies identity-provider ID tokens (RS256 over a JWKS
// endpoint) and exposes the profile claims the provider embeds in them.
package idtoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultJWKSURL serves the provider's current signing keys.
	DefaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	issuerPrefix        = "https://securetoken.google.com/"
	defaultLeeway       = 30 * time.Second
	defaultJWKSCacheTTL = time.Hour
)

var (
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid id token")
	errUnknownKey   = errors.New("unknown token key")
)

// Claims are the fields of a verified ID token.
type Claims struct {
	jwt.RegisteredClaims
	Name          string         `json:"name,omitempty"`
	Picture       string         `json:"picture,omitempty"`
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"email_verified,omitempty"`
	AuthTime      int64          `json:"auth_time,omitempty"`
	Firebase      FirebaseClaims `json:"firebase"`
}

type FirebaseClaims struct {
	SignInProvider string              `json:"sign_in_provider,omitempty"`
	Identities     map[string][]string `json:"identities,omitempty"`
}

// UserID returns the token subject.
func (c Claims) UserID() string { return strings.TrimSpace(c.Subject) }

type Config struct {
	ProjectID  string
	JWKSURL    string
	Leeway     time.Duration
	HTTPClient *http.Client
}

// Verifier validates ID tokens for one project. Keys are fetched lazily on
// first use and refreshed on expiry or an unknown kid; concurrent refreshes
// collapse into one request.
type Verifier struct {
	issuer     string
	audience   string
	leeway     time.Duration
	jwksURL    string
	httpClient *http.Client
	now        func() time.Time

	group      singleflight.Group
	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	keysExpire time.Time
}

func NewVerifier(cfg Config) (*Verifier, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errors.New("id token verifier requires a project id")
	}
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		jwksURL = DefaultJWKSURL
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Verifier{
		issuer:     issuerPrefix + project,
		audience:   project,
		leeway:     leeway,
		jwksURL:    jwksURL,
		httpClient: client,
		now:        time.Now,
	}, nil
}

// Issuer is the only accepted "iss" value.
func (v *Verifier) Issuer() string { return v.issuer }

// Warm loads the key set if it is not cached yet.
func (v *Verifier) Warm(ctx context.Context) error {
	if !v.keysExpired() {
		return nil
	}
	return v.refresh(ctx)
}

// Verify checks signature, issuer, audience, expiry and issued-at, and
// requires a non-empty subject.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if v.keysExpired() {
		if err := v.refresh(ctx); err != nil {
			return Claims{}, err
		}
	}
	claims, err := v.parse(token)
	if errors.Is(err, errUnknownKey) {
		if rerr := v.refresh(ctx); rerr != nil {
			return Claims{}, rerr
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID() == "" {
		return Claims{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) parse(token string) (Claims, error) {
	var claims Claims
	keys := v.snapshot()
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, errors.New("token not valid")
	}
	return claims, nil
}

func (v *Verifier) keysExpired() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys) == 0 || v.now().After(v.keysExpire)
}

func (v *Verifier) snapshot() map[string]*rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.keys)
}

func (v *Verifier) refresh(ctx context.Context) error {
	_, err, _ := v.group.Do("jwks", func() (any, error) {
		return nil, v.fetch(ctx)
	})
	return err
}

func (v *Verifier) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		kid := strings.TrimSpace(k.Kid)
		if !strings.EqualFold(strings.TrimSpace(k.Kty), "RSA") || kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	ttl := parseCacheMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	v.mu.Lock()
	v.keys = keys
	v.keysExpire = v.now().Add(ttl)
	v.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func parseCacheMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := time.ParseDuration(strings.TrimSpace(raw) + "s")
		if err != nil {
			return 0
		}
		return secs
	}
	return 0
}
