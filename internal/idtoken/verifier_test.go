package idtoken

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testProject = "studyhub-test"

type jwksFixture struct {
	server  *httptest.Server
	fetches atomic.Int32
	mu      sync.Mutex
	keys    map[string]*rsa.PrivateKey
	active  string
	delay   time.Duration
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	f := &jwksFixture{keys: map[string]*rsa.PrivateKey{}}
	f.addKey(t, "kid-1")
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		f.mu.Lock()
		key := f.keys[f.active]
		kid := f.active
		f.mu.Unlock()
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK(kid, key.PublicKey)}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) addKey(t *testing.T, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f.mu.Lock()
	f.keys[kid] = key
	f.active = kid
	f.mu.Unlock()
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	f.mu.Lock()
	key := f.keys[kid]
	f.mu.Unlock()
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    issuerPrefix + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		Name:          "Ada Lovelace",
		Picture:       "https://img.example.com/ada.png",
		Email:         "ada@example.com",
		EmailVerified: true,
		AuthTime:      now.Add(-time.Minute).Unix(),
		Firebase:      FirebaseClaims{SignInProvider: "google.com"},
	}
}

func newVerifier(t *testing.T, f *jwksFixture) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{ProjectID: testProject, JWKSURL: f.server.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestNewVerifierRequiresProject(t *testing.T) {
	if _, err := NewVerifier(Config{JWKSURL: "http://localhost"}); err == nil {
		t.Fatalf("expected missing project id to fail")
	}
}

func TestVerifyExposesProfileClaims(t *testing.T) {
	f := newJWKSFixture(t)
	v := newVerifier(t, f)
	if f.fetches.Load() != 0 {
		t.Fatalf("keys must be loaded lazily")
	}

	got, err := v.Verify(context.Background(), f.sign(t, "kid-1", validClaims("uid-1")))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID() != "uid-1" || got.Email != "ada@example.com" || !got.EmailVerified {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if got.Name != "Ada Lovelace" || got.Picture == "" || got.Firebase.SignInProvider != "google.com" || got.AuthTime == 0 {
		t.Fatalf("profile claims missing: %+v", got)
	}
}

func TestVerifyRejectsWrongAudienceAndIssuer(t *testing.T) {
	f := newJWKSFixture(t)
	v := newVerifier(t, f)

	wrongAud := validClaims("uid-1")
	wrongAud.Audience = jwt.ClaimStrings{"other-project"}
	wrongIss := validClaims("uid-1")
	wrongIss.Issuer = "https://securetoken.google.com/other-project"
	expired := validClaims("uid-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSub := validClaims("")

	for name, c := range map[string]Claims{"audience": wrongAud, "issuer": wrongIss, "expired": expired, "subject": noSub} {
		if _, err := v.Verify(context.Background(), f.sign(t, "kid-1", c)); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := v.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRefreshesOnUnknownKid(t *testing.T) {
	f := newJWKSFixture(t)
	v := newVerifier(t, f)
	ctx := context.Background()

	if _, err := v.Verify(ctx, f.sign(t, "kid-1", validClaims("uid-1"))); err != nil {
		t.Fatalf("verify with kid-1: %v", err)
	}
	f.addKey(t, "kid-2")
	if _, err := v.Verify(ctx, f.sign(t, "kid-2", validClaims("uid-2"))); err != nil {
		t.Fatalf("verify after rotation: %v", err)
	}
	if f.fetches.Load() != 2 {
		t.Fatalf("fetches = %d, want 2", f.fetches.Load())
	}
}

func TestConcurrentColdVerifiesShareOneFetch(t *testing.T) {
	f := newJWKSFixture(t)
	f.delay = 200 * time.Millisecond
	v := newVerifier(t, f)
	token := f.sign(t, "kid-1", validClaims("uid-1"))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
	}
	if n := f.fetches.Load(); n >= workers {
		t.Fatalf("expected collapsed key fetches, got %d", n)
	}
}

func TestParseCacheMaxAge(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"public, max-age=19602, must-revalidate", 19602 * time.Second},
		{"no-cache", 0},
		{"max-age=bad", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := parseCacheMaxAge(tc.in); got != tc.want {
			t.Errorf("parseCacheMaxAge(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func toJWK(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
