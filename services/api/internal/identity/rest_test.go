package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedCall struct {
	Path string
	Key  string
	Body map[string]any
}

type callLog struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (l *callLog) first() recordedCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[0]
}

func newToolkitServer(t *testing.T, handle func(method string, body map[string]any) (int, any)) (*RESTProvider, *callLog) {
	t.Helper()
	calls := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		method := strings.TrimPrefix(r.URL.Path, "/v1/")
		calls.mu.Lock()
		calls.calls = append(calls.calls, recordedCall{Path: method, Key: r.URL.Query().Get("key"), Body: body})
		calls.mu.Unlock()
		status, resp := handle(method, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	p, err := NewRESTProvider(srv.URL+"/v1", "test-key", srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p, calls
}

func TestNewRESTProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewRESTProvider("", " ", nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestSignUpReturnsSession(t *testing.T) {
	p, calls := newToolkitServer(t, func(method string, body map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"localId": "uid-1", "idToken": "id-tok", "refreshToken": "ref-tok", "expiresIn": "3600",
		}
	})
	s, err := p.SignUp(context.Background(), "ada@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if s.UserID != "uid-1" || s.IDToken != "id-tok" || s.RefreshToken != "ref-tok" || s.ExpiresIn != time.Hour {
		t.Fatalf("unexpected session: %+v", s)
	}
	got := calls.first()
	if got.Path != "accounts:signUp" || got.Key != "test-key" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if got.Body["email"] != "ada@example.com" || got.Body["returnSecureToken"] != true {
		t.Fatalf("unexpected body: %v", got.Body)
	}
}

func TestSignInWithIdPEncodesPostBody(t *testing.T) {
	p, calls := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"localId": "uid-2", "idToken": "tok", "expiresIn": "60"}
	})
	if _, err := p.SignInWithIdP(context.Background(), "google.com", "google-id-token", ""); err != nil {
		t.Fatalf("sign in with idp: %v", err)
	}
	got := calls.first()
	postBody, _ := got.Body["postBody"].(string)
	vals, err := url.ParseQuery(postBody)
	if err != nil {
		t.Fatalf("parse post body: %v", err)
	}
	if vals.Get("id_token") != "google-id-token" || vals.Get("providerId") != "google.com" {
		t.Fatalf("unexpected post body %q", postBody)
	}
	if got.Body["requestUri"] != "http://localhost" {
		t.Fatalf("expected default request uri, got %v", got.Body["requestUri"])
	}
}

func TestLookupMapsAccount(t *testing.T) {
	p, _ := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"users": []map[string]any{{
			"localId":       "uid-1",
			"email":         "ada@example.com",
			"displayName":   "Ada",
			"photoUrl":      "https://img/ada.png",
			"emailVerified": true,
			"createdAt":     "1700000000000",
			"lastLoginAt":   "1700000500000",
			"providerUserInfo": []map[string]any{
				{"providerId": "google.com"},
				{"providerId": "password"},
			},
		}}}
	})
	acct, err := p.Lookup(context.Background(), "tok")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if acct.UID != "uid-1" || acct.DisplayName != "Ada" || !acct.EmailVerified {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if len(acct.ProviderIDs) != 2 || acct.ProviderIDs[0] != "google.com" {
		t.Fatalf("unexpected providers: %v", acct.ProviderIDs)
	}
	if !acct.CreatedAt.Equal(time.UnixMilli(1700000000000)) || !acct.LastSignInAt.Equal(time.UnixMilli(1700000500000)) {
		t.Fatalf("unexpected timestamps: %v %v", acct.CreatedAt, acct.LastSignInAt)
	}
}

func TestUpdateProfileSendsDisplayName(t *testing.T) {
	p, calls := newToolkitServer(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"localId": "uid-1"}
	})
	if err := p.UpdateProfile(context.Background(), "tok", "Ada", ""); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	got := calls.first()
	if got.Path != "accounts:update" || got.Body["displayName"] != "Ada" || got.Body["idToken"] != "tok" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if _, ok := got.Body["photoUrl"]; ok {
		t.Fatalf("empty photo url must not be sent")
	}
}

func TestProviderErrorsDecodeToAPIError(t *testing.T) {
	tests := []struct {
		message  string
		wantCode string
		wantMsg  string
	}{
		{"EMAIL_EXISTS", CodeEmailExists, "EMAIL_EXISTS"},
		{"WEAK_PASSWORD : Password should be at least 6 characters", CodeWeakPassword, "Password should be at least 6 characters"},
		{"INVALID_LOGIN_CREDENTIALS", CodeInvalidCredentials, "INVALID_LOGIN_CREDENTIALS"},
	}
	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			p, _ := newToolkitServer(t, func(string, map[string]any) (int, any) {
				return http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": tc.message}}
			})
			_, err := p.SignIn(context.Background(), "a@b.c", "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T %v", err, err)
			}
			if apiErr.Code != tc.wantCode || apiErr.Message != tc.wantMsg || apiErr.Status != http.StatusBadRequest {
				t.Fatalf("unexpected api error: %+v", apiErr)
			}
			if !HasCode(err, tc.wantCode) {
				t.Fatalf("HasCode should match %s", tc.wantCode)
			}
		})
	}
}

func TestIsCredentialError(t *testing.T) {
	if !IsCredentialError(&APIError{Code: CodeInvalidCredentials}) {
		t.Fatalf("invalid credentials should be a credential error")
	}
	if IsCredentialError(&APIError{Code: CodeTooManyAttempts}) {
		t.Fatalf("throttling is not a credential error")
	}
	if IsCredentialError(errors.New("dial tcp: refused")) {
		t.Fatalf("transport errors are not credential errors")
	}
}
