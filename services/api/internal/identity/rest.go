package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Identity Toolkit v1 endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// RESTProvider calls the Identity Toolkit REST API.
type RESTProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRESTProvider(baseURL, apiKey string, httpClient *http.Client) (*RESTProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("identity api key is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTProvider{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}, nil
}

func (p *RESTProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	payload := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp tokenResponse
	if err := p.doJSON(ctx, "accounts:signUp", payload, &resp); err != nil {
		return Session{}, err
	}
	return resp.session(), nil
}

func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	payload := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	var resp tokenResponse
	if err := p.doJSON(ctx, "accounts:signInWithPassword", payload, &resp); err != nil {
		return Session{}, err
	}
	return resp.session(), nil
}

// SignInWithIdP exchanges a federated credential (e.g. a Google ID token) for
// a provider session, creating the account on first use.
func (p *RESTProvider) SignInWithIdP(ctx context.Context, providerID, idpToken, requestURI string) (Session, error) {
	if strings.TrimSpace(requestURI) == "" {
		requestURI = "http://localhost"
	}
	postBody := url.Values{"id_token": {idpToken}, "providerId": {providerID}}.Encode()
	payload := map[string]any{
		"postBody":          postBody,
		"requestUri":        requestURI,
		"returnSecureToken": true,
	}
	var resp tokenResponse
	if err := p.doJSON(ctx, "accounts:signInWithIdp", payload, &resp); err != nil {
		return Session{}, err
	}
	return resp.session(), nil
}

func (p *RESTProvider) UpdateProfile(ctx context.Context, idToken, displayName, photoURL string) error {
	payload := map[string]any{"idToken": idToken, "returnSecureToken": false}
	if displayName != "" {
		payload["displayName"] = displayName
	}
	if photoURL != "" {
		payload["photoUrl"] = photoURL
	}
	return p.doJSON(ctx, "accounts:update", payload, nil)
}

func (p *RESTProvider) Lookup(ctx context.Context, idToken string) (Account, error) {
	var resp lookupResponse
	if err := p.doJSON(ctx, "accounts:lookup", map[string]any{"idToken": idToken}, &resp); err != nil {
		return Account{}, err
	}
	if len(resp.Users) == 0 {
		return Account{}, &APIError{Status: http.StatusBadRequest, Code: "USER_NOT_FOUND"}
	}
	return resp.Users[0].account(), nil
}

func (p *RESTProvider) doJSON(ctx context.Context, method string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := p.baseURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity provider %s: decode response: %w", method, err)
	}
	return nil
}

// Error bodies look like {"error":{"code":400,"message":"WEAK_PASSWORD : detail"}}.
func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := strings.TrimSpace(body.Error.Message)
	if msg == "" {
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
	}
	code, detail, found := strings.Cut(msg, ":")
	code = strings.TrimSpace(code)
	if !found {
		detail = code
	}
	return &APIError{Status: resp.StatusCode, Code: code, Message: strings.TrimSpace(detail)}
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (r tokenResponse) session() Session {
	secs, _ := strconv.ParseInt(strings.TrimSpace(r.ExpiresIn), 10, 64)
	return Session{
		UserID:       r.LocalID,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    time.Duration(secs) * time.Second,
	}
}

type lookupResponse struct {
	Users []lookupUser `json:"users"`
}

type lookupUser struct {
	LocalID          string `json:"localId"`
	Email            string `json:"email"`
	DisplayName      string `json:"displayName"`
	PhotoURL         string `json:"photoUrl"`
	EmailVerified    bool   `json:"emailVerified"`
	CreatedAt        string `json:"createdAt"`
	LastLoginAt      string `json:"lastLoginAt"`
	ProviderUserInfo []struct {
		ProviderID string `json:"providerId"`
	} `json:"providerUserInfo"`
}

func (u lookupUser) account() Account {
	acct := Account{
		UID:           u.LocalID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoURL,
		EmailVerified: u.EmailVerified,
		CreatedAt:     parseMillis(u.CreatedAt),
		LastSignInAt:  parseMillis(u.LastLoginAt),
	}
	for _, info := range u.ProviderUserInfo {
		if id := strings.TrimSpace(info.ProviderID); id != "" {
			acct.ProviderIDs = append(acct.ProviderIDs, id)
		}
	}
	return acct
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
