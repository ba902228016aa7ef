package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// refreshMargin is how long before expiry a cached token is refreshed
const refreshMargin = 5 * time.Minute

// TokenSource caches a client-credentials access token for the wallet rail.
// It refreshes early and collapses concurrent refreshes into a single
// request so a token expiry cannot stampede the identity endpoint.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	group  singleflight.Group
}

// NewTokenSource creates a TokenSource for the given identity endpoint
func NewTokenSource(tokenURL, clientID, clientSecret string, client *http.Client) *TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
	}
}

// Token returns a valid access token, fetching or refreshing as needed
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.token != "" && time.Now().Before(ts.expiry.Add(-refreshMargin)) {
		token := ts.token
		ts.mu.Unlock()
		return token, nil
	}
	ts.mu.Unlock()

	v, err, _ := ts.group.Do("token", func() (interface{}, error) {
		return ts.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (ts *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response: empty access_token")
	}

	ts.mu.Lock()
	ts.token = tr.AccessToken
	ts.expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	ts.mu.Unlock()

	log.Debug().Int64("expires_in", tr.ExpiresIn).Msg("Refreshed gateway access token")
	return tr.AccessToken, nil
}
