package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"energywatch/internal/config"
	"energywatch/internal/metrics"
	"energywatch/internal/models"
)

// expirySkew is how long before the stated expiry a token is already
// treated as expired, so in-flight requests never race a dying token.
const expirySkew = 5 * time.Minute

const redisTokenKey = "energywatch:meter:token"

// TokenProvider acquires and caches bearer tokens for the metering
// platform. At most one refresh is ever in flight; overlapping callers
// are served the cached token or wait on the refresh.
type TokenProvider struct {
	httpClient *http.Client
	cfg        config.MeterConfig
	rdb        *redis.Client // optional, persists tokens across restarts

	mu     sync.Mutex
	cached *models.AuthToken

	now func() time.Time
}

// NewTokenProvider creates a token provider. rdb may be nil.
func NewTokenProvider(cfg config.MeterConfig, rdb *redis.Client) *TokenProvider {
	return &TokenProvider{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		rdb:        rdb,
		now:        time.Now,
	}
}

// Token returns a valid access token, refreshing it if the cached one is
// missing or within the expiry skew.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usable(p.cached) {
		return p.cached.AccessToken, nil
	}

	if tok := p.loadFromRedis(ctx); p.usable(tok) {
		p.cached = tok
		return tok.AccessToken, nil
	}

	log.Printf("Fetching new access token from %s", p.cfg.AuthURL)
	tok, err := p.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	p.cached = tok
	p.storeInRedis(ctx, tok)
	return tok.AccessToken, nil
}

func (p *TokenProvider) usable(tok *models.AuthToken) bool {
	return tok != nil && tok.ExpiresAt.After(p.now().Add(expirySkew))
}

// Authenticate performs the password-grant exchange against the identity
// server and returns a fresh token. It does not touch the cache.
func (p *TokenProvider) Authenticate(ctx context.Context) (*models.AuthToken, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("grant_type", p.cfg.GrantType)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("scope", p.cfg.Scope)
	form.Set("username", p.cfg.Username)
	form.Set("password", p.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	metrics.RecordTokenRefresh(err)
	if err != nil {
		return nil, &models.UpstreamError{Service: "auth", Message: "authentication request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &models.UpstreamError{
			Service:    "auth",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var tok models.AuthToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &models.UpstreamError{Service: "auth", Message: "failed to decode auth response", Err: err}
	}

	tok.ExpiresAt = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	log.Printf("Authenticated with identity server in %s, token expires at %s",
		time.Since(start).Round(time.Millisecond), tok.ExpiresAt.Format(time.RFC3339))

	return &tok, nil
}

// Validate reports whether a usable token can currently be obtained.
func (p *TokenProvider) Validate(ctx context.Context) bool {
	token, err := p.Token(ctx)
	return err == nil && token != ""
}

func (p *TokenProvider) loadFromRedis(ctx context.Context) *models.AuthToken {
	if p.rdb == nil {
		return nil
	}

	data, err := p.rdb.Get(ctx, redisTokenKey).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Failed to read token from redis: %v", err)
		}
		return nil
	}

	var tok models.AuthToken
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		log.Printf("Failed to parse cached token: %v", err)
		return nil
	}
	return &tok
}

func (p *TokenProvider) storeInRedis(ctx context.Context, tok *models.AuthToken) {
	if p.rdb == nil {
		return
	}

	ttl := tok.ExpiresAt.Sub(p.now()) - expirySkew
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, redisTokenKey, data, ttl).Err(); err != nil {
		log.Printf("Failed to persist token to redis: %v", err)
	}
}
