package mpesa

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"stkpay/internal/provider"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// TokenStore caches Daraja access tokens. The relay uses Redis so that
// replicas share one token; the default is process memory.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// tokenSafetyMargin keeps a cached token from expiring mid-request.
const tokenSafetyMargin = time.Minute

// MemoryTokenStore is a TokenStore for a single process
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]accessToken
	now    func() time.Time
}

// accessToken represents a cached M-Pesa access token
type accessToken struct {
	Token     string
	ExpiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]accessToken), now: time.Now}
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[key]
	if !ok || !t.ExpiresAt.After(s.now()) {
		return "", false, nil
	}
	return t.Token, true, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = accessToken{Token: token, ExpiresAt: s.now().Add(ttl)}
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached token or fetches a new one with the client
// credentials grant, retrying transient failures.
func (p *Provider) accessToken(ctx context.Context) (string, error) {
	key := "daraja:token:" + p.cfg.Environment + ":" + p.cfg.Shortcode
	if token, ok, err := p.tokens.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("token cache read failed")
	} else if ok {
		return token, nil
	}

	auth := base64.StdEncoding.EncodeToString([]byte(p.cfg.ConsumerKey + ":" + p.cfg.ConsumerSecret))
	headers := map[string]string{"Authorization": "Basic " + auth}

	var out tokenResponse
	op := func() error {
		resp, err := p.http.Get(ctx, "/oauth/v1/generate?grant_type=client_credentials", headers)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == 429 {
			return fmt.Errorf("auth failed with status %d", resp.StatusCode)
		}
		if !resp.IsSuccess() {
			return backoff.Permanent(fmt.Errorf("auth failed with status %d: %s", resp.StatusCode, resp.String()))
		}
		if err := resp.Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse auth response: %w", err))
		}
		if out.AccessToken == "" {
			return backoff.Permanent(errors.New("auth response carried no access token"))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("daraja auth retry")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
		return "", provider.NewGatewayError(provider.ErrAuthFailed, err, "failed to get access token")
	}

	expiresIn, err := strconv.Atoi(out.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3600
	}
	ttl := time.Duration(expiresIn)*time.Second - tokenSafetyMargin
	if ttl > 0 {
		if err := p.tokens.Set(ctx, key, out.AccessToken, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("token cache write failed")
		}
	}
	return out.AccessToken, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, 3)
}
