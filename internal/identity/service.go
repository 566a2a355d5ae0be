package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"metarepo/internal/config"
	"metarepo/internal/model"
)

// ServiceClient asks the remote identity service about each token and keeps
// the answer until the session expires or the cache TTL elapses.
type ServiceClient struct {
	url    string
	client *http.Client
	cache  *gocache.Cache
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

var _ Authenticator = (*ServiceClient)(nil)

// NewServiceClient builds a client from the identity settings.
func NewServiceClient(c config.IdentityConfig, log *zap.Logger) (*ServiceClient, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("identity url is required")
	}
	timeout := time.Duration(c.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := time.Duration(c.CacheTTLSec) * time.Second
	return &ServiceClient{
		url: strings.TrimRight(c.URL, "/") + c.CheckAuthEndpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cache: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
		now:   time.Now,
		log:   log.With(zap.String("component", "identity")),
	}, nil
}

func (s *ServiceClient) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if rawToken(token) == "" {
		return nil, fmt.Errorf("%w: missing bearer token", model.ErrAuthorization)
	}
	token = bearer(token)

	if v, ok := s.cache.Get(token); ok {
		if p, ok := v.(*model.Principal); ok && !p.Expired(s.now()) {
			return p, nil
		}
		s.cache.Delete(token)
	}

	p, err := s.check(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if p.Expired(now) {
		return nil, fmt.Errorf("%w: session expired", model.ErrAuthorization)
	}
	if s.ttl > 0 {
		ttl := time.UnixMilli(p.ExpiresAt).Sub(now)
		if ttl > s.ttl {
			ttl = s.ttl
		}
		s.cache.Set(token, p, ttl)
	}
	return p, nil
}

func (s *ServiceClient) check(ctx context.Context, token string) (*model.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("identity request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: token rejected", model.ErrAuthorization)
	}

	var p model.Principal
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode principal: %w", ErrUnavailable, err)
	}
	if p.Username == "" {
		return nil, fmt.Errorf("%w: principal without username", model.ErrAuthorization)
	}
	return &p, nil
}
