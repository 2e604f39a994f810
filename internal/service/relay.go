// Package service implements the relay's forwarding logic: the pass-through
// GET and the sign-in exchange against the single allowed upstream.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"signin-relay/internal/client"
	"signin-relay/internal/config"
	"signin-relay/internal/model"
)

const userAgent = "Mozilla/5.0"

// RelayService dispatches relay operations to the upstream.
type RelayService struct {
	client  *client.UpstreamClient
	guard   *DomainGuard
	signin  config.SigninConfig
	baseURL *url.URL
	logger  *slog.Logger
}

// NewRelayService creates a RelayService whose allowed host is the hostname
// of the configured upstream base URL.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("upstream base_url %q has no host", cfg.Upstream.BaseURL)
	}

	return &RelayService{
		client:  c,
		guard:   NewDomainGuard(u.Hostname()),
		signin:  cfg.Signin,
		baseURL: u,
		logger:  logger.With("component", "relay_service"),
	}, nil
}

// PassThrough forwards a GET to target, which must be on the allowed host.
// The caller's Authorization value is forwarded as-is, even when empty.
func (s *RelayService) PassThrough(ctx context.Context, target, authorization string) (*model.ProxyResponse, error) {
	if target == "" {
		return nil, ErrMissingURL
	}
	if !s.guard.IsAllowedDomain(target) {
		return nil, ErrUnauthorizedDomain
	}

	header := http.Header{}
	header.Set("Authorization", authorization)
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", userAgent)

	s.logger.Debug("calling upstream", "url", target)

	resp, err := s.client.Do(ctx, http.MethodGet, target, header, nil)
	if err != nil {
		return nil, fmt.Errorf("pass-through: %w", err)
	}
	return verbatim(resp)
}

// Signin resolves the sign-in payload and posts it to the upstream sign-in
// endpoint. A *ConfigError is returned before any network call when the
// credentials are incomplete.
func (s *RelayService) Signin(ctx context.Context, override string) (*model.ProxyResponse, error) {
	payload, err := ResolveSigninPayload(s.signin, override)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode signin payload: %w", err)
	}

	header := http.Header{}
	header.Set("lob", payload.LOB)
	header.Set("Accept", "application/json, text/plain, */*")
	header.Set("Content-Type", "application/json;charset=UTF-8")
	header.Set("User-Agent", userAgent)

	s.logger.Info("signing in", "login_id", payload.LoginID, "lob", payload.LOB)

	resp, err := s.client.Do(ctx, http.MethodPost, s.signinURL(payload.LOB), header, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}
	return verbatim(resp)
}

func (s *RelayService) signinURL(lob string) string {
	u := *s.baseURL
	u.Path = "/signin"
	u.RawQuery = url.Values{"lob": {lob}}.Encode()
	return u.String()
}

// verbatim passes a 2xx reply through and turns anything else into an
// *UpstreamError.
func verbatim(resp *model.UpstreamResponse) (*model.ProxyResponse, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}, nil
}
