package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"accessdesk.org/internal/authz"
)

// StaticProvider is the development identity provider: codes are registered
// up front and exchanged locally, so the whole flow runs without an upstream.
type StaticProvider struct {
	authBase string
	profiles map[string]Profile
}

// NewStaticProvider constructs a provider that redirects to authBase.
func NewStaticProvider(authBase string) *StaticProvider {
	return &StaticProvider{authBase: authBase, profiles: map[string]Profile{}}
}

// Register makes code exchangeable for profile.
func (p *StaticProvider) Register(code string, profile Profile) {
	p.profiles[code] = profile
}

func (p *StaticProvider) AuthURL(state string) string {
	return p.authBase + "?state=" + url.QueryEscape(state)
}

func (p *StaticProvider) Exchange(_ context.Context, code string) (Profile, error) {
	profile, ok := p.profiles[code]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown authorization code", authz.ErrUnauthenticated)
	}
	return profile, nil
}

// RemoteProvider exchanges authorization codes against an upstream identity
// service that answers with a JSON profile.
type RemoteProvider struct {
	authURL     string
	exchangeURL string
	client      *http.Client
}

// NewRemoteProvider constructs a provider for the given endpoints.
func NewRemoteProvider(authURL, exchangeURL string) (*RemoteProvider, error) {
	if strings.TrimSpace(authURL) == "" || strings.TrimSpace(exchangeURL) == "" {
		return nil, errors.New("sso provider endpoints are required")
	}
	return &RemoteProvider{
		authURL:     authURL,
		exchangeURL: exchangeURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *RemoteProvider) AuthURL(state string) string {
	return p.authURL + "?state=" + url.QueryEscape(state)
}

func (p *RemoteProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	form := url.Values{"code": {code}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.exchangeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("sso exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Profile{}, fmt.Errorf("%w: provider rejected the authorization code", authz.ErrUnauthenticated)
	default:
		return Profile{}, fmt.Errorf("sso exchange: unexpected status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("sso exchange: decode profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}
