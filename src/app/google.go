package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	ProviderGoogle = "google"

	defaultGoogleIssuer      = "https://accounts.google.com"
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleHTTPTimeout        = 10 * time.Second
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// endpoint overrides, used by tests
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	HTTPClient  *http.Client
}

// GoogleProvider exchanges Google authorization codes for OIDC profiles.
type GoogleProvider struct {
	oauth      *oauth2.Config
	oidc       *oidc.Provider
	httpClient *http.Client
}

func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) *GoogleProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultGoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultGoogleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultGoogleUserInfoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: googleHTTPTimeout}
	}

	providerConfig := &oidc.ProviderConfig{
		IssuerURL:   defaultGoogleIssuer,
		AuthURL:     cfg.AuthURL,
		TokenURL:    cfg.TokenURL,
		UserInfoURL: cfg.UserInfoURL,
	}
	provider := providerConfig.NewProvider(ctx)

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{oidc.ScopeOpenID, "email", "profile"},
		},
		oidc:       provider,
		httpClient: client,
	}
}

func (p *GoogleProvider) Name() string {
	return ProviderGoogle
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the code for a provider token and fetches the profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*OAuthInfo, error) {
	if code == "" {
		return nil, errors.New("google: missing authorization code")
	}
	ctx = oidc.ClientContext(ctx, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: exchange token: %w", err)
	}

	info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("google: user info: %w", err)
	}
	var profile struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&profile); err != nil {
		return nil, fmt.Errorf("google: decode user info: %w", err)
	}

	if strings.TrimSpace(info.Subject) == "" {
		return nil, errors.New("google: user info missing subject")
	}
	email := strings.TrimSpace(info.Email)
	if email == "" {
		return nil, errors.New("google: user info missing email")
	}

	return &OAuthInfo{
		Provider:       ProviderGoogle,
		ProviderUserID: info.Subject,
		Email:          email,
		Name:           optional(profile.Name),
		AvatarURL:      optional(profile.Picture),
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
