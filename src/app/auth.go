package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// IdentityProvider is a third-party OAuth provider.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthInfo, error)
}

// IdentityResolver maps external identities to local users.
type IdentityResolver interface {
	FindOrCreateUser(ctx context.Context, info OAuthInfo) (*User, error)
	GetUserByID(ctx context.Context, id uint) (*User, error)
}

// TokenRecorder is notified of every issued token; metrics implement it.
type TokenRecorder interface {
	TokenIssued(kind string)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService runs the OAuth login flow and the token lifecycle.
type AuthService struct {
	codec      *TokenCodec
	users      IdentityResolver
	provider   IdentityProvider
	production bool
	recorder   TokenRecorder
	log        logrus.FieldLogger
}

type AuthServiceOption func(*AuthService)

// WithProduction disables IssueTestToken.
func WithProduction(production bool) AuthServiceOption {
	return func(s *AuthService) { s.production = production }
}

func WithTokenRecorder(recorder TokenRecorder) AuthServiceOption {
	return func(s *AuthService) { s.recorder = recorder }
}

func WithLogger(log logrus.FieldLogger) AuthServiceOption {
	return func(s *AuthService) { s.log = log }
}

func NewAuthService(codec *TokenCodec, users IdentityResolver, provider IdentityProvider, opts ...AuthServiceOption) *AuthService {
	s := &AuthService{
		codec:    codec,
		users:    users,
		provider: provider,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginURL is the provider authorization redirect for the given state.
func (s *AuthService) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// CompleteLogin exchanges an authorization code, resolves the local user and
// issues an access and a refresh token.
func (s *AuthService) CompleteLogin(ctx context.Context, code string) (*TokenPair, *User, error) {
	info, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%s exchange: %w", s.provider.Name(), err)
	}
	user, err := s.users.FindOrCreateUser(ctx, *info)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve user: %w", err)
	}
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "provider": info.Provider}).Info("oauth login completed")
	return pair, user, nil
}

// Verify resolves an access token to its claims.
func (s *AuthService) Verify(token string) (*AccessClaims, error) {
	return s.codec.VerifyAccessToken(token)
}

// Refresh mints a new access token for a valid refresh token. The refresh
// token itself is neither rotated nor revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	access, err := s.codec.IssueAccessToken(user.ID, user.Email, user.DisplayName())
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	s.recordIssued("access")
	return access, nil
}

// IssueTestToken resolves a synthetic identity and issues both tokens.
func (s *AuthService) IssueTestToken(ctx context.Context, email string) (*TokenPair, *User, error) {
	if s.production {
		return nil, nil, ErrForbidden
	}
	if email == "" {
		email = "test@example.com"
	}
	name := "Test User"
	user, err := s.users.FindOrCreateUser(ctx, OAuthInfo{
		Provider:       "test",
		ProviderUserID: "test123",
		Email:          email,
		Name:           &name,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve test user: %w", err)
	}
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func (s *AuthService) issuePair(user *User) (*TokenPair, error) {
	if user == nil {
		return nil, errors.New("no user to issue tokens for")
	}
	access, err := s.codec.IssueAccessToken(user.ID, user.Email, user.DisplayName())
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	s.recordIssued("access")
	s.recordIssued("refresh")
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) recordIssued(kind string) {
	if s.recorder != nil {
		s.recorder.TokenIssued(kind)
	}
}
