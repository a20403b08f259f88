package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	app "imgserv/src/app"
)

type (
	// Principal is the authenticated caller.
	Principal struct {
		UserID uint   `json:"user_id"`
		Email  string `json:"email"`
		Name   string `json:"name,omitempty"`
	}

	// TokenVerifier resolves a bearer token to its principal.
	TokenVerifier interface {
		Verify(ctx context.Context, token string) (*Principal, error)
	}

	// RemoteVerifier asks the auth service to verify bearer tokens.
	RemoteVerifier struct {
		verifyURL string
		client    *http.Client
	}

	// LocalVerifier verifies tokens in process with the auth service's codec.
	LocalVerifier struct {
		auth *app.AuthService
	}
)

const verifyPath = "/auth/verify"

func NewRemoteVerifier(authServiceURL string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		verifyURL: strings.TrimRight(authServiceURL, "/") + verifyPath,
		client:    &http.Client{Timeout: timeout},
	}
}

// Verify posts the token to the auth service. Any non-200 answer is an
// invalid token; failing to reach the service is ErrUpstreamUnavailable.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: auth service: %v", app.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, app.ErrInvalidToken
	}
	var principal Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if principal.UserID == 0 {
		return nil, errors.New("verify response without user_id")
	}
	return &principal, nil
}

func NewLocalVerifier(auth *app.AuthService) *LocalVerifier {
	return &LocalVerifier{auth: auth}
}

func (v *LocalVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	claims, err := v.auth.Verify(token)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}
