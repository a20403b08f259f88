package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "imgserv/src/app"
)

type (
	// Authenticator is the auth orchestration behind AuthHandler.
	Authenticator interface {
		LoginURL(state string) string
		CompleteLogin(ctx context.Context, code string) (*app.TokenPair, *app.User, error)
		Refresh(ctx context.Context, refreshToken string) (string, error)
		IssueTestToken(ctx context.Context, email string) (*app.TokenPair, *app.User, error)
	}

	AuthHandler struct {
		auth        Authenticator
		frontendURL string
		secure      bool
		log         logrus.FieldLogger
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	TokenUser struct {
		UserID uint   `json:"user_id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
	}

	TestTokenResponse struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		TokenType    string    `json:"token_type"`
		User         TokenUser `json:"user"`
	}
)

const (
	stateCookieName   = "oauth_state"
	stateCookieMaxAge = 600
	stateCookiePath   = "/auth/oauth"
	tokenTypeBearer   = "bearer"
	frontendCallback  = "/auth/callback"
)

// NewAuthHandler builds the OAuth handlers. secure marks the state cookie
// Secure and should be set behind TLS.
func NewAuthHandler(auth Authenticator, frontendURL string, secure bool, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		secure:      secure,
		log:         log,
	}
}

// Login redirects to the provider with a fresh state bound to a cookie.
func (a *AuthHandler) Login(c *gin.Context) {
	state, err := randString(16)
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, stateCookieMaxAge, stateCookiePath, "", a.secure, true)
	c.Redirect(http.StatusFound, a.auth.LoginURL(state))
}

// Callback completes the login and hands both tokens to the frontend.
func (a *AuthHandler) Callback(c *gin.Context) {
	expected, err := c.Cookie(stateCookieName)
	if err != nil || expected == "" || c.Query("state") != expected {
		abortWithDetail(c, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	c.SetCookie(stateCookieName, "", -1, stateCookiePath, "", a.secure, true)

	code := c.Query("code")
	if code == "" {
		abortWithDetail(c, http.StatusBadRequest, "Missing authorization code")
		return
	}

	pair, _, err := a.auth.CompleteLogin(c.Request.Context(), code)
	if err != nil {
		a.log.WithError(err).Error("oauth callback failed")
		abortWithDetail(c, http.StatusInternalServerError, "OAuth failed")
		return
	}
	c.Redirect(http.StatusFound, a.frontendURL+frontendCallback+
		"?token="+url.QueryEscape(pair.AccessToken)+
		"&refresh_token="+url.QueryEscape(pair.RefreshToken))
}

func (a *AuthHandler) Refresh(c *gin.Context) {
	var body RefreshRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithDetail(c, http.StatusBadRequest, "refresh_token is required")
		return
	}
	access, err := a.auth.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "token_type": tokenTypeBearer})
}

func (a *AuthHandler) TestToken(c *gin.Context) {
	pair, user, err := a.auth.IssueTestToken(c.Request.Context(), c.Query("email"))
	if err != nil {
		abortWithError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, TestTokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenTypeBearer,
		User:         TokenUser{UserID: user.ID, Email: user.Email, Name: user.DisplayName()},
	})
}

// Verify answers the image service's token checks. It runs behind
// RequireUser with a LocalVerifier.
func (a *AuthHandler) Verify(c *gin.Context) {
	p := currentPrincipal(c)
	c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "email": p.Email})
}

func (a *AuthHandler) Me(c *gin.Context) {
	p := currentPrincipal(c)
	c.JSON(http.StatusOK, TokenUser{UserID: p.UserID, Email: p.Email, Name: p.Name})
}
