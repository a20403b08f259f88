package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "imgserv/src/app"
)

const principalKey = "principal"

// RequireUser rejects requests without a verifiable bearer token and stores
// the caller for handlers.
func RequireUser(verifier TokenVerifier, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, log, app.ErrInvalidToken)
			return
		}
		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, log, err)
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
