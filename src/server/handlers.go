package server

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "imgserv/src/app"
)

const (
	detailInternal    = "Internal server error"
	detailUnavailable = "Service unavailable"
)

func randString(nByte int) (string, error) {
	b := make([]byte, nByte)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// statusFor maps domain errors to an HTTP status and a client-safe detail.
func statusFor(err error) (int, string) {
	var validation *app.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, app.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, app.ErrForbidden):
		return http.StatusForbidden, "Not available in production"
	case errors.Is(err, app.ErrObjectNotFound):
		return http.StatusNotFound, "Object not found"
	case errors.Is(err, app.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, app.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, detailUnavailable
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

// abortWithError writes {"detail": ...} for err. Server-side failures are
// logged with their cause; auth failures only at debug level.
func abortWithError(c *gin.Context, log logrus.FieldLogger, err error) {
	status, detail := statusFor(err)
	entry := log.WithFields(logrus.Fields{"path": c.FullPath(), "status": status}).WithError(err)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("request failed")
	case status == http.StatusUnauthorized:
		entry.Debug("request unauthorized")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// GetHealth is the liveness probe for both services.
func GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// pageFromQuery reads skip and limit; NewPage does the clamping.
func pageFromQuery(c *gin.Context) (app.Page, error) {
	skip, err := intQuery(c, "skip", 0)
	if err != nil {
		return app.Page{}, err
	}
	limit, err := intQuery(c, "limit", app.DefaultPageLimit)
	if err != nil {
		return app.Page{}, err
	}
	return app.NewPage(skip, limit), nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &app.ValidationError{Message: "Invalid " + name}
	}
	return v, nil
}
