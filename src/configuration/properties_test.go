package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	config, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "HS256", config.JWT.Algorithm)
	assert.Equal(t, time.Hour, config.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, config.JWT.RefreshTTL)
	assert.Equal(t, "uploads", config.S3.Bucket)
	assert.Equal(t, int64(10*1024*1024), config.Upload.MaxSize)
	assert.Equal(t, []string{"http://localhost:3000"}, config.Server.CORSOrigins)
	assert.False(t, config.IsProduction())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_EXPIRE_MINUTES", "15")
	t.Setenv("PUBLIC_S3_BASEURL", "https://cdn.example.com")
	t.Setenv("HTTP_CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	config, err := Parse()
	require.NoError(t, err)

	assert.True(t, config.IsProduction())
	assert.Equal(t, 15*time.Minute, config.AccessTTL())
	assert.Equal(t, "https://cdn.example.com", config.S3.PublicBaseURL)
	assert.Len(t, config.Server.CORSOrigins, 2)
}

func TestParseRejectsNonPositiveExpiry(t *testing.T) {
	t.Setenv("JWT_EXPIRE_MINUTES", "0")

	_, err := Parse()
	assert.Error(t, err)
}
