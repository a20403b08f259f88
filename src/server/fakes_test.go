package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	app "imgserv/src/app"
	cfg "imgserv/src/configuration"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func testConfig() *cfg.Properties {
	return &cfg.Properties{
		Environment: "development",
		FrontendURL: "http://localhost:5173",
		Server: cfg.HttpServerProperties{
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// fakeVerifier maps tokens to principals; "down" simulates an unreachable
// auth service.
type fakeVerifier map[string]*Principal

func (f fakeVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	if token == "down" {
		return nil, fmt.Errorf("%w: connection refused", app.ErrUpstreamUnavailable)
	}
	p, ok := f[token]
	if !ok {
		return nil, app.ErrInvalidToken
	}
	return p, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	objects map[string]bool
	gets    []string
}

func newFakeGateway(keys ...string) *fakeGateway {
	g := &fakeGateway{objects: map[string]bool{}}
	for _, k := range keys {
		g.objects[k] = true
	}
	return g
}

func (g *fakeGateway) PresignPut(_ context.Context, key string) (string, error) {
	return "http://localhost:9000/uploads/" + key + "?X-Amz-Expires=3600", nil
}

func (g *fakeGateway) PresignGet(_ context.Context, key string, opts app.GetOptions) (string, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets = append(g.gets, key)
	if !g.objects[key] {
		return "", 0, app.ErrObjectNotFound
	}
	expiry := app.ClampExpiry(opts.ExpiresIn)
	return fmt.Sprintf("http://localhost:9000/uploads/%s?X-Amz-Expires=%d", key, int(expiry/time.Second)), expiry, nil
}

func (g *fakeGateway) PresignView(_ context.Context, key string) (string, error) {
	return "http://localhost:9000/uploads/" + key + "?X-Amz-Expires=3600", nil
}

func (g *fakeGateway) getCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.gets)
}

type memImages struct {
	mu     sync.Mutex
	nextID uint
	rows   []app.Image
}

func (m *memImages) CreateImage(_ context.Context, image *app.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	image.ID = m.nextID
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().Add(time.Duration(m.nextID) * time.Millisecond)
	}
	m.rows = append(m.rows, *image)
	return nil
}

func (m *memImages) ListImages(_ context.Context, filter app.ImageFilter) ([]app.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []app.Image
	for _, row := range m.rows {
		if filter.UserID == nil || row.UserID == *filter.UserID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Page.Skip >= len(out) {
		return nil, nil
	}
	out = out[filter.Page.Skip:]
	if len(out) > filter.Page.Limit {
		out = out[:filter.Page.Limit]
	}
	return out, nil
}

type fakeUserLookup map[uint]*app.User

func (f fakeUserLookup) GetUserByID(_ context.Context, id uint) (*app.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, app.ErrUserNotFound
	}
	return u, nil
}

type fakeProvider struct{}

func (fakeProvider) Name() string { return "google" }

func (fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (fakeProvider) Exchange(_ context.Context, code string) (*app.OAuthInfo, error) {
	if code != "good-code" {
		return nil, fmt.Errorf("invalid_grant")
	}
	name := "Alice"
	return &app.OAuthInfo{Provider: "google", ProviderUserID: "g-1", Email: "alice@example.com", Name: &name}, nil
}
