package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	puts     []string
	gets     []string
	views    []string
	getErr   error
	putErr   error
	lastOpts GetOptions
}

func (f *fakeGateway) PresignPut(_ context.Context, key string) (string, error) {
	f.puts = append(f.puts, key)
	if f.putErr != nil {
		return "", f.putErr
	}
	return "http://localhost:9000/uploads/" + key + "?X-Amz-Expires=3600", nil
}

func (f *fakeGateway) PresignGet(_ context.Context, key string, opts GetOptions) (string, time.Duration, error) {
	f.gets = append(f.gets, key)
	f.lastOpts = opts
	if f.getErr != nil {
		return "", 0, f.getErr
	}
	expiry := ClampExpiry(opts.ExpiresIn)
	return fmt.Sprintf("http://localhost:9000/uploads/%s?X-Amz-Expires=%d", key, int(expiry.Seconds())), expiry, nil
}

func (f *fakeGateway) PresignView(_ context.Context, key string) (string, error) {
	f.views = append(f.views, key)
	return "http://localhost:9000/uploads/" + key + "?X-Amz-Expires=3600", nil
}

type fakeImageStore struct {
	images    []Image
	createErr error
}

func (f *fakeImageStore) CreateImage(_ context.Context, image *Image) error {
	if f.createErr != nil {
		return f.createErr
	}
	image.ID = uint(len(f.images) + 1)
	image.CreatedAt = time.Now().Add(time.Duration(len(f.images)) * time.Second)
	f.images = append(f.images, *image)
	return nil
}

func (f *fakeImageStore) ListImages(_ context.Context, filter ImageFilter) ([]Image, error) {
	var out []Image
	for _, img := range f.images {
		if filter.UserID == nil || img.UserID == *filter.UserID {
			out = append(out, img)
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

func newTestUploadService() (*UploadService, *fakeGateway, *fakeImageStore) {
	gw := &fakeGateway{}
	store := &fakeImageStore{}
	logger, _ := test.NewNullLogger()
	return NewUploadService(gw, store, DefaultMaxSize, nil, logger), gw, store
}

func TestCreateUploadURLAcceptsAllowedPairs(t *testing.T) {
	pairs := []struct{ filename, contentType, ext string }{
		{"a.jpg", "image/jpeg", ".jpg"},
		{"b.JPEG", "image/jpeg", ".jpeg"},
		{"c.png", "image/png", ".png"},
		{"d.webp", "image/webp", ".webp"},
		{"e.avif", "image/avif", ".avif"},
	}
	for _, p := range pairs {
		t.Run(p.filename, func(t *testing.T) {
			svc, gw, store := newTestUploadService()

			resp, err := svc.CreateUploadURL(context.Background(), UploadRequest{
				Filename: p.filename, ContentType: p.contentType, Size: DefaultMaxSize,
			}, 7)
			require.NoError(t, err)

			assert.Regexp(t, regexp.MustCompile(`^originals/[0-9a-f]{32}\`+p.ext+`$`), resp.ObjectKey)
			assert.Equal(t, []string{resp.ObjectKey}, gw.puts)
			require.Len(t, store.images, 1)
			assert.Equal(t, uint(7), store.images[0].UserID)
			assert.Equal(t, p.filename, store.images[0].Filename)
		})
	}
}

func TestCreateUploadURLRejectsLargeFiles(t *testing.T) {
	svc, gw, store := newTestUploadService()

	for _, contentType := range []string{"image/jpeg", "application/pdf"} {
		_, err := svc.CreateUploadURL(context.Background(), UploadRequest{
			Filename: "a.jpg", ContentType: contentType, Size: DefaultMaxSize + 1,
		}, 1)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "File too large", err.Error())
	}
	assert.Empty(t, gw.puts)
	assert.Empty(t, store.images)
}

func TestCreateUploadURLRequiresBothExtensionAndMIME(t *testing.T) {
	svc, gw, _ := newTestUploadService()

	cases := []struct{ filename, contentType string }{
		{"a.jpg", "application/pdf"},
		{"a.pdf", "image/jpeg"},
		{"a.gif", "image/gif"},
		{"noext", "image/png"},
		{"a.jpg", ""},
	}
	for _, tc := range cases {
		_, err := svc.CreateUploadURL(context.Background(), UploadRequest{
			Filename: tc.filename, ContentType: tc.contentType, Size: 10,
		}, 1)
		require.Error(t, err, "%s %s", tc.filename, tc.contentType)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "Unsupported file type", err.Error())
	}
	assert.Empty(t, gw.puts)
}

func TestCreateUploadURLSurfacesMetadataFailure(t *testing.T) {
	svc, gw, store := newTestUploadService()
	store.createErr = errors.New("db down")

	_, err := svc.CreateUploadURL(context.Background(), UploadRequest{
		Filename: "a.png", ContentType: "image/png", Size: 1,
	}, 1)
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.Len(t, gw.puts, 1)
}

func TestGetDownloadURLRejectsTraversalBeforeStorage(t *testing.T) {
	svc, gw, _ := newTestUploadService()

	for _, key := range []string{"../etc/passwd", "originals/../../x", "/originals/a.jpg", ""} {
		_, err := svc.GetDownloadURL(context.Background(), key, GetOptions{})
		require.Error(t, err, key)
		assert.True(t, IsValidation(err))
	}
	assert.Empty(t, gw.gets)
}

func TestGetDownloadURL(t *testing.T) {
	svc, gw, _ := newTestUploadService()

	resp, err := svc.GetDownloadURL(context.Background(), "originals/a.jpg", GetOptions{
		AsDownload: true, ExpiresIn: 999999 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.True(t, resp.Download)
	assert.Equal(t, "originals/a.jpg", resp.Key)
	assert.True(t, gw.lastOpts.AsDownload)

	gw.getErr = ErrObjectNotFound
	_, err = svc.GetDownloadURL(context.Background(), "originals/missing.jpg", GetOptions{})
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestListingOwnershipIsolation(t *testing.T) {
	svc, _, _ := newTestUploadService()
	ctx := context.Background()
	for _, userID := range []uint{1, 2, 1} {
		_, err := svc.CreateUploadURL(ctx, UploadRequest{Filename: "x.png", ContentType: "image/png", Size: 1}, userID)
		require.NoError(t, err)
	}

	mine, err := svc.ListMyImages(ctx, 1, DefaultPage())
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, v := range mine {
		assert.Equal(t, uint(1), v.UserID)
		assert.NotEmpty(t, v.URL)
	}
	assert.True(t, mine[0].CreatedAt.After(mine[1].CreatedAt))

	theirs, err := svc.ListUserImages(ctx, 2, DefaultPage())
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	all, err := svc.ListAllImages(ctx, DefaultPage())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := svc.ListAllImages(ctx, Page{Skip: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestNewPage(t *testing.T) {
	assert.Equal(t, Page{Skip: 0, Limit: 50}, DefaultPage())
	assert.Equal(t, Page{Skip: 0, Limit: 1}, NewPage(0, 0))
	assert.Equal(t, Page{Skip: 0, Limit: 1}, NewPage(-3, -1))
	assert.Equal(t, Page{Skip: 10, Limit: 100}, NewPage(10, 500))
	assert.Equal(t, Page{Skip: 2, Limit: 20}, NewPage(2, 20))
}
