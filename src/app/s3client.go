package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// ClientMinio is the subset of *minio.Client the gateway uses.
type ClientMinio interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
}

const (
	PresignPutExpiry  = 3600 * time.Second
	PresignViewExpiry = 3600 * time.Second
	MinGetExpiry      = 60 * time.Second
	MaxGetExpiry      = 3600 * time.Second

	bucketInitialInterval = time.Second
	bucketMaxInterval     = 5 * time.Second
	bucketAttempts        = 5
)

// GetOptions controls a presigned GET.
type GetOptions struct {
	AsDownload bool
	Filename   string
	ExpiresIn  time.Duration
}

// MinioS3Client is the storage gateway. The internal client talks to the
// store from inside the deployment; the public client only signs URLs, which
// must carry the host the end user will reach.
type MinioS3Client struct {
	bucketName   string
	internal     ClientMinio
	public       ClientMinio
	buildBackoff func() backoff.BackOff
	log          logrus.FieldLogger
}

type S3Config struct {
	Endpoint      string
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
}

// NewMinioS3Client creates both minio clients. No request is made here.
func NewMinioS3Client(cfg S3Config, log logrus.FieldLogger) (*MinioS3Client, error) {
	internal, err := newMinio(cfg.Endpoint, cfg)
	if err != nil {
		return nil, fmt.Errorf("internal s3 client: %w", err)
	}
	public, err := newMinio(cfg.PublicBaseURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("public s3 client: %w", err)
	}
	return NewS3Gateway(cfg.Bucket, internal, public, log), nil
}

// NewS3Gateway wires a gateway from existing clients.
func NewS3Gateway(bucket string, internal, public ClientMinio, log logrus.FieldLogger) *MinioS3Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MinioS3Client{
		bucketName:   bucket,
		internal:     internal,
		public:       public,
		buildBackoff: defaultBucketBackoff,
		log:          log,
	}
}

func newMinio(endpoint string, cfg S3Config) (*minio.Client, error) {
	host, secure, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	// a fixed region keeps presigning offline (no bucket location lookup)
	return minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
}

func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}

// PresignPut signs an upload URL. Content type is not part of the
// signature; it is validated before signing.
func (s3 *MinioS3Client) PresignPut(ctx context.Context, objectKey string) (string, error) {
	u, err := s3.public.PresignedPutObject(ctx, s3.bucketName, objectKey, PresignPutExpiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// PresignGet confirms the object exists and signs a download URL. It returns
// the URL and the effective expiry.
func (s3 *MinioS3Client) PresignGet(ctx context.Context, objectKey string, opts GetOptions) (string, time.Duration, error) {
	if _, err := s3.internal.StatObject(ctx, s3.bucketName, objectKey, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return "", 0, ErrObjectNotFound
		}
		return "", 0, fmt.Errorf("stat %s: %w", objectKey, err)
	}

	expiry := ClampExpiry(opts.ExpiresIn)
	reqParams := make(url.Values)
	if opts.AsDownload {
		reqParams.Set("response-content-disposition", ContentDisposition(objectKey, opts.Filename))
	}
	u, err := s3.public.PresignedGetObject(ctx, s3.bucketName, objectKey, expiry, reqParams)
	if err != nil {
		return "", 0, fmt.Errorf("presign get %s: %w", objectKey, err)
	}
	return u.String(), expiry, nil
}

// PresignView signs a fixed one-hour GET without checking existence.
func (s3 *MinioS3Client) PresignView(ctx context.Context, objectKey string) (string, error) {
	u, err := s3.public.PresignedGetObject(ctx, s3.bucketName, objectKey, PresignViewExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign view %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s3 *MinioS3Client) EnsureBucket(ctx context.Context) error {
	exists, err := s3.internal.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s3.internal.MakeBucket(ctx, s3.bucketName, minio.MakeBucketOptions{}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}

// WaitForBucket retries EnsureBucket while the store is unreachable. Any
// other failure, or running out of attempts, is returned.
func (s3 *MinioS3Client) WaitForBucket(ctx context.Context) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := s3.EnsureBucket(ctx)
		if err == nil {
			return nil
		}
		if !isConnectionError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s3.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     bucketAttempts,
			"retry":   wait,
		}).Warnf("object store not ready: %v", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s3.buildBackoff(), bucketAttempts-1), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if isConnectionError(err) {
			return fmt.Errorf("%w: object store still unavailable after %d attempts: %v", ErrUpstreamUnavailable, attempt, err)
		}
		return fmt.Errorf("ensure bucket %s: %w", s3.bucketName, err)
	}
	s3.log.WithField("bucket", s3.bucketName).Info("object store ready")
	return nil
}

func defaultBucketBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = bucketInitialInterval
	b.Multiplier = 2
	b.MaxInterval = bucketMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ClampExpiry bounds a requested GET expiry to [60s, 3600s].
func ClampExpiry(requested time.Duration) time.Duration {
	if requested < MinGetExpiry {
		return MinGetExpiry
	}
	if requested > MaxGetExpiry {
		return MaxGetExpiry
	}
	return requested
}

// ContentDisposition builds an attachment directive. The filename falls back
// to the key's base name, then to "download".
func ContentDisposition(objectKey, filename string) string {
	name := filename
	if name == "" {
		name = objectKey[strings.LastIndex(objectKey, "/")+1:]
	}
	if name == "" {
		name = "download"
	}
	return "attachment; filename*=UTF-8''" + escapeAttrValue(name)
}

// escapeAttrValue percent-encodes every byte outside the RFC 5987 attr-char
// set.
func escapeAttrValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "404":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
