// Package storage persists saved portraits in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

// Object is an uploaded file.
type Object struct {
	Key string
	URL string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Uploader struct {
	cfg    Config
	client objectPutter
	now    func() time.Time
}

func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return newUploader(cfg, s3.New(options)), nil
}

func newUploader(cfg Config, client objectPutter) *Uploader {
	if cfg.Prefix == "" {
		cfg.Prefix = "cats"
	}
	return &Uploader{cfg: cfg, client: client, now: time.Now}
}

// Upload stores data under <prefix>/<owner>/<yyyy/mm/dd>/<uuid><ext> and
// returns its public URL.
func (u *Uploader) Upload(ctx context.Context, owner string, data []byte, contentType string) (*Object, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := u.generateKey(owner, contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.cfg.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
		ACL:          types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return nil, fmt.Errorf("upload to s3: %w", err)
	}
	return &Object{
		Key: key,
		URL: strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key,
	}, nil
}

func (u *Uploader) generateKey(owner, contentType string) string {
	ext := extensionFromContentType(contentType)
	now := u.now().UTC()
	prefix := strings.Trim(u.cfg.Prefix, "/")
	return path.Join(prefix, sanitizeSegment(owner), now.Format("2006/01/02"), uuid.NewString()+ext)
}

// sanitizeSegment keeps user ids from introducing extra path levels.
func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "anonymous"
	}
	return s
}

func extensionFromContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
