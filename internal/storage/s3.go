// Package storage is the asset-store client. Books carry two binary assets
// (a cover image and a PDF) which live in an S3-compatible object store and
// are served from public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/elibrary/elibrary-go/internal/config"
)

var ErrBadAssetURL = errors.New("cannot derive object key from asset URL")

// Kind selects how an asset is stored.
type Kind string

const (
	// KindImage keeps the original file extension and an image content type.
	KindImage Kind = "image"
	// KindRaw stores the file as an opaque PDF regardless of its original name.
	KindRaw Kind = "raw"
)

// Asset identifies a stored object: the public URL it is served from and the
// object key needed to delete it later.
type Asset struct {
	URL      string
	RemoteID string
}

// Client uploads and deletes binary assets in an S3-compatible store.
type Client struct {
	s3            *s3.Client
	bucket        string
	publicBaseURL string
}

// New builds a Client from static credentials and a custom endpoint, so it
// works against MinIO as well as AWS.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		s3:            client,
		bucket:        cfg.S3Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.S3PublicBaseURL, "/"),
	}, nil
}

// Upload stores the file at localPath under the given folder and returns the
// public URL plus the object key. The key is random; originalName only
// contributes its extension, since staged temp files have none.
func (c *Client) Upload(ctx context.Context, localPath, originalName string, kind Kind, folder string) (Asset, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Asset{}, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	key := folder + "/" + uuid.NewString() + objectExt(originalName, kind)

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(key, kind)),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return Asset{
		URL:      fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, key),
		RemoteID: key,
	}, nil
}

// Delete removes an object by its key. A missing object is not an error.
func (c *Client) Delete(ctx context.Context, remoteID string, kind Kind) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remoteID),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", remoteID, err)
	}
	return nil
}

// DeriveRemoteID reconstructs an object key from a stored public URL of the
// form .../<folder>/<filename>. Compatibility fallback for records created
// before the key was persisted alongside the URL.
func DeriveRemoteID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrBadAssetURL
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return "", ErrBadAssetURL
	}

	folder := segments[len(segments)-2]
	filename := segments[len(segments)-1]
	if folder == "" || filename == "" {
		return "", ErrBadAssetURL
	}

	return path.Join(folder, filename), nil
}

func objectExt(originalName string, kind Kind) string {
	if kind == KindRaw {
		return ".pdf"
	}
	return strings.ToLower(filepath.Ext(originalName))
}

func contentType(key string, kind Kind) string {
	if kind == KindRaw {
		return "application/pdf"
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
