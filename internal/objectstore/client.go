// Package objectstore fetches result files from S3 and decodes them into a ResultTable.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
)

// ErrEmptyKey is returned when a filepath has no final segment.
var ErrEmptyKey = errors.New("empty object key")

// ObjectGetter is the subset of the S3 API the client needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client reads result files from a single bucket.
type Client struct {
	s3     ObjectGetter
	bucket string
	log    *slog.Logger
}

// New wraps an S3 client bound to bucket.
func New(getter ObjectGetter, bucket string, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{s3: getter, bucket: bucket, log: log}
}

// KeyFromPath returns the final "/"-separated segment of a result filepath.
func KeyFromPath(filepath string) string {
	trimmed := strings.TrimSpace(filepath)
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// FetchTable downloads the object for filepath and decodes it.
func (c *Client) FetchTable(ctx context.Context, filepath string) (*models.ResultTable, error) {
	key := KeyFromPath(filepath)
	if key == "" {
		return nil, fmt.Errorf("filepath %q: %w", filepath, ErrEmptyKey)
	}

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// non-2xx responses surface as *awshttp.ResponseError
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			c.log.Warn("unsuccessful get_object response",
				slog.String("bucket", c.bucket),
				slog.String("key", key),
				slog.Int("status", respErr.HTTPStatusCode()),
			)
			return nil, fmt.Errorf("get object %s/%s: status %d: %w", c.bucket, key, respErr.HTTPStatusCode(), err)
		}
		c.log.Warn("get_object failed", slog.String("key", key), slog.Any("err", err))
		return nil, fmt.Errorf("get object %s/%s: %w", c.bucket, key, err)
	}
	defer out.Body.Close()

	table, err := DecodeTable(out.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c.bucket, key, err)
	}

	c.log.Info("successful get_object response",
		slog.String("key", key),
		slog.Int("rows", table.Len()),
	)
	return table, nil
}
