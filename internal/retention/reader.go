// Package retention reads archived log records back out of the object store
// for review and export. Records are located by the per-type, per-day key
// partitions the archive client writes.
package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onnwee/portal/internal/archive"
	"github.com/onnwee/portal/internal/tracing"
)

// DayFormat is the layout of the day partition in object keys.
const DayFormat = "2006-01-02"

// maxRangeDays bounds a Collect call.
const maxRangeDays = 366

// DefaultURLExpiry is the lifetime of presigned download URLs.
const DefaultURLExpiry = 5 * time.Minute

// Errors returned by the reader.
var (
	ErrNotConfigured = errors.New("archive bucket and credentials are required")
	ErrInvalidRange  = errors.New("invalid day range")
)

// Reader lists and fetches archived records.
type Reader struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewReader creates a reader for the store described by cfg.
func NewReader(cfg archive.Config) (*Reader, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = archive.DefaultRegion
	}
	if cfg.Prefix == "" {
		cfg.Prefix = archive.DefaultPrefix
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.Credentials.AccessKeyID,
			cfg.Credentials.SecretAccessKey,
			cfg.Credentials.SessionToken,
		)),
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.New(opts)
	return &Reader{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
	}, nil
}

// ListKeys returns every object key stored for t on day, in key order.
func (r *Reader) ListKeys(ctx context.Context, t archive.RecordType, day time.Time) (keys []string, err error) {
	ctx, endSpan := tracing.StartStorageSpan(ctx, r.bucket, tracing.StorageOperationList)
	defer func() { endSpan(err) }()

	prefix := archive.DayPrefix(r.prefix, t, day.UTC().Format(DayFormat))

	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Fetch downloads and decodes the record stored under key.
func (r *Reader) Fetch(ctx context.Context, key string) (rec archive.Record, err error) {
	ctx, endSpan := tracing.StartStorageSpan(ctx, r.bucket, tracing.StorageOperationGet)
	defer func() { endSpan(err) }()

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return archive.Record{}, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return archive.Record{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		return archive.Record{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return rec, nil
}

// Collect fetches every record of type t stored on the days from through to
// (inclusive), sorted by timestamp. Storage order says nothing about event
// order.
func (r *Reader) Collect(ctx context.Context, t archive.RecordType, from, to time.Time) (recs []archive.Record, err error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) || to.Sub(from) >= maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidRange, from.Format(DayFormat), to.Format(DayFormat))
	}

	ctx, endSpan := tracing.StartSpan(ctx, "retention.collect")
	defer func() { endSpan(err) }()

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		keys, err := r.ListKeys(ctx, t, day)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			rec, err := r.Fetch(ctx, key)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp() < recs[j].Timestamp()
	})
	return recs, nil
}

// PresignGet returns a time-limited download URL for key.
func (r *Reader) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return req.URL, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
