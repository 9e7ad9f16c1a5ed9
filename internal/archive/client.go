package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/portal/internal/sigv4"
	"github.com/onnwee/portal/internal/tracing"
)

// Default values for the store configuration.
const (
	DefaultRegion       = "us-east-1"
	DefaultSSE          = "AES256"
	DefaultStorageClass = "STANDARD_IA"
	DefaultTimeout      = 10 * time.Second
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 1024

// Reason classifies why a record went to the fallback sink.
type Reason string

const (
	// ReasonUnconfigured means no bucket or credentials were configured.
	ReasonUnconfigured Reason = "unconfigured"
	// ReasonSigning means building or signing the request failed.
	ReasonSigning Reason = "signing"
	// ReasonTransport means the request failed or the store answered non-2xx.
	ReasonTransport Reason = "transport"
	// ReasonShutdown means the upload was still in flight when Drain gave up.
	ReasonShutdown Reason = "shutdown"
)

// UploadError describes a failed upload attempt.
type UploadError struct {
	Reason     Reason
	Key        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "archive %s failure for %s", e.Reason, e.Key)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrInvalidEndpoint is returned by NewClient for an unusable endpoint URL.
var ErrInvalidEndpoint = errors.New("archive endpoint must be an absolute http(s) URL")

// Config is the process-wide store configuration. It is read once at start
// and never mutated.
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	SSE          string
	StorageClass string
	Credentials  sigv4.Credentials

	// Endpoint optionally replaces the default https://{bucket}.s3.{region}.amazonaws.com.
	Endpoint string
	// PathStyle addresses objects as {endpoint}/{bucket}/{key}.
	PathStyle bool

	// MaxConcurrency caps concurrent dispatched uploads; 0 means unbounded.
	MaxConcurrency int
	Timeout        time.Duration
}

// Configured reports whether the bucket and key pair are all present.
func (c Config) Configured() bool {
	return c.Bucket != "" && c.Credentials.AccessKeyID != "" && c.Credentials.SecretAccessKey != ""
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.SSE == "" {
		c.SSE = DefaultSSE
	}
	if c.StorageClass == "" {
		c.StorageClass = DefaultStorageClass
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client archives records to the object store. It is safe for concurrent
// use; every attempt builds its own signing context and request.
type Client struct {
	cfg        Config
	endpoint   *url.URL
	signer     sigv4.Signer
	httpClient *http.Client
	sink       Sink
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]Record
}

// Option customizes a Client.
type Option func(*Client)

// WithSigner replaces the built-in HMAC signer.
func WithSigner(s sigv4.Signer) Option { return func(c *Client) { c.signer = s } }

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithSink replaces the stdout fallback sink.
func WithSink(s Sink) Option { return func(c *Client) { c.sink = s } }

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithClock overrides time.Now for signing.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// NewClient creates an archive client. An unconfigured store is not an
// error: the client then writes every record to the fallback sink.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:    cfg,
		signer: sigv4.NewHMACSigner(),
		sink:   NewStdoutSink(),
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(map[uint64]Record),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, cfg.Endpoint)
		}
		c.endpoint = u
	}

	if cfg.MaxConcurrency > 0 {
		c.sem = make(chan struct{}, cfg.MaxConcurrency)
	}

	return c, nil
}

// Configured reports whether records are sent to the object store.
func (c *Client) Configured() bool { return c.cfg.Configured() }

// Mode returns "archiving" when the store is configured, "fallback" otherwise.
func (c *Client) Mode() string {
	if c.Configured() {
		return "archiving"
	}
	return "fallback"
}

// Archive makes a single, synchronous attempt to store rec. It never returns
// an error and never panics: every failure ends in the fallback sink.
func (c *Client) Archive(ctx context.Context, rec Record) {
	ctx, endSpan := tracing.StartStorageSpan(ctx, c.cfg.Bucket, tracing.StorageOperationPut)
	var spanErr error
	defer func() { endSpan(spanErr) }()

	body, err := json.Marshal(rec)
	if err != nil {
		c.logger.ErrorContext(ctx, "archive record dropped", "type", rec.Type(), "error", err)
		spanErr = err
		c.metrics.incRecords(rec.Type(), OutcomeLost)
		return
	}

	if !c.cfg.Configured() {
		c.fallback(ctx, rec.Type(), body, &UploadError{Reason: ReasonUnconfigured})
		return
	}

	key := ObjectKey(c.cfg.Prefix, rec.Type(), rec.Timestamp())

	start := time.Now()
	err = c.safePut(ctx, key, body)
	c.metrics.observeUpload(rec.Type(), time.Since(start).Seconds())

	if err != nil {
		spanErr = err
		c.fallback(ctx, rec.Type(), body, err)
		return
	}

	c.metrics.incRecords(rec.Type(), OutcomeAcknowledged)
	c.logger.DebugContext(ctx, "archive record stored", "type", rec.Type(), "key", key)
}

// Dispatch archives rec in the background and returns immediately. The
// attempt is detached from ctx cancellation but keeps its values (trace
// span, request ID). Without a configured store there is no network step,
// so the record is written to the fallback sink before Dispatch returns and
// sink order follows call order.
func (c *Client) Dispatch(ctx context.Context, rec Record) {
	ctx = context.WithoutCancel(ctx)
	if !c.cfg.Configured() {
		c.Archive(ctx, rec)
		return
	}

	id := c.track(rec)
	c.wg.Add(1)
	c.metrics.addInFlight(1)
	go func() {
		defer c.wg.Done()
		defer c.metrics.addInFlight(-1)
		defer c.untrack(id)

		if c.sem != nil {
			c.sem <- struct{}{}
			defer func() { <-c.sem }()
		}
		c.Archive(ctx, rec)
	}()
}

func (c *Client) track(rec Record) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.pending[c.seq] = rec
	return c.seq
}

func (c *Client) untrack(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// Wait blocks until every dispatched attempt has reached a terminal state.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Drain waits for dispatched attempts like Wait, but only until ctx is done.
// Records still in flight at that point are written to the fallback sink
// and an error reports how many there were. An upload that completes after
// Drain gave up may leave a second copy in the store.
func (c *Client) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	ids := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	recs := make([]Record, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, c.pending[id])
		delete(c.pending, id)
	}
	c.mu.Unlock()

	flushCtx := context.WithoutCancel(ctx)
	for _, rec := range recs {
		body, err := json.Marshal(rec)
		if err != nil {
			c.logger.ErrorContext(flushCtx, "archive record dropped", "type", rec.Type(), "error", err)
			c.metrics.incRecords(rec.Type(), OutcomeLost)
			continue
		}
		c.fallback(flushCtx, rec.Type(), body, &UploadError{Reason: ReasonShutdown, Err: ctx.Err()})
	}
	return fmt.Errorf("%d archive uploads still in flight, written to fallback sink: %w", len(recs), ctx.Err())
}

func (c *Client) fallback(ctx context.Context, t RecordType, body []byte, err error) {
	var uerr *UploadError
	reason := ReasonTransport
	if errors.As(err, &uerr) {
		reason = uerr.Reason
	}

	if reason == ReasonUnconfigured {
		c.logger.DebugContext(ctx, "archive not configured, writing record to fallback sink", "type", t)
	} else {
		attrs := []any{"type", t, "reason", reason, "error", err}
		if uerr != nil && uerr.StatusCode != 0 {
			attrs = append(attrs, "status", uerr.StatusCode, "body", uerr.Body)
		}
		c.logger.WarnContext(ctx, "archive upload failed, writing record to fallback sink", attrs...)
	}

	c.metrics.incFallback(t, reason)
	tracing.AddEvent(ctx, "archive.fallback", attribute.String("reason", string(reason)))

	if werr := c.sink.Write(body); werr != nil {
		c.logger.ErrorContext(ctx, "fallback sink write failed", "type", t, "error", werr)
		c.metrics.incRecords(t, OutcomeLost)
		return
	}
	c.metrics.incRecords(t, OutcomeFallback)
}

// safePut converts a panic anywhere in signing or transport into an error.
func (c *Client) safePut(ctx context.Context, key string, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UploadError{Reason: ReasonSigning, Key: key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return c.put(ctx, key, body)
}

func (c *Client) put(ctx context.Context, key string, body []byte) error {
	u := c.objectURL(key)
	payloadHash := sigv4.HashHex(body)
	sc := sigv4.NewContext(c.now(), c.cfg.Region, sigv4.ServiceS3, c.cfg.Credentials)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(body))
	if err != nil {
		return &UploadError{Reason: ReasonSigning, Key: key, Err: err}
	}
	req.URL = u
	req.Host = u.Host

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sigv4.HeaderContentSHA256, payloadHash)
	req.Header.Set(sigv4.HeaderDate, sc.AmzDate())
	req.Header.Set(sigv4.HeaderSSE, c.cfg.SSE)
	req.Header.Set(sigv4.HeaderStorageClass, c.cfg.StorageClass)
	if token := c.cfg.Credentials.SessionToken; token != "" {
		req.Header.Set(sigv4.HeaderSecurityToken, token)
	}

	if err := c.signer.SignRequest(ctx, req, payloadHash, sc); err != nil {
		return &UploadError{Reason: ReasonSigning, Key: key, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UploadError{Reason: ReasonTransport, Key: key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UploadError{
			Reason:     ReasonTransport,
			Key:        key,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// objectURL resolves the request URL for key. RawPath carries the signed
// encoding so the wire path matches the canonical URI exactly.
func (c *Client) objectURL(key string) *url.URL {
	u := &url.URL{Scheme: "https"}
	path := "/" + key

	switch {
	case c.endpoint == nil:
		u.Host = c.cfg.Bucket + ".s3." + c.cfg.Region + ".amazonaws.com"
	case c.cfg.PathStyle:
		u.Scheme = c.endpoint.Scheme
		u.Host = c.endpoint.Host
		path = strings.TrimSuffix(c.endpoint.Path, "/") + "/" + c.cfg.Bucket + "/" + key
	default:
		u.Scheme = c.endpoint.Scheme
		u.Host = c.cfg.Bucket + "." + c.endpoint.Host
	}

	u.Path = path
	u.RawPath = sigv4.EncodePath(path)
	return u
}
