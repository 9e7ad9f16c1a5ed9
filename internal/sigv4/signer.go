package sigv4

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrMissingCredentials is returned when a signing context has no access key
// id or no secret access key.
var ErrMissingCredentials = errors.New("sigv4: access key id and secret access key are required")

// Credentials is the long-lived key pair plus an optional session token.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Context carries everything a single signing attempt needs. It is created
// per request and never shared.
type Context struct {
	Time        time.Time
	Region      string
	Service     string
	Credentials Credentials
}

// NewContext builds a signing context for now, normalized to UTC.
func NewContext(now time.Time, region, service string, creds Credentials) Context {
	return Context{
		Time:        now.UTC(),
		Region:      region,
		Service:     service,
		Credentials: creds,
	}
}

// AmzDate returns the compact UTC timestamp (YYYYMMDDTHHMMSSZ).
func (c Context) AmzDate() string { return c.Time.UTC().Format(TimeFormat) }

// DateStamp returns the YYYYMMDD date of the context.
func (c Context) DateStamp() string { return c.Time.UTC().Format(DateFormat) }

// Scope returns the credential scope date/region/service/aws4_request.
func (c Context) Scope() string {
	return strings.Join([]string{c.DateStamp(), c.Region, c.Service, scopeTerminator}, "/")
}

// StringToSign joins the algorithm, timestamp, scope and the hashed canonical
// request.
func StringToSign(amzDate, scope, canonicalRequest string) string {
	return strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		HashHex([]byte(canonicalRequest)),
	}, "\n")
}

// Signature returns the hex HMAC-SHA256 of stringToSign under key.
func Signature(key []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(key, stringToSign))
}

// AuthorizationHeader formats the Authorization header value.
func AuthorizationHeader(accessKeyID, scope, signedHeaders, signature string) string {
	return Algorithm +
		" Credential=" + accessKeyID + "/" + scope +
		", SignedHeaders=" + signedHeaders +
		", Signature=" + signature
}

// SignCanonical signs an already built canonical request and returns the
// Authorization header value.
func SignCanonical(canonicalRequest, signedHeaders string, sc Context, key []byte) string {
	sts := StringToSign(sc.AmzDate(), sc.Scope(), canonicalRequest)
	return AuthorizationHeader(sc.Credentials.AccessKeyID, sc.Scope(), signedHeaders, Signature(key, sts))
}

// Signer attaches an Authorization header to an outgoing request. The caller
// has already set every header that must be covered by the signature,
// including x-amz-date and x-amz-content-sha256.
type Signer interface {
	SignRequest(ctx context.Context, req *http.Request, payloadHash string, sc Context) error
}

// HMACSigner is the built-in Signer. It signs the host header plus every
// header present on the request.
type HMACSigner struct {
	keys KeyCache
}

// NewHMACSigner returns a signer with an empty per-day key cache.
func NewHMACSigner() *HMACSigner {
	return &HMACSigner{}
}

// SignRequest implements Signer.
func (s *HMACSigner) SignRequest(_ context.Context, req *http.Request, payloadHash string, sc Context) error {
	if sc.Credentials.AccessKeyID == "" || sc.Credentials.SecretAccessKey == "" {
		return ErrMissingCredentials
	}

	headers := RequestHeaders(req)
	canonical, signed := CanonicalRequest(req.Method, EncodePath(req.URL.Path), headers, payloadHash)
	key := s.keys.Key(sc.Credentials.SecretAccessKey, sc.DateStamp(), sc.Region, sc.Service)

	req.Header.Set(HeaderAuthorization, SignCanonical(canonical, signed, sc, key))
	return nil
}

// RequestHeaders collects the headers of req that take part in signing:
// host plus everything on req.Header except Authorization. Repeated values
// are comma joined.
func RequestHeaders(req *http.Request) map[string]string {
	headers := make(map[string]string, len(req.Header)+1)
	for name, values := range req.Header {
		if strings.EqualFold(name, HeaderAuthorization) {
			continue
		}
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.TrimSpace(v)
		}
		headers[name] = strings.Join(trimmed, ",")
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	headers["host"] = host
	return headers
}
