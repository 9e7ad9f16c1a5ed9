// Package sigv4 implements the keyed-hash request signing protocol used to
// authenticate uploads to the log archive object store (AWS Signature
// Version 4, header form).
//
// The package is split the same way the protocol is: a canonical request
// builder, a signing-key deriver, and a signer that combines the two into an
// Authorization header. Every function except the Signer implementations is
// pure and can be checked against the published test vectors.
package sigv4

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Protocol constants.
const (
	// Algorithm identifies the signing algorithm in the string to sign and
	// the Authorization header.
	Algorithm = "AWS4-HMAC-SHA256"

	// ServiceS3 is the only service name this system signs for.
	ServiceS3 = "s3"

	// TimeFormat is the compact UTC timestamp used for x-amz-date.
	TimeFormat = "20060102T150405Z"

	// DateFormat is the date stamp used in the credential scope.
	DateFormat = "20060102"

	scopeTerminator = "aws4_request"
	keyPrefix       = "AWS4"
)

// Header names attached to every signed upload.
const (
	HeaderAuthorization = "Authorization"
	HeaderContentSHA256 = "X-Amz-Content-Sha256"
	HeaderDate          = "X-Amz-Date"
	HeaderSecurityToken = "X-Amz-Security-Token"
	HeaderSSE           = "X-Amz-Server-Side-Encryption"
	HeaderStorageClass  = "X-Amz-Storage-Class"
)

// EmptyPayloadHash is the hex SHA-256 of an empty body.
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// HashHex returns the lowercase hex SHA-256 digest of b.
func HashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EncodePath percent-encodes each path segment, leaving slashes in place.
// Only RFC 3986 unreserved characters pass through unescaped.
// An empty path encodes to "/".
func EncodePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = encodeSegment(seg)
	}
	return strings.Join(segments, "/")
}

const upperhex = "0123456789ABCDEF"

func encodeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// CanonicalHeaders lowercases header names, trims leading and trailing
// whitespace from values and sorts by name. It returns the newline-terminated
// header block and the semicolon-joined signed header list.
//
// Internal whitespace in values is preserved. If two names differ only in
// case, the later one in sort order of the original names wins.
func CanonicalHeaders(headers map[string]string) (block, signed string) {
	lowered := make(map[string]string, len(headers))
	originals := make([]string, 0, len(headers))
	for name := range headers {
		originals = append(originals, name)
	}
	sort.Strings(originals)
	for _, name := range originals {
		lowered[strings.ToLower(name)] = strings.TrimSpace(headers[name])
	}

	names := make([]string, 0, len(lowered))
	for name := range lowered {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(lowered[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

// CanonicalRequest assembles the canonical request string for a request with
// an empty query string. canonicalURI must already be encoded (see EncodePath).
func CanonicalRequest(method, canonicalURI string, headers map[string]string, payloadHash string) (canonical, signedHeaders string) {
	block, signed := CanonicalHeaders(headers)
	canonical = strings.Join([]string{
		method,
		canonicalURI,
		"", // query string
		block,
		signed,
		payloadHash,
	}, "\n")
	return canonical, signed
}
