package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"
)

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// DeriveSigningKey derives the 32-byte signing key for a single
// (date, region, service) triple from the long-lived secret.
func DeriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte(keyPrefix+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, scopeTerminator)
}

// KeyCache memoizes the most recently derived signing key. Keys are only
// valid for one calendar day, so a single slot is enough: the first request
// after midnight UTC replaces it.
type KeyCache struct {
	mu    sync.Mutex
	id    cacheID
	key   []byte
	valid bool
}

type cacheID struct {
	secret, date, region, service string
}

// Key returns the signing key for the given inputs, deriving it on a miss.
// The returned slice is a copy and may be retained by the caller.
func (c *KeyCache) Key(secret, dateStamp, region, service string) []byte {
	id := cacheID{secret: secret, date: dateStamp, region: region, service: service}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid || c.id != id {
		c.key = DeriveSigningKey(secret, dateStamp, region, service)
		c.id = id
		c.valid = true
	}

	out := make([]byte, len(c.key))
	copy(out, c.key)
	return out
}
