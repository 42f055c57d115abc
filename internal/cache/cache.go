// Package cache stores verification verdicts keyed by image digest so that
// re-submitting an identical photo does not trigger another remote call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// VerdictKey builds the cache key for a verdict produced by provider/model
// for the image with the given digest
func VerdictKey(provider, model, imageDigest string) string {
	hash := sha256.Sum256([]byte(strings.Join([]string{provider, model, imageDigest}, "\x00")))
	return "virasat:verdict:v1:" + hex.EncodeToString(hash[:])
}
