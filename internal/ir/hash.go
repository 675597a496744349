package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed hashes.
// The version suffix leaves room for a future algorithm change.
const (
	DomainETag = "hookpoint/etag/v1"
	DomainKey  = "hookpoint/key/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ETag computes the concurrency token of a resource from its canonical
// form. Two rows with the same property values always share an ETag,
// regardless of map iteration order or Unicode normalization.
func ETag(resource IRObject) (string, error) {
	canonical, err := MarshalCanonical(resource)
	if err != nil {
		return "", fmt.Errorf("ETag: failed to marshal: %w", err)
	}
	return `W/"` + hashWithDomain(DomainETag, canonical)[:32] + `"`, nil
}

// KeyString renders an entity key as a stable string. Single-property keys
// render as the canonical JSON of that value; composite keys render as the
// canonical JSON of the key object.
func KeyString(key IRObject) (string, error) {
	if len(key) == 1 {
		for _, v := range key {
			b, err := MarshalCanonical(v)
			if err != nil {
				return "", fmt.Errorf("KeyString: %w", err)
			}
			return string(b), nil
		}
	}
	b, err := MarshalCanonical(key)
	if err != nil {
		return "", fmt.Errorf("KeyString: %w", err)
	}
	return string(b), nil
}

// KeyHash is a fixed-width digest of KeyString, usable as an index column.
func KeyHash(key IRObject) (string, error) {
	s, err := KeyString(key)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainKey, []byte(s)), nil
}

// MustETag is like ETag but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustETag(resource IRObject) string {
	tag, err := ETag(resource)
	if err != nil {
		panic(err)
	}
	return tag
}
