package imagecache

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"photo-gallery/internal/filesystem"

	"golang.org/x/crypto/blake2b"
)

// KeyMode selects how a source URI is turned into a cache key.
type KeyMode string

const (
	// KeyModeSegment keys entries by the last "/" segment of the URI. Two
	// sources with the same file name share one entry.
	KeyModeSegment KeyMode = "segment"
	// KeyModeHash keys entries by a blake2b-256 digest of the normalized URI.
	KeyModeHash KeyMode = "hash"
)

// ParseKeyMode parses a key mode name; the empty string selects
// KeyModeSegment.
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyModeSegment:
		return KeyModeSegment, nil
	case KeyModeHash:
		return KeyModeHash, nil
	}
	return "", fmt.Errorf("unknown cache key mode %q", s)
}

// DeriveKey returns the cache key for sourceURI under mode.
func DeriveKey(mode KeyMode, sourceURI string) string {
	if mode == KeyModeHash {
		sum := blake2b.Sum256([]byte(normalizeURI(sourceURI)))
		return hex.EncodeToString(sum[:])
	}

	seg := sourceURI[strings.LastIndex(sourceURI, "/")+1:]
	if seg == "" {
		return sourceURI
	}
	return seg
}

// normalizeURI maps equivalent spellings of a local file onto one string,
// so "file:///a/./b.jpg" and "/a/b.jpg" hash the same.
func normalizeURI(uri string) string {
	uri = strings.TrimSpace(uri)
	p := filesystem.PathFromURI(uri)
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return uri
}
