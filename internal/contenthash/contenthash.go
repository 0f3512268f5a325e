// Package contenthash derives the keys under which thumbnails are cached.
//
// Two schemes exist. FromBytes hashes the file content and is exact but
// needs the file read first. FromIdentity hashes the path, size and
// modification time, so a cache lookup can happen before any read; a
// changed modification time yields a new key, which invalidates stale
// thumbnails without touching the file.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Size is the length of a Hash in bytes.
const Size = sha256.Size

// Hash is a SHA-256 digest used as the thumbnail store's primary key.
type Hash [Size]byte

// FromBytes hashes raw file content.
func FromBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// FromIdentity hashes the textual identity
// "path=<path>;size=<size>;time=<epoch-seconds>".
func FromIdentity(path string, size int64, modTime time.Time) Hash {
	return Hash(sha256.Sum256([]byte(IdentityKey(path, size, modTime))))
}

// IdentityKey returns the string FromIdentity hashes.
func IdentityKey(path string, size int64, modTime time.Time) string {
	return "path=" + path + ";size=" + strconv.FormatInt(size, 10) + ";time=" + strconv.FormatInt(modTime.Unix(), 10)
}

// ParseHex parses the form produced by Hash.String.
func ParseHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != Size {
		return h, fmt.Errorf("invalid hash %q: want %d bytes, got %d", s, Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns the digest as a slice, suitable for a BLOB column.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the lowercase hex digest.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}
