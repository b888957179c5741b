// Package hash provides the digest strategies used to fingerprint report rows.
package hash

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Strategy names accepted by New.
const (
	MD5       = "md5"
	MD5Int32  = "md5-int32"
	XXHash64  = "xxhash64"
	SHA256128 = "sha256-128"
)

// Hasher digests bytes into a printable string.
type Hasher struct {
	name string
	fn   func([]byte) string
}

// New returns the named strategy. An empty name selects MD5.
func New(name string) (*Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MD5:
		return &Hasher{name: MD5, fn: md5Hex}, nil
	case MD5Int32:
		return &Hasher{name: MD5Int32, fn: md5Int32}, nil
	case XXHash64:
		return &Hasher{name: XXHash64, fn: xxhash64}, nil
	case SHA256128:
		return &Hasher{name: SHA256128, fn: sha256Truncated}, nil
	default:
		return nil, fmt.Errorf("unknown digest strategy %q", name)
	}
}

// Name reports the strategy name.
func (h *Hasher) Name() string {
	return h.name
}

// Hash digests data.
func (h *Hasher) Hash(data []byte) string {
	return h.fn(data)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // content addressing
	return hex.EncodeToString(sum[:])
}

// md5Int32 keeps the first 32 bits of the MD5 as an unsigned decimal.
func md5Int32(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // content addressing
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(sum[:4])), 10)
}

func xxhash64(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func sha256Truncated(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
