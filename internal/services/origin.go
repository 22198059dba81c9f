package services

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type OriginHints struct {
	IP        string
	UserAgent string
}

// OriginHasher turns raw origin identifiers into salted one-way digests.
type OriginHasher struct {
	key []byte
}

// NewOriginHasher keys blake2b with salt. blake2b caps keys at 64 bytes, so longer salts
// are digested first.
func NewOriginHasher(salt string) *OriginHasher {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &OriginHasher{key: key}
}

func (h *OriginHasher) Hash(kind, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// Only reachable with an oversized key, which NewOriginHasher prevents.
		panic(err)
	}
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *OriginHasher) HashIP(ip string) string { return h.Hash("ip", ip) }

func (h *OriginHasher) HashUserAgent(ua string) string { return h.Hash("ua", ua) }
