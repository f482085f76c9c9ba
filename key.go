package sessionstore

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
)

const (
	keyEntropyBytes = 32
	// encodedKeyLen is base64.RawURLEncoding.EncodedLen(keyEntropyBytes).
	encodedKeyLen = 43
)

// KeyGenerator produces fresh session keys.
type KeyGenerator func() (string, error)

var keyBufferPool = sync.Pool{
	New: func() any {
		// 32 bytes of raw entropy followed by its 43 byte encoding.
		b := make([]byte, keyEntropyBytes+encodedKeyLen)
		return &b
	},
}

// GenerateKey returns a URL-safe session key carrying 256 bits of entropy
// read from crypto/rand.
func GenerateKey() (string, error) {
	ptr := keyBufferPool.Get().(*[]byte)
	b := *ptr
	defer func() {
		clear(b)
		keyBufferPool.Put(ptr)
	}()

	entropy := b[:keyEntropyBytes]
	if _, err := io.ReadFull(rand.Reader, entropy); err != nil {
		return "", fmt.Errorf("failed to read session key entropy: %w", err)
	}

	dst := b[keyEntropyBytes:]
	base64.RawURLEncoding.Encode(dst, entropy)
	return string(dst), nil
}

// validKeyChars is a lookup table for the base64url alphabet.
var validKeyChars = [256]bool{}

func init() {
	for i := 0; i < len(validKeyChars); i++ {
		c := byte(i)
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			validKeyChars[i] = true
		}
	}
}

// IsValidKey reports whether key has the shape produced by GenerateKey.
func IsValidKey(key string) bool {
	if len(key) != encodedKeyLen {
		return false
	}
	for i := 0; i < encodedKeyLen; i++ {
		if !validKeyChars[key[i]] {
			return false
		}
	}
	return true
}
