package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const sessionTokenRawSize = 32

// NewSessionToken returns an opaque, globally unique session token:
// 32 bytes of CSPRNG output, base64url without padding. The token carries
// no structure; it is only ever compared via the store's token index.
func NewSessionToken() (string, error) {
	var raw [sessionTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
