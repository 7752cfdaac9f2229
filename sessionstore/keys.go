package sessionstore

import (
	"crypto/sha256"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

// newCodecs builds the secure cookie codecs from the caller-supplied
// secret keying material.
func newCodecs(secret []byte) []securecookie.Codec {
	hashKey, encryptKey := newKeyPair(secret)
	return securecookie.CodecsFromPairs(hashKey, encryptKey)
}

// newKeyPair takes a secret and prepares two keys using the HKDF key
// derivation function.
func newKeyPair(secret []byte) ([]byte, []byte) {
	hash := sha256.New
	kdf := hkdf.New(hash, secret, nil, nil)

	hashKey := make([]byte, 32)
	encryptKey := make([]byte, 32)
	kdf.Read(hashKey)
	kdf.Read(encryptKey)

	return hashKey, encryptKey
}
