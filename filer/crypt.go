package filer

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecrypt = errors.New("cannot decrypt SMB password")

// SealPassword encrypts an SMB password with the out-of-database key. The
// 24-byte nonce is prepended to the box.
func SealPassword(password string, key [32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(password), &nonce, &key), nil
}

// OpenPassword decrypts a sealed password.
func OpenPassword(sealed []byte, key [32]byte) (string, error) {
	if len(sealed) < 24 {
		return "", ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
