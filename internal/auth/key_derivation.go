package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyLength is the size of every derived key, sized for HMAC-SHA256.
const KeyLength = 32

// Purpose labels separate the keys derived from SESSION_SECRET. Changing a label
// rotates that key alone.
const (
	PurposeSession = "orbit-session-v1"
	PurposeCSRF    = "orbit-csrf-v1"
	PurposeFlash   = "orbit-flash-v1"
)

var ErrEmptySecret = errors.New("session secret is empty")

// Keys are the independent signing keys the server derives from its one secret.
type Keys struct {
	Session []byte
	CSRF    []byte
	Flash   []byte
}

// DeriveKeys expands secret into the session, CSRF, and flash keys.
func DeriveKeys(secret []byte) (Keys, error) {
	var keys Keys
	for _, k := range []struct {
		purpose string
		dst     *[]byte
	}{
		{PurposeSession, &keys.Session},
		{PurposeCSRF, &keys.CSRF},
		{PurposeFlash, &keys.Flash},
	} {
		key, err := DeriveKey(secret, k.purpose)
		if err != nil {
			return Keys{}, fmt.Errorf("derive %s key: %w", k.purpose, err)
		}
		*k.dst = key
	}
	return keys, nil
}

// DeriveKey runs HKDF-SHA256 over secret with purpose as the info parameter.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, err
	}
	return key, nil
}
