// Package secrets seals small credentials stored in the database, such as the
// Discord bot token in tax_settings.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

var (
	ErrInvalidKey    = errors.New("settings key must be 32 bytes hex encoded")
	ErrCorruptSecret = errors.New("sealed secret is corrupt")
)

// Box seals values with NaCl secretbox. A nil *Box stores values as given,
// which keeps development setups working without a key.
type Box struct {
	key [32]byte
}

func NewBox(hexKey string) (*Box, error) {
	if hexKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	box := &Box{}
	copy(box.key[:], raw)
	return box, nil
}

func (b *Box) Seal(plain string) (string, error) {
	if b == nil || plain == "" {
		return plain, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is so
// rows written before a key was configured stay readable.
func (b *Box) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if b == nil {
		return "", ErrInvalidKey
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrCorruptSecret
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrCorruptSecret
	}
	return string(plain), nil
}
