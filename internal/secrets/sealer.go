// Package secrets seals configuration values with AES-256-GCM so credentials
// such as datasource DSNs can live in settings files. A sealed value is the
// prefix "enc:" followed by base64 of nonce||ciphertext.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Prefix marks a sealed value.
const Prefix = "enc:"

const defaultIterations = 100_000

// ErrNoKey is returned when a sealed value is met but no key was configured.
var ErrNoKey = errors.New("sealed value found but no secret key is configured")

// KeyConfig selects the sealing key. MasterKey wins over Passphrase.
type KeyConfig struct {
	MasterKey  []byte // exactly 32 bytes
	Passphrase string
	Salt       []byte // required with Passphrase
	Iterations int    // PBKDF2 rounds, default 100000
}

// Sealer encrypts and decrypts values with one key.
type Sealer struct {
	aead cipher.AEAD
}

// New derives the key described by cfg.
func New(cfg KeyConfig) (*Sealer, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func deriveKey(cfg KeyConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, errors.New("either a master key or a passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, errors.New("salt is required with a passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool { return strings.HasPrefix(v, Prefix) }

// Seal encrypts plain under a fresh random nonce.
func (s *Sealer) Seal(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the prefix are returned as is.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", errors.New("sealed value too short")
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt sealed value: %w", err)
	}
	return string(plain), nil
}

// Reveal opens v with s. A nil Sealer passes plain values through and fails
// with ErrNoKey on sealed ones.
func Reveal(s *Sealer, v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if s == nil {
		return "", ErrNoKey
	}
	return s.Open(v)
}
