// Package crypto seals secrets at rest and signs realtime webhook payloads.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed files are PBKDF2-HMAC-SHA256 keyed AES-256-GCM. The iteration
// count follows the OWASP floor for SHA-256.
const (
	kdfIterations = 480_000
	kdfSaltLen    = 16
	kdfKeyLen     = 32
	sealedVersion = 1
)

var errEmptyPassword = errors.New("crypto: password must not be empty")

// sealedFile is the JSON written by the sealsecret tool. []byte fields
// encode as standard base64.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SecretConfig names where a secret such as the database DSN comes from.
// Plain wins; otherwise SealedPath is opened with Password.
type SecretConfig struct {
	Plain      string
	SealedPath string
	Password   string
}

// SealSecret encrypts secret under password and returns the indented JSON
// to store on disk.
func SealSecret(secret, password string) ([]byte, error) {
	if password == "" {
		return nil, errEmptyPassword
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("crypto: secret must not be empty")
	}

	f := sealedFile{Version: sealedVersion, Salt: make([]byte, kdfSaltLen)}
	if _, err := rand.Read(f.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := passwordAEAD(password, f.Salt)
	if err != nil {
		return nil, err
	}
	f.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(f.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	f.Ciphertext = aead.Seal(nil, f.Nonce, []byte(secret), nil)
	return json.MarshalIndent(f, "", "  ")
}

// OpenSecret reverses SealSecret. A wrong password fails authentication.
func OpenSecret(sealed []byte, password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	var f sealedFile
	if err := json.Unmarshal(sealed, &f); err != nil {
		return "", fmt.Errorf("crypto: parse sealed secret: %w", err)
	}
	if f.Version != sealedVersion {
		return "", fmt.Errorf("crypto: sealed secret version %d not supported", f.Version)
	}
	aead, err := passwordAEAD(password, f.Salt)
	if err != nil {
		return "", err
	}
	if len(f.Nonce) != aead.NonceSize() {
		return "", fmt.Errorf("crypto: nonce is %d bytes, want %d", len(f.Nonce), aead.NonceSize())
	}
	plain, err := aead.Open(nil, f.Nonce, f.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open sealed secret (wrong password?): %w", err)
	}
	return string(plain), nil
}

func passwordAEAD(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}

// LoadSecret resolves cfg to the secret value.
func LoadSecret(cfg SecretConfig) (string, error) {
	switch {
	case cfg.Plain != "":
		return cfg.Plain, nil
	case cfg.SealedPath != "":
		data, err := os.ReadFile(cfg.SealedPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read sealed secret: %w", err)
		}
		return OpenSecret(data, cfg.Password)
	}
	return "", errors.New("crypto: no secret configured (set a plain value or a sealed file)")
}
