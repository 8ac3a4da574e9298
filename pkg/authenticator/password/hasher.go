package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrInvalidHash   = errors.New("password: invalid hash")
	ErrInvalidConfig = errors.New("password: invalid config")
)

const (
	encodingScheme = "pbkdf2"
	hashFunction   = "sha256"
)

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
}

type PBKDF2Options struct {
	Iterations int
	SaltBytes  int
	KeyBytes   int
}

// PBKDF2Hasher encodes hashes as pbkdf2$sha256$<iterations>$<salt>$<key>
// with unpadded standard base64 fields.
type PBKDF2Hasher struct {
	options PBKDF2Options
}

var _ Hasher = (*PBKDF2Hasher)(nil)

func DefaultPBKDF2Options() PBKDF2Options {
	return PBKDF2Options{
		Iterations: 120000,
		SaltBytes:  16,
		KeyBytes:   32,
	}
}

func NewPBKDF2Hasher(options PBKDF2Options) *PBKDF2Hasher {
	defaults := DefaultPBKDF2Options()

	if options.Iterations <= 0 {
		options.Iterations = defaults.Iterations
	}
	if options.SaltBytes <= 0 {
		options.SaltBytes = defaults.SaltBytes
	}
	if options.KeyBytes <= 0 {
		options.KeyBytes = defaults.KeyBytes
	}
	return &PBKDF2Hasher{options: options}
}

func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	if h == nil || password == "" {
		return "", ErrInvalidConfig
	}

	salt := make([]byte, h.options.SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	derived := pbkdf2.Key([]byte(password), salt, h.options.Iterations, h.options.KeyBytes, sha256.New)

	return fmt.Sprintf(
		"%s$%s$%d$%s$%s",
		encodingScheme,
		hashFunction,
		h.options.Iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived),
	), nil
}

// Verify reports whether password matches encodedHash. The iteration count
// and key length come from the hash, so hashes made with other options
// still verify.
func (h *PBKDF2Hasher) Verify(password string, encodedHash string) (bool, error) {
	if h == nil || password == "" {
		return false, ErrInvalidConfig
	}

	decoded, err := parseEncodedHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := pbkdf2.Key([]byte(password), decoded.salt, decoded.iterations, len(decoded.key), sha256.New)
	return subtle.ConstantTimeCompare(candidate, decoded.key) == 1, nil
}

type encodedHash struct {
	iterations int
	salt       []byte
	key        []byte
}

func parseEncodedHash(value string) (encodedHash, error) {
	parts := strings.Split(value, "$")
	if len(parts) != 5 || parts[0] != encodingScheme || parts[1] != hashFunction {
		return encodedHash{}, ErrInvalidHash
	}

	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return encodedHash{}, ErrInvalidHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return encodedHash{}, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return encodedHash{}, ErrInvalidHash
	}

	return encodedHash{iterations: iterations, salt: salt, key: key}, nil
}
