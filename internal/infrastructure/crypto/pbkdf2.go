// Package crypto implements password hashing for the account domain.
package crypto

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

	"github.com/ndmx/upscale/internal/domain/account"
)

const (
	// DefaultIterations follows the current OWASP guidance for PBKDF2-HMAC-SHA256.
	DefaultIterations = 600_000

	saltLength = 16
	keyLength  = 32
	prefix     = "pbkdf2:sha256:"
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// PBKDF2Hasher hashes passwords as pbkdf2:sha256:<iterations>$<salt>$<key>
// with base64 (raw, std alphabet) salt and key.
type PBKDF2Hasher struct {
	iterations int
}

var _ account.PasswordHasher = (*PBKDF2Hasher)(nil)

// NewPBKDF2Hasher creates a hasher. Non-positive iterations fall back to the default.
func NewPBKDF2Hasher(iterations int) *PBKDF2Hasher {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &PBKDF2Hasher{iterations: iterations}
}

// Hash derives a new salted key for password.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyLength, sha256.New)

	return fmt.Sprintf("%s%d$%s$%s", prefix, h.iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Compare reports whether password matches encoded. The key comparison is
// constant time; a malformed hash never matches.
func (h *PBKDF2Hasher) Compare(encoded, password string) bool {
	iterations, salt, want, err := parse(encoded)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsRehash reports whether encoded was produced with a different work factor.
func (h *PBKDF2Hasher) NeedsRehash(encoded string) bool {
	iterations, _, _, err := parse(encoded)
	return err != nil || iterations != h.iterations
}

func parse(encoded string) (int, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, prefix)
	if !ok {
		return 0, nil, nil, ErrMalformedHash
	}
	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return 0, nil, nil, ErrMalformedHash
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return 0, nil, nil, ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, ErrMalformedHash
	}
	return iterations, salt, key, nil
}
