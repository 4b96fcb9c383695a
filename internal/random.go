package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JTILength is the fixed length of every generated token identifier.
const JTILength = 32

// MinJTIHexLength is the smallest random component accepted by NewJTI.
const MinJTIHexLength = 4

var errJTIHexLength = errors.New("jti random length must be >= 4")

// RandomHex hex-encodes n bytes read from crypto/rand (2n characters).
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random hex length")
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewJTI derives a token identifier from a random component of hexLength
// random bytes (hex encoded), the user id and the issuance instant at
// nanosecond precision. The result is the first JTILength hex characters of the
// SHA-256 digest of those parts.
//
// Identifiers are not guaranteed unique. With hexLength >= 4 a single user
// issuing tens of thousands of identifiers at the same instant sees only a
// handful of collisions per 100k.
func NewJTI(userID string, hexLength int, now time.Time) (string, error) {
	if hexLength < MinJTIHexLength {
		return "", errJTIHexLength
	}

	random, err := RandomHex(hexLength)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(2*hexLength + len(userID) + 20)
	b.WriteString(random)
	b.WriteString(userID)
	b.WriteString(strconv.FormatInt(now.UnixNano(), 10))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:JTILength], nil
}

// NewRefreshSecret returns the opaque secret handed to clients alongside an
// access token. Only its digest is ever persisted.
func NewRefreshSecret() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// HashRefreshSecret returns the lowercase hex SHA-256 digest of secret.
func HashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// RefreshDigestMatches reports whether secret hashes to digest. The
// comparison is constant time.
func RefreshDigestMatches(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	candidate := HashRefreshSecret(secret)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1
}
