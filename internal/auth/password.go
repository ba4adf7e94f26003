package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned for strings that are not argon2id PHC hashes.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// argonParams are the Argon2id cost settings stored in a PHC string.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// currentParams follow the OWASP Argon2id minimum (m=64MiB, t=3, p=1).
var currentParams = argonParams{memory: 64 * 1024, time: 3, threads: 1}

const (
	saltLen = 16
	keyLen  = 32
)

var b64 = base64.RawStdEncoding

// phc is a decoded "$argon2id$v=19$m=...,t=...,p=...$salt$key" string.
type phc struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.params.memory, p.params.time, p.params.threads,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func parsePHC(s string) (phc, error) {
	var p phc
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, fmt.Errorf("%w: expected 5 $-separated fields", ErrMalformedHash)
	}
	if fields[1] != "argon2id" {
		return p, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, fields[1])
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	for _, kv := range strings.Split(fields[3], ",") {
		name, val, _ := strings.Cut(kv, "=")
		var bits int
		var dst func(uint64)
		switch name {
		case "m":
			bits, dst = 32, func(v uint64) { p.params.memory = uint32(v) }
		case "t":
			bits, dst = 32, func(v uint64) { p.params.time = uint32(v) }
		case "p":
			bits, dst = 8, func(v uint64) { p.params.threads = uint8(v) }
		default:
			return p, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		n, err := strconv.ParseUint(val, 10, bits)
		if err != nil {
			return p, fmt.Errorf("%w: parameter %q: %w", ErrMalformedHash, kv, err)
		}
		dst(n)
	}
	if p.params.memory == 0 || p.params.time == 0 || p.params.threads == 0 {
		return p, fmt.Errorf("%w: parameters must be positive", ErrMalformedHash)
	}

	var err error
	if p.salt, err = b64.DecodeString(fields[4]); err != nil || len(p.salt) == 0 {
		return p, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = b64.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}

func derive(password string, salt []byte, params argonParams, n int) []byte {
	return argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(n)) //nolint:gosec // n is a decoded key length
}

// HashPassword returns the Argon2id PHC string for password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return phc{
		params: currentParams,
		salt:   salt,
		key:    derive(password, salt, currentParams, keyLen),
	}.String(), nil
}

// VerifyPassword reports whether password matches encoded. The comparison
// runs in constant time with respect to the key.
func VerifyPassword(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.key, derive(password, p.salt, p.params, len(p.key))) == 1, nil
}

// ValidateHash checks that encoded is a usable Argon2id PHC string.
func ValidateHash(encoded string) error {
	_, err := parsePHC(encoded)
	return err
}

// NeedsRehash reports whether encoded was produced with cheaper settings
// than HashPassword uses today. Malformed hashes need a rehash too.
func NeedsRehash(encoded string) bool {
	p, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return p.params.memory < currentParams.memory ||
		p.params.time < currentParams.time ||
		len(p.key) < keyLen
}
