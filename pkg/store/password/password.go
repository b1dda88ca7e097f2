// Package password provides argon2id password hashing in the PHC string
// format ($argon2id$v=19$m=...,t=...,p=...$salt$hash). It is shared by
// the credential store implementations; nothing outside a store ever
// sees a hash.
package password

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

const algorithm = "argon2id"

// Params control the argon2id cost. Memory is in KiB.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns costs suitable for server-side interactive login.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates the parameters and returns a Hasher. Minimums are
// enforced so a misconfigured deployment cannot silently weaken hashes.
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.Memory < 8*1024:
		return nil, errors.New("password: memory must be at least 8192 KiB")
	case p.Time < 1:
		return nil, errors.New("password: time cost must be at least 1")
	case p.Parallelism < 1:
		return nil, errors.New("password: parallelism must be at least 1")
	case p.SaltLength < 16:
		return nil, errors.New("password: salt length must be at least 16")
	case p.KeyLength < 16:
		return nil, errors.New("password: key length must be at least 16")
	}
	return &Hasher{params: p}, nil
}

// Hash derives a PHC-format hash from the password with a fresh random
// salt. The password is used byte-for-byte as provided.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether the password matches the encoded hash. The
// comparison is constant-time. An error indicates a hash that cannot be
// parsed, not a mismatch.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt,
		p.Time, p.Memory, p.Parallelism, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, errors.New("password: malformed hash")
	}
	if parts[1] != algorithm {
		return p, nil, nil, fmt.Errorf("password: unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errors.New("password: unsupported argon2 version")
	}

	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return p, nil, nil, errors.New("password: malformed parameters")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return p, nil, nil, errors.New("password: malformed parameters")
		}
		switch k {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return p, nil, nil, errors.New("password: malformed parameters")
			}
			p.Parallelism = uint8(n)
		default:
			return p, nil, nil, fmt.Errorf("password: unknown parameter %q", k)
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return p, nil, nil, errors.New("password: missing parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.New("password: malformed salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errors.New("password: malformed key")
	}

	return p, salt, key, nil
}
