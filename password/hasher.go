package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

var (
	// ErrTooShort is returned by Hash for passwords under Config.MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned for passwords over Config.MaxLength bytes.
	ErrTooLong = errors.New("password too long")
	// ErrUnsupportedHash is returned by Verify for an unknown hash format.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Config holds Argon2id cost parameters and the length policy.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int
	MaxLength int
}

// DefaultConfig returns interactive-login Argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   10,
		MaxLength:   1024,
	}
}

// Hasher hashes new passwords with Argon2id and verifies both Argon2id and
// legacy bcrypt hashes.
type Hasher struct {
	config Config
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// CheckPolicy reports whether plain satisfies the length policy.
func (h *Hasher) CheckPolicy(plain string) error {
	if len(plain) < h.config.MinLength {
		return ErrTooShort
	}
	if h.config.MaxLength > 0 && len(plain) > h.config.MaxLength {
		return ErrTooLong
	}
	return nil
}

// Hash returns a PHC-encoded Argon2id hash of plain. Bytes are used as given,
// without Unicode normalization.
func (h *Hasher) Hash(plain string) (string, error) {
	if err := h.CheckPolicy(plain); err != nil {
		return "", err
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plain), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)
	return encodePHC(phc{
		memory:      h.config.Memory,
		time:        h.config.Time,
		parallelism: h.config.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify compares plain against encoded. A mismatch is (false, nil); an
// unreadable hash is an error.
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	if h.config.MaxLength > 0 && len(plain) > h.config.MaxLength {
		return false, ErrTooLong
	}

	switch {
	case strings.HasPrefix(encoded, "$"+argonID+"$"):
		parsed, err := parsePHC(encoded)
		if err != nil {
			return false, err
		}
		key := argon2.IDKey([]byte(plain), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
		return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encoded should be replaced by a fresh Hash,
// either because it is bcrypt or because its Argon2 cost is below the
// configured parameters.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	parsed, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return parsed.memory < h.config.Memory ||
		parsed.time < h.config.Time ||
		parsed.parallelism < h.config.Parallelism ||
		uint32(len(parsed.key)) != h.config.KeyLength
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func (c Config) validate() error {
	if c.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if c.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if c.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if c.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if c.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if c.MinLength < 1 {
		return errors.New("password min length must be >= 1")
	}
	if c.MaxLength > 0 && c.MaxLength < c.MinLength {
		return errors.New("password max length must be >= min length")
	}
	return nil
}
