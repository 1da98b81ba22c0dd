package security

import "golang.org/x/crypto/bcrypt"

// Cost is the bcrypt work factor used for every stored password.
const Cost = 10

// MaxPasswordBytes is bcrypt's input limit; it counts bytes, not runes.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct{}

func NewHasher() Hasher {
	return Hasher{}
}

// Hash password hashes a plain text password with bcrypt. The salt is
// generated per call by the bcrypt package.
func (Hasher) Hash(plain string) (string, error) {
	return HashPassword(plain)
}

func (Hasher) Verify(plain, hash string) bool {
	return CheckPassword(hash, plain) == nil
}

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// helper that compares a bcrypt hash with a plaintext password.

func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
