package auth

import "golang.org/x/crypto/bcrypt"

// HashKey hashes a plaintext operator key with the given cost.
func HashKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareKey verifies an operator key against its stored hash.
func CompareKey(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
