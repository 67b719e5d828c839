package auth

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 12

// HashSecret produces the bcrypt form accepted in AUTH_API_KEYS.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func CompareSecret(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
