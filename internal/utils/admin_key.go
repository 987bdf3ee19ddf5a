package utils

import "golang.org/x/crypto/bcrypt"

// HashAdminKey returns the bcrypt hash stored in ADMIN_KEY_HASH.
func HashAdminKey(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAdminKey safely compares a bcrypt hash and a presented key.
func VerifyAdminKey(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
