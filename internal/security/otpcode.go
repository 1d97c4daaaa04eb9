package security

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// GenerateNumericCode returns a random numeric string of the given length (4–10 digits)
// drawn from crypto/rand. Leading zeros are allowed so the keyspace stays uniform.
func GenerateNumericCode(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", errors.New("security: code length must be between 4 and 10")
	}
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
