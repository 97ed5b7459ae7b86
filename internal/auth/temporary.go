package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	TemporaryPasswordLength = 12

	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*"
)

// GenerateTemporaryPassword returns a 12-character password holding at
// least one upper-case letter, lower-case letter, digit and symbol.
func GenerateTemporaryPassword() (string, error) {
	all := upperChars + lowerChars + digitChars + symbolChars
	buf := make([]byte, 0, TemporaryPasswordLength)
	for _, set := range []string{upperChars, lowerChars, digitChars, symbolChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < TemporaryPasswordLength {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle password: %w", err)
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}
	return set[n.Int64()], nil
}
