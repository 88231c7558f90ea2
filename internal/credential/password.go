// Package credential は認証サービスに渡す一時パスワードを生成する。
package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TemporaryPasswordLength は一時パスワードの長さ。
const TemporaryPasswordLength = 12

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
	special   = "!@#$%^&*()_+"
	allChars  = lowercase + uppercase + digits + special
)

// GenerateTemporaryPassword は小文字・大文字・数字・記号をそれぞれ1文字以上含む
// 12文字の一時パスワードをcrypto/randで生成する。
func GenerateTemporaryPassword() (string, error) {
	buf := make([]byte, 0, TemporaryPasswordLength)

	for _, set := range []string{lowercase, uppercase, digits, special} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < TemporaryPasswordLength {
		c, err := pick(allChars)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates で必須文字の位置を偏らせない
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

func pick(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}
