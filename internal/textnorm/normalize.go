// Package textnorm は氏名からユーザー名を導出するための文字列正規化を提供する。
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize はアクセント付き文字を基底文字に分解して結合文字を除去し、
// ASCII英数字以外を取り除いて小文字化した文字列を返す。
// 空文字列には空文字列を返し、失敗することはない。
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// transform.Chain は状態を持つため呼び出しごとに生成する
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(t, text)
	if err != nil {
		decomposed = text
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
