// Package username は氏名から認証サービス用のユーザー名を導出する。
//
// 生成形式は <名>.<姓>[.<第二姓の頭文字>]@jass.gob.pe。
// スペイン語圏の二重姓の慣習に従い、姓に含まれる冠詞・前置詞（パーティクル）を読み飛ばす。
// 生成は純粋関数であり、同一入力には常に同一出力を返す。
// 同名の別人が同じユーザー名になりうるが、重複の判定は認証サービス側が行う。
package username

import (
	"strings"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/textnorm"
)

// Domain はユーザー名に付与する固定ドメイン。
const Domain = "jass.gob.pe"

const (
	fallbackFirstName = "usuario"
	fallbackSurname   = "apellido"
)

// particles は読み飛ばす姓の構成語（大文字表記）。
var particles = map[string]struct{}{
	"DE": {}, "LA": {}, "EL": {}, "DEL": {}, "LAS": {},
	"LOS": {}, "VON": {}, "VAN": {}, "MAC": {}, "DI": {},
}

// IsParticle はトークンがパーティクルかどうかを返す。
// 正規化後の長さが2以下、または大文字表記が既定リストに含まれる場合にtrue。
func IsParticle(token string) bool {
	if len(textnorm.Normalize(token)) <= 2 {
		return true
	}
	_, ok := particles[strings.ToUpper(token)]
	return ok
}

// Generate は名・第一姓・第二姓からユーザー名を生成する。
// secondSurname が空（空白のみを含む）の場合は頭文字セグメントを省略する。
// 英字を含まない入力でも構文上有効な文字列を返し、失敗することはない。
func Generate(firstName, firstSurname, secondSurname string) string {
	var b strings.Builder
	b.WriteString(firstNameToken(firstName))
	b.WriteByte('.')
	b.WriteString(SurnameToken(firstSurname))
	if initial := secondSurnameInitial(secondSurname); initial != "" {
		b.WriteByte('.')
		b.WriteString(initial)
	}
	b.WriteByte('@')
	b.WriteString(Domain)
	return b.String()
}

// FromFullName は姓を一つのフィールドで保持する氏名からユーザー名を生成する。
// 姓が2語以上の場合は最後の語を第二姓、それより前を第一姓とみなす。
// 例: "DE LA CRUZ LAURA" は第一姓 "DE LA CRUZ"、第二姓 "LAURA" になる。
func FromFullName(firstName, lastName string) string {
	tokens := strings.Fields(lastName)
	if len(tokens) < 2 {
		return Generate(firstName, lastName, "")
	}
	last := len(tokens) - 1
	return Generate(firstName, strings.Join(tokens[:last], " "), tokens[last])
}

// firstNameToken は名フィールドの最初の語を正規化して返す。
func firstNameToken(firstName string) string {
	fields := strings.Fields(firstName)
	if len(fields) == 0 {
		return textnorm.Normalize(fallbackFirstName)
	}
	return textnorm.Normalize(fields[0])
}

// SurnameToken は姓フィールドから最初の非パーティクル語を正規化して返す。
// 全てがパーティクルの場合は最後の語、語が無い場合は "apellido" を返す。
func SurnameToken(surname string) string {
	tokens := strings.Fields(surname)
	if len(tokens) == 0 {
		return fallbackSurname
	}
	if token, ok := firstNonParticle(tokens); ok {
		return textnorm.Normalize(token)
	}
	return textnorm.Normalize(tokens[len(tokens)-1])
}

// secondSurnameInitial は第二姓の頭文字（1文字）を返す。
// 最初の非パーティクル語の先頭文字を使い、全てがパーティクルの場合は最後の語の先頭文字を使う。
func secondSurnameInitial(secondSurname string) string {
	tokens := strings.Fields(secondSurname)
	if len(tokens) == 0 {
		return ""
	}

	token, ok := firstNonParticle(tokens)
	if !ok {
		token = tokens[len(tokens)-1]
	}
	normalized := textnorm.Normalize(token)
	if normalized == "" {
		return ""
	}
	return normalized[:1]
}

func firstNonParticle(tokens []string) (string, bool) {
	for _, token := range tokens {
		if !IsParticle(token) {
			return token, true
		}
	}
	return "", false
}
