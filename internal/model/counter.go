package model

import "time"

// DefaultCodePrefix はユーザーコードの既定プレフィックス。
const DefaultCodePrefix = "USR"

// CodeCounter は組織ごとのユーザーコード採番カウンタを表す。
// LastIssued は単調非減少で、管理者によるリセットでのみ0に戻る。
type CodeCounter struct {
	OrganizationID string
	LastIssued     int64
	Prefix         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
