// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 呼び出し元に返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, user, upstream, system
	Action   string // 呼び出し元向け対処方法
	Err      error  // 原因となったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeDuplicateDocument   = "DUPLICATE_DOCUMENT"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeCodeConflict        = "CODE_CONFLICT"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeAlreadyInitialized  = "ALREADY_INITIALIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewDuplicateDocumentError は文書番号が既に有効なユーザーに登録済みの場合のエラーを生成する。
func NewDuplicateDocumentError(documentNumber string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateDocument,
		Message:  fmt.Sprintf("この文書番号は既に登録されています: %s", documentNumber),
		Category: "validation",
		Action:   "既存ユーザーを検索し、重複登録でないか確認してください。",
	}
}

// NewDuplicateEmailError はメールアドレスが既に有効なユーザーに登録済みの場合のエラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewInvalidStatusError は未定義のユーザー状態が指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なユーザー状態です: %s", status),
		Category: "validation",
		Action:   "状態には ACTIVE、INACTIVE、SUSPENDED、PENDING のいずれかを指定してください。",
	}
}

// NewUpstreamUnavailableError は認証サービスが利用できない場合のエラーを生成する。
func NewUpstreamUnavailableError(reason string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("認証サービスを利用できません: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewCodeConflictError はユーザーコードの採番が競合した場合のエラーを生成する。
func NewCodeConflictError(organizationID string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeCodeConflict,
		Message:  fmt.Sprintf("ユーザーコードの採番が競合しました: %s", organizationID),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewForbiddenError は操作に必要なロールを持たない場合のエラーを生成する。
func NewForbiddenError(requiredRole Role) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作には %s ロールが必要です。", requiredRole),
		Category: "user",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewConflictError は同時更新などで保存が競合した場合のエラーを生成する。
func NewConflictError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "他の更新と競合したため保存できませんでした。",
		Category: "system",
		Action:   "最新の状態を取得してから再度お試しください。",
		Err:      cause,
	}
}

// NewAlreadyInitializedError はSUPER_ADMINが既に存在する状態で初期ユーザーを作成しようとした場合のエラーを生成する。
func NewAlreadyInitializedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInitialized,
		Message:  "SUPER_ADMINは既に登録されています。",
		Category: "user",
		Action:   "既存のSUPER_ADMINで管理画面からユーザーを作成してください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は想定外の失敗に対して返す汎用エラーを生成する。
// 原因は呼び出し元でログに記録し、レスポンスには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// HasErrorCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを返す。
func HasErrorCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
