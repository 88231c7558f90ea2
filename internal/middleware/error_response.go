package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// ErrorResponseBody はエラー時に返すJSON。
// RequestID はレスポンスヘッダーの X-Request-Id と同じ値で、問い合わせ時にログと突き合わせるために使う。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteErrorResponse はapiErrをErrorResponseBodyとして書き出す。
// apiErr.Err の内容は内部情報を含みうるため本文に載せない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: w.Header().Get(HeaderRequestID),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は500とINTERNAL_ERRORを返す。原因はログ側で記録すること。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
