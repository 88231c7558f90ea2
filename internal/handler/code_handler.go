package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CodeServiceInterface はユーザーコードハンドラーが必要とするサービスインターフェース。
type CodeServiceInterface interface {
	NextCode(ctx context.Context, organizationID string) (string, error)
	LastCode(ctx context.Context, organizationID string) (string, bool, error)
	Reset(ctx context.Context, organizationID, actor string) error
}

// CodeHandler はユーザーコード採番のHTTPハンドラー。
type CodeHandler struct {
	service CodeServiceInterface
	logger  *slog.Logger
}

// NewCodeHandler はCodeHandlerを生成する。
func NewCodeHandler(service CodeServiceInterface, logger *slog.Logger) *CodeHandler {
	return &CodeHandler{service: service, logger: logger}
}

// codeResponse はユーザーコードのAPIレスポンス。
// 未採番の組織に対するlastではcodeを空文字列、issuedをfalseで返す。
type codeResponse struct {
	OrganizationID string `json:"organizationId"`
	Code           string `json:"code"`
	Issued         bool   `json:"issued"`
}

// NextCode は次に採番されるユーザーコードを返す。カウンタは進めない。
// GET /api/admin/organizations/{orgID}/user-codes/next
func (h *CodeHandler) NextCode(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	code, err := h.service.NextCode(r.Context(), orgID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{OrganizationID: orgID, Code: code})
}

// LastCode は最後に採番されたユーザーコードを返す。
// GET /api/admin/organizations/{orgID}/user-codes/last
func (h *CodeHandler) LastCode(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	code, issued, err := h.service.LastCode(r.Context(), orgID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{OrganizationID: orgID, Code: code, Issued: issued})
}

// ResetCounter は組織のカウンタを0に戻す。以後のコードは再利用される。
// DELETE /api/management/organizations/{orgID}/user-codes
func (h *CodeHandler) ResetCounter(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context(), chi.URLParam(r, "orgID"), actorID(r)); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
