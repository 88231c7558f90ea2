package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/middleware"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Create はユーザーを作成し、認証サービスにアカウントを登録する。
	Create(ctx context.Context, req user.CreateUserRequest) (*user.ProvisioningResult, error)
	// CreateFirstUser はSUPER_ADMINが未登録の場合に限り最初のSUPER_ADMINを作成する。
	CreateFirstUser(ctx context.Context, req user.CreateUserRequest) (*user.ProvisioningResult, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByCode(ctx context.Context, organizationID, userCode string) (*model.User, error)
	ListByOrganizationAndStatus(ctx context.Context, organizationID string, status model.UserStatus) ([]*model.User, error)
	IsEmailAvailable(ctx context.Context, email string) (bool, error)
	CountSuperAdmins(ctx context.Context) (int, error)
	Update(ctx context.Context, id string, req user.UpdateUserRequest) (*model.User, error)
	ChangeStatus(ctx context.Context, id string, status model.UserStatus, actor string) (*model.User, error)
	SoftDelete(ctx context.Context, id, actor string) (*model.User, error)
	Restore(ctx context.Context, id, actor string) (*model.User, error)
	HardDelete(ctx context.Context, id, actor string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	logger  *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// changeStatusRequest は状態変更リクエストのボディ。
type changeStatusRequest struct {
	Status string `json:"status"`
}

// CreateUser はユーザーを作成する。
// POST /api/admin/users
//
// 認証サービスへの登録に失敗した場合もユーザーは作成済みのため201を返し、
// remoteSucceeded=false で呼び出し元に通知する。
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req user.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	req.Actor = actorID(r)

	result, err := h.service.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProvisioningResponse(result))
}

// CreateFirstUser は初期SUPER_ADMINを作成する。
// POST /api/setup/first-user
//
// リクエストのrolesは無視する。SUPER_ADMINが既に存在する場合は409を返す。
func (h *UserHandler) CreateFirstUser(w http.ResponseWriter, r *http.Request) {
	var req user.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	req.Actor = actorID(r)

	result, err := h.service.CreateFirstUser(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProvisioningResponse(result))
}

// GetUser はユーザーを取得する。
// GET /api/admin/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// UpdateUser はユーザーを部分更新する。
// PATCH /api/admin/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req user.UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	req.Actor = actorID(r)

	u, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ChangeStatus はユーザーの状態を変更する。
// PATCH /api/admin/users/{id}/status
func (h *UserHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	u, err := h.service.ChangeStatus(r.Context(), chi.URLParam(r, "id"), model.UserStatus(req.Status), actorID(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser はユーザーを論理削除する。
// DELETE /api/admin/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.SoftDelete(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// RestoreUser は論理削除されたユーザーを復元する。
// PUT /api/admin/users/{id}/restore
func (h *UserHandler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Restore(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// PurgeUser はユーザーを物理削除する。
// DELETE /api/admin/users/{id}/permanent
func (h *UserHandler) PurgeUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.HardDelete(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EmailAvailability はメールアドレスが未使用かを返す。
// GET /api/admin/users/email-availability?email=
func (h *UserHandler) EmailAvailability(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	available, err := h.service.IsEmailAvailable(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":     strings.ToLower(strings.TrimSpace(email)),
		"available": available,
	})
}

// ListUsers は組織内の指定状態のユーザーを返す。statusの既定はACTIVE。
// GET /api/admin/organizations/{orgID}/users?status=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	status := model.UserStatusActive
	if q := r.URL.Query().Get("status"); q != "" {
		status = model.UserStatus(strings.ToUpper(q))
	}

	users, err := h.service.ListByOrganizationAndStatus(r.Context(), chi.URLParam(r, "orgID"), status)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// GetUserByCode は組織とユーザーコードでユーザーを取得する。
// GET /api/admin/organizations/{orgID}/users/by-code/{code}
func (h *UserHandler) GetUserByCode(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// CountSuperAdmins はSUPER_ADMINロールを持つ有効ユーザー数を返す。
// GET /api/management/users/super-admins/count
func (h *UserHandler) CountSuperAdmins(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.CountSuperAdmins(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func actorID(r *http.Request) string {
	return middleware.ActorFromContext(r.Context()).ID
}
