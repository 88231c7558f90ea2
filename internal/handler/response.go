package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/middleware"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/user"
)

// maxRequestBodyBytes はリクエストボディの上限サイズ。
const maxRequestBodyBytes = 64 << 10

// addressResponse は住所のAPIレスポンス。
type addressResponse struct {
	FullAddress string `json:"fullAddress"`
	StreetID    string `json:"streetId"`
	ZoneID      string `json:"zoneId"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID               string          `json:"id"`
	UserCode         string          `json:"userCode"`
	Username         string          `json:"username"`
	OrganizationID   string          `json:"organizationId"`
	DocumentType     string          `json:"documentType"`
	DocumentNumber   string          `json:"documentNumber"`
	FirstName        string          `json:"firstName"`
	LastName         string          `json:"lastName"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	Address          addressResponse `json:"address"`
	Roles            []model.Role    `json:"roles"`
	Status           string          `json:"status"`
	RegistrationDate time.Time       `json:"registrationDate"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CreatedBy        string          `json:"createdBy"`
	UpdatedBy        string          `json:"updatedBy"`
	DeletedAt        *time.Time      `json:"deletedAt,omitempty"`
	DeletedBy        string          `json:"deletedBy,omitempty"`
}

// provisioningResponse はユーザー作成結果のAPIレスポンス。
type provisioningResponse struct {
	User              userResponse `json:"user"`
	RequestedUsername string       `json:"requestedUsername"`
	Username          string       `json:"username"`
	TemporaryPassword string       `json:"temporaryPassword"`
	RemoteSucceeded   bool         `json:"remoteSucceeded"`
	RequiresFollowUp  bool         `json:"requiresFollowUp"`
	Message           string       `json:"message"`
}

func toUserResponse(u *model.User) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []model.Role{}
	}
	return userResponse{
		ID:             u.ID,
		UserCode:       u.UserCode,
		Username:       u.Username,
		OrganizationID: u.OrganizationID,
		DocumentType:   string(u.PersonalInfo.DocumentType),
		DocumentNumber: u.PersonalInfo.DocumentNumber,
		FirstName:      u.PersonalInfo.FirstName,
		LastName:       u.PersonalInfo.LastName,
		Email:          u.Contact.Email,
		Phone:          u.Contact.Phone,
		Address: addressResponse{
			FullAddress: u.Contact.Address.FullAddress,
			StreetID:    u.Contact.Address.StreetID,
			ZoneID:      u.Contact.Address.ZoneID,
		},
		Roles:            roles,
		Status:           string(u.Status),
		RegistrationDate: u.RegistrationDate,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
		CreatedBy:        u.CreatedBy,
		UpdatedBy:        u.UpdatedBy,
		DeletedAt:        u.DeletedAt,
		DeletedBy:        u.DeletedBy,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

func toProvisioningResponse(res *user.ProvisioningResult) provisioningResponse {
	return provisioningResponse{
		User:              toUserResponse(res.User),
		RequestedUsername: res.RequestedUsername,
		Username:          res.Username,
		TemporaryPassword: res.TemporaryPassword,
		RemoteSucceeded:   res.RemoteSucceeded,
		RequiresFollowUp:  res.RequiresFollowUp,
		Message:           res.Message,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。
// 未知のフィールドと複数のJSON値は拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalidBodyError(err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return invalidBodyError(errors.New("unexpected data after JSON body"))
	}
	return nil
}

func invalidBodyError(cause error) *model.APIError {
	apiErr := model.NewValidationError("リクエストボディの解析に失敗しました")
	apiErr.Err = cause
	return apiErr
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			logger.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(chi.URLParam(r, "id")))
		return
	case errors.Is(err, repository.ErrConflict):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewConflictError(err))
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	logger.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.Any("error", err),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateDocument, model.ErrCodeDuplicateEmail, model.ErrCodeCodeConflict, model.ErrCodeConflict,
		model.ErrCodeAlreadyInitialized:
		return http.StatusConflict
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
