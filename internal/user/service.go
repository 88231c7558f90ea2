// Package user はユーザーのプロビジョニングとライフサイクル管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/authclient"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/credential"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/metrics"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/repository"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/security"
	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/username"
)

// CodeAllocator はユーザーコード採番のインターフェース。
type CodeAllocator interface {
	Allocate(ctx context.Context, organizationID string) (string, error)
}

// AccountRegistrar は認証サービスへのアカウント登録インターフェース。
type AccountRegistrar interface {
	IsAvailable(ctx context.Context) bool
	RegisterWithGeneratedCredential(ctx context.Context, profile authclient.Profile) (*authclient.Registration, error)
	Register(ctx context.Context, profile authclient.Profile, temporaryPassword string) (*authclient.Registration, error)
}

// PasswordMode は一時パスワードの生成元。
type PasswordMode string

const (
	// PasswordModeRemote は認証サービスに一時パスワードを生成させる。
	PasswordModeRemote PasswordMode = "remote"
	// PasswordModeLocal はこのサービスで一時パスワードを生成して認証サービスに渡す。
	PasswordModeLocal PasswordMode = "local"
)

// defaultWriteTimeout は呼び出し元から切り離した保存処理1回あたりの時間上限。
const defaultWriteTimeout = 10 * time.Second

// Service はユーザー管理のサービス層。
type Service struct {
	users            repository.UserRepository
	codes            CodeAllocator
	auth             AccountRegistrar
	sanitizer        security.TextSanitizer
	metrics          metrics.MetricsCollector
	logger           *slog.Logger
	passwordMode     PasswordMode
	generatePassword func() (string, error)
	now              func() time.Time
	writeTimeout     time.Duration

	// bootstrapMu は初期ユーザー作成の確認と作成を直列化する。
	bootstrapMu sync.Mutex
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	codes CodeAllocator,
	auth AccountRegistrar,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	passwordMode PasswordMode,
) *Service {
	if passwordMode == "" {
		passwordMode = PasswordModeRemote
	}
	return &Service{
		users:            users,
		codes:            codes,
		auth:             auth,
		sanitizer:        sanitizer,
		metrics:          collector,
		logger:           logger,
		passwordMode:     passwordMode,
		generatePassword: credential.GenerateTemporaryPassword,
		now:              time.Now,
		writeTimeout:     defaultWriteTimeout,
	}
}

// Create はユーザーを作成し、認証サービスにアカウントを登録する。
//
// 処理順序: 重複検証 → コード採番 → 保存 → 認証サービス登録 → ユーザー名の反映。
// 保存は認証サービスの呼び出し前に完了し、登録に失敗してもロールバックしない。
// 登録に失敗した場合はエラーではなく RemoteSucceeded=false の結果を返す。
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*ProvisioningResult, error) {
	req = s.normalizeCreate(req)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	// 1. 重複検証（ここまでは副作用なし）
	exists, err := s.users.ExistsByDocumentNumber(ctx, req.DocumentNumber)
	if err != nil {
		return nil, fmt.Errorf("文書番号の重複確認に失敗しました: %w", err)
	}
	if exists {
		return nil, model.NewDuplicateDocumentError(req.DocumentNumber)
	}
	if req.Email != "" {
		exists, err := s.users.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return nil, fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
		}
		if exists {
			return nil, model.NewDuplicateEmailError(req.Email)
		}
	}

	// 2. コード採番
	code, err := s.codes.Allocate(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	// 3. 保存。呼び出し元が切断しても中断しない
	detached := context.WithoutCancel(ctx)
	now := s.now()
	u := &model.User{
		UserCode:       code,
		Username:       "",
		OrganizationID: req.OrganizationID,
		PersonalInfo: model.PersonalInfo{
			DocumentType:   req.DocumentType,
			DocumentNumber: req.DocumentNumber,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
		},
		Contact: model.Contact{
			Email: req.Email,
			Phone: req.Phone,
			Address: model.Address{
				FullAddress: req.Address,
				StreetID:    req.StreetID,
				ZoneID:      req.ZoneID,
			},
		},
		Roles:            uniqueRoles(req.Roles),
		Status:           model.UserStatusActive,
		RegistrationDate: now,
		CreatedAt:        now,
		CreatedBy:        req.Actor,
		UpdatedBy:        req.Actor,
	}
	if err := s.save(detached, u); err != nil {
		return nil, fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.String("user_code", u.UserCode),
		slog.String("organization_id", u.OrganizationID),
	)

	// 4. 認証サービス登録
	result := &ProvisioningResult{
		User:              u,
		RequestedUsername: username.FromFullName(req.FirstName, req.LastName),
	}
	reg, err := s.register(detached, u, result.RequestedUsername)
	if err != nil {
		s.degrade(result, err)
		return result, nil
	}

	// 5. ユーザー名の反映
	s.reconcile(detached, result, reg)
	return result, nil
}

// register は認証サービスの疎通を確認してからアカウントを登録する。
func (s *Service) register(ctx context.Context, u *model.User, requestedUsername string) (*authclient.Registration, error) {
	if !s.auth.IsAvailable(ctx) {
		return nil, model.NewUpstreamUnavailableError("疎通確認に失敗しました", nil)
	}

	email := u.Contact.Email
	if email == "" {
		email = requestedUsername
	}
	profile := authclient.Profile{
		FirstName:      u.PersonalInfo.FirstName,
		LastName:       u.PersonalInfo.LastName,
		Email:          email,
		OrganizationID: u.OrganizationID,
		Roles:          u.Roles,
	}

	if s.passwordMode == PasswordModeLocal {
		password, err := s.generatePassword()
		if err != nil {
			return nil, fmt.Errorf("一時パスワードの生成に失敗しました: %w", err)
		}
		return s.auth.Register(ctx, profile, password)
	}
	return s.auth.RegisterWithGeneratedCredential(ctx, profile)
}

// degrade は登録失敗時の結果を組み立てる。保存済みのユーザーはそのまま残す。
func (s *Service) degrade(result *ProvisioningResult, cause error) {
	result.Username = ""
	result.TemporaryPassword = SentinelCredential
	result.RemoteSucceeded = false
	result.RequiresFollowUp = true
	result.Message = "ユーザーを作成しましたが、認証サービスへの登録に失敗しました。再登録処理で対応してください。"

	s.metrics.RecordUserProvisioned(metrics.OutcomeDegraded)
	s.logger.Warn("認証サービスへの登録に失敗したため、ユーザー名未確定のまま作成しました",
		slog.String("user_id", result.User.ID),
		slog.String("user_code", result.User.UserCode),
		slog.String("organization_id", result.User.OrganizationID),
		slog.String("error", cause.Error()),
	)
}

// reconcile は認証サービスが決定したユーザー名を保存済みユーザーに反映する。
// ユーザー名は空の場合にのみ設定する。
func (s *Service) reconcile(ctx context.Context, result *ProvisioningResult, reg *authclient.Registration) {
	result.Username = reg.Username
	result.TemporaryPassword = reg.TemporaryPassword
	result.RemoteSucceeded = true
	s.metrics.RecordUserProvisioned(metrics.OutcomeRegistered)

	u := result.User
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	updated, err := s.users.UpdateUsername(writeCtx, u.ID, reg.Username)
	switch {
	case err != nil:
		result.RequiresFollowUp = true
		result.Message = "認証サービスには登録しましたが、ユーザー名の保存に失敗しました。"
		s.logger.Error("ユーザー名の保存に失敗しました",
			slog.String("user_id", u.ID),
			slog.String("username", reg.Username),
			slog.String("error", err.Error()),
		)
	case !updated:
		result.RequiresFollowUp = true
		result.Message = "ユーザー名は既に設定されていたため更新しませんでした。"
		s.logger.Warn("ユーザー名が既に設定されていたため更新しませんでした",
			slog.String("user_id", u.ID),
			slog.String("username", reg.Username),
		)
	default:
		u.Username = reg.Username
		result.Message = "ユーザーを作成しました。"
		if reg.Username != result.RequestedUsername {
			s.logger.Info("認証サービスが異なるユーザー名を割り当てました",
				slog.String("user_id", u.ID),
				slog.String("requested", result.RequestedUsername),
				slog.String("assigned", reg.Username),
			)
		}
	}
}

// save は時間上限付きでユーザーを保存する。
// ctxが呼び出し元から切り離されていても、DBが応答しない場合に処理が滞留しないようにする。
func (s *Service) save(ctx context.Context, u *model.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.users.Save(ctx, u)
}

// normalizeCreate は入力の前後空白を除去し、自由記述フィールドからマークアップを取り除く。
func (s *Service) normalizeCreate(req CreateUserRequest) CreateUserRequest {
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.DocumentType = model.DocumentType(strings.ToUpper(strings.TrimSpace(string(req.DocumentType))))
	req.DocumentNumber = strings.TrimSpace(req.DocumentNumber)
	req.FirstName = s.sanitizer.Sanitize(req.FirstName)
	req.LastName = s.sanitizer.Sanitize(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = s.sanitizer.Sanitize(req.Address)
	req.StreetID = strings.TrimSpace(req.StreetID)
	req.ZoneID = strings.TrimSpace(req.ZoneID)
	return req
}

// uniqueRoles は重複を除いたロールを元の順序で返す。
func uniqueRoles(roles []model.Role) []model.Role {
	out := make([]model.Role, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
