// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/model"
)

// ゲートウェイが認証後に付与するヘッダー
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var actorContextKey = contextKey("actor")

// Actor はリクエストの操作者を表す。
type Actor struct {
	ID    string
	Roles []model.Role
}

// HasAnyRole は指定ロールのいずれかを保持しているかを返す。
func (a Actor) HasAnyRole(roles ...model.Role) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

// NewActorMiddleware はゲートウェイが付与した操作者ヘッダーを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// トークンの検証はゲートウェイの責務とし、ここではヘッダーを信頼する。
// ヘッダーが無いリクエストも拒否せずに通過させる。
func NewActorMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := Actor{
				ID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Roles: parseRoles(r.Header.Get(HeaderUserRoles)),
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

// RequireAnyRole は指定ロールのいずれも持たない操作者に403を返すミドルウェアを返す。
// ActorMiddlewareの後に配置する。
func RequireAnyRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ActorFromContext(r.Context()).HasAnyRole(roles...) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(roles[0]))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext はリクエストコンテキストから操作者を取得する。
// 未設定の場合はゼロ値を返す。
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey).(Actor)
	return actor
}

// ContextWithActor はコンテキストに操作者を注入する。
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// parseRoles はカンマ区切りのロール一覧を解析する。未定義のロールは無視する。
func parseRoles(header string) []model.Role {
	var roles []model.Role
	for _, part := range strings.Split(header, ",") {
		role := model.Role(strings.ToUpper(strings.TrimSpace(part)))
		if role.IsValid() && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}
