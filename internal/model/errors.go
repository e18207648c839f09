// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ドメイン層のセンチネルエラー
var (
	// ErrEmailTaken はメールアドレスが既に登録済みであることを示す。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを示す。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInactiveUser はアカウントが無効化されておりセッションを発行できないことを示す。
	ErrInactiveUser = errors.New("user is not active")
	// ErrUnknownProvider は登録されていないプロバイダーIDが指定されたことを示す。
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrConnectionExists は同じプロバイダーアカウントが既に別の紐付けを持つことを示す。
	ErrConnectionExists = errors.New("connection already exists")
	// ErrConnectionNotFound はユーザーに該当プロバイダーの紐付けがないことを示す。
	ErrConnectionNotFound = errors.New("connection not found")
)

// AppError はエラーページに表示する統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type AppError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, social, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnknownProvider    = "UNKNOWN_PROVIDER"
	ErrCodeProviderNotLinked  = "PROVIDER_NOT_LINKED"
	ErrCodeOAuthStateMismatch = "OAUTH_STATE_MISMATCH"
	ErrCodeOAuthFailed        = "OAUTH_FAILED"
	ErrCodeConnectionExists   = "CONNECTION_EXISTS"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnknownProviderError は未対応プロバイダーエラーを生成する。
func NewUnknownProviderError(providerID string) *AppError {
	return &AppError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("Unsupported provider: %s", providerID),
		Category: "social",
		Action:   "Choose one of the supported providers.",
	}
}

// NewOAuthStateMismatchError はOAuthのstate検証失敗エラーを生成する。
func NewOAuthStateMismatchError() *AppError {
	return &AppError{
		Code:     ErrCodeOAuthStateMismatch,
		Message:  "The sign-in request could not be verified.",
		Category: "auth",
		Action:   "Start the sign-in again from the login page.",
	}
}

// NewOAuthFailedError はプロバイダーとのハンドシェイク失敗エラーを生成する。
func NewOAuthFailedError(displayName string) *AppError {
	return &AppError{
		Code:     ErrCodeOAuthFailed,
		Message:  fmt.Sprintf("Could not complete sign-in with %s.", displayName),
		Category: "social",
		Action:   "Try again later or use another provider.",
	}
}

// NewConnectionExistsError は既に別ユーザーに紐付いたプロバイダーアカウントのエラーを生成する。
func NewConnectionExistsError(displayName string) *AppError {
	return &AppError{
		Code:     ErrCodeConnectionExists,
		Message:  fmt.Sprintf("This %s account is already connected to a user.", displayName),
		Category: "social",
		Action:   "Log in with that account instead, or connect a different one.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *AppError {
	return &AppError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// ValidationError はフォーム入力の検証エラーを表す。
// Fieldsにはフィールド名ごとのエラーメッセージを保持する。
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError は単一フィールドの検証エラーを生成する。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
