// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返す種別コードと説明のみを持ち、内部の詳細は含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, station, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeInactiveAccount   = "INACTIVE_ACCOUNT"
	ErrCodeStationNotFound   = "STATION_NOT_FOUND"
	ErrCodeUserAlreadyExists = "USER_ALREADY_EXISTS"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// NewUnauthenticatedError は未認証エラーを生成する。
// トークン不正・期限切れ・ユーザー不在を区別せず同じ結果にする。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "No autenticado",
		Category: "auth",
		Action:   "Obtenga un token nuevo en /token y envíelo como 'Authorization: Bearer <token>'.",
	}
}

// NewInvalidCredentialsError はログイン時の資格情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Usuario o contraseña incorrectos",
		Category: "auth",
		Action:   "Verifique el usuario y la contraseña.",
	}
}

// NewInactiveAccountError は無効化されたアカウントのエラーを生成する。
func NewInactiveAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeInactiveAccount,
		Message:  "Usuario inactivo",
		Category: "auth",
		Action:   "Contacte al administrador para reactivar la cuenta.",
	}
}

// NewStationNotFoundError は給油所未検出エラーを生成する。
func NewStationNotFoundError(stationID int) *APIError {
	return &APIError{
		Code:     ErrCodeStationNotFound,
		Message:  fmt.Sprintf("Estación con ID %d no encontrada", stationID),
		Category: "station",
		Action:   "Verifique el ID de la estación.",
	}
}

// NewUserAlreadyExistsError はユーザー名重複エラーを生成する。
func NewUserAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  "El usuario ya existe",
		Category: "validation",
		Action:   "Elija otro nombre de usuario.",
	}
}

// NewValidationError は入力値不正エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Parámetro inválido: %s", reason),
		Category: "validation",
		Action:   "Corrija los parámetros de la solicitud.",
	}
}

// NewStoreError はデータストア通信エラーを生成する。
// 原因はログにのみ残し、メッセージには含めない。
func NewStoreError() *APIError {
	return &APIError{
		Code:     ErrCodeStore,
		Message:  "Error al acceder a la base de datos",
		Category: "system",
		Action:   "Intente nuevamente más tarde.",
	}
}

// NewInternalError は想定外の内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Error inesperado",
		Category: "system",
		Action:   "Intente nuevamente más tarde.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Demasiadas solicitudes",
		Category: "system",
		Action:   "Espere el tiempo indicado en Retry-After y reintente.",
	}
}
