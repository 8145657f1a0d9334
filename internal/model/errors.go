package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string              // エラーコード
	Message  string              // エラーメッセージ
	Category string              // カテゴリ: auth, validation, upstream, screen, system
	Action   string              // ユーザー向け対処方法
	Fields   map[string][]string // フィールド単位のバリデーションメッセージ（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeMissingFields       = "MISSING_FIELDS"
	ErrCodePasswordMismatch    = "PASSWORD_MISMATCH"
	ErrCodeUpstreamError       = "UPSTREAM_ERROR"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeRecordNotFound      = "RECORD_NOT_FOUND"
	ErrCodeScreenNotFound      = "SCREEN_NOT_FOUND"
	ErrCodeModalNotOpen        = "MODAL_NOT_OPEN"
	ErrCodeReadOnly            = "READ_ONLY"
	ErrCodeConfirmationNeeded  = "CONFIRMATION_REQUIRED"
	ErrCodeNotSupported        = "NOT_SUPPORTED"
	ErrCodeMemberNotResolved   = "MEMBER_NOT_RESOLVED"
	ErrCodePhotoUnavailable    = "PHOTO_UNAVAILABLE"
	ErrCodeCSRFInvalid         = "CSRF_INVALID"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト形式の不正を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの解析に失敗しました: %s", reason),
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewValidationError はサーバーが返したバリデーションエラーを生成する。
// messageが空の場合は汎用メッセージを使う。
func NewValidationError(message string, fields map[string][]string) *APIError {
	if message == "" {
		message = "入力内容に誤りがあります。"
	}
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "エラーのある項目を修正して再度送信してください。",
		Fields:   fields,
	}
}

// NewMissingFieldsError は必須項目の未入力エラーを生成する。
func NewMissingFieldsError(fields []string) *APIError {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	perField := make(map[string][]string, len(sorted))
	for _, f := range sorted {
		perField[f] = []string{"必須項目です。"}
	}
	return &APIError{
		Code:     ErrCodeMissingFields,
		Message:  fmt.Sprintf("必須項目が入力されていません: %s", strings.Join(sorted, ", ")),
		Category: "validation",
		Action:   "必須項目を入力してください。",
		Fields:   perField,
	}
}

// NewPasswordMismatchError は確認用パスワード不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "新しいパスワードと確認用パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
		Fields:   map[string][]string{"password_confirmation": {"パスワードが一致しません。"}},
	}
}

// NewUpstreamError は外部APIがエラーを返した場合のエラーを生成する。
// messageにはサーバーが返したメッセージを渡す。空の場合は汎用メッセージを使う。
func NewUpstreamError(message string) *APIError {
	if message == "" {
		message = "処理に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeUpstreamError,
		Message:  message,
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamUnavailableError は外部APIに到達できない場合のエラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "サーバーに接続できませんでした。",
		Category: "upstream",
		Action:   "ネットワーク接続を確認し、再度お試しください。",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定されたデータが見つかりません: %d", id),
		Category: "screen",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewScreenNotFoundError は管理画面が存在しない場合のエラーを生成する。
func NewScreenNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeScreenNotFound,
		Message:  fmt.Sprintf("管理画面が見つかりません: %s", name),
		Category: "screen",
		Action:   "画面名を確認してください。",
	}
}

// NewModalNotOpenError はモーダルが開いていない状態での操作エラーを生成する。
func NewModalNotOpenError() *APIError {
	return &APIError{
		Code:     ErrCodeModalNotOpen,
		Message:  "フォームが開かれていません。",
		Category: "screen",
		Action:   "追加または編集を選択してからやり直してください。",
	}
}

// NewReadOnlyError は詳細表示モードでの編集操作エラーを生成する。
func NewReadOnlyError() *APIError {
	return &APIError{
		Code:     ErrCodeReadOnly,
		Message:  "詳細表示中のため編集できません。",
		Category: "screen",
		Action:   "編集を選択してから変更してください。",
	}
}

// NewConfirmationRequiredError は削除確認が得られていない場合のエラーを生成する。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationNeeded,
		Message:  "削除の確認が必要です。",
		Category: "screen",
		Action:   "削除確認を行ってから再度実行してください。",
	}
}

// NewNotSupportedError は画面が対応していない操作のエラーを生成する。
func NewNotSupportedError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeNotSupported,
		Message:  fmt.Sprintf("この画面では%sを利用できません。", operation),
		Category: "screen",
		Action:   "対応している画面から実行してください。",
	}
}

// NewMemberNotResolvedError はログインユーザーの組合員レコードが特定できない場合のエラーを生成する。
func NewMemberNotResolvedError() *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotResolved,
		Message:  "組合員データが見つかりません。",
		Category: "screen",
		Action:   "管理者に組合員データの登録を依頼してください。",
	}
}

// NewPhotoUnavailableError はプロフィール写真を取得できない場合のエラーを生成する。
func NewPhotoUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodePhotoUnavailable,
		Message:  "プロフィール写真を取得できませんでした。",
		Category: "upstream",
		Action:   "写真を登録し直してください。",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度操作してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
