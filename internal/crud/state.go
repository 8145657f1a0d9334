package crud

import "github.com/hitoshi/backoffice/internal/form"

// ModeKind はモーダルの状態。
type ModeKind string

const (
	ModeClosed   ModeKind = "closed"
	ModeCreate   ModeKind = "create"
	ModeEdit     ModeKind = "edit"
	ModeReadOnly ModeKind = "read_only"
)

// Mode はモーダルの状態と、編集・閲覧中のレコードID。
type Mode struct {
	Kind ModeKind `json:"kind"`
	ID   int64    `json:"id,omitempty"`
}

// NoticeLevel は通知の種類。
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
)

// Notice は利用者に表示する一時的な通知。
// 検証エラーの場合はFieldsにフィールドごとのメッセージが入る。
type Notice struct {
	Level   NoticeLevel         `json:"level"`
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// Snapshot は画面状態のJSON表現。
type Snapshot[T any] struct {
	Screen    string      `json:"screen"`
	Mode      Mode        `json:"mode"`
	Draft     *form.Draft `json:"draft,omitempty"`
	Items     []T         `json:"items"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
	Search    string      `json:"search,omitempty"`
	LastPage  int         `json:"last_page"`
	Total     int         `json:"total"`
	Loading   bool        `json:"loading"`
	LoadError string      `json:"load_error,omitempty"`
	Notices   []Notice    `json:"notices,omitempty"`
	Bulk      bool        `json:"bulk"`
}
