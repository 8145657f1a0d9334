package crud

import (
	"context"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// Screen はエンティティの型に依存しない画面操作。HTTPハンドラーから利用する。
type Screen interface {
	Name() string
	Load(ctx context.Context, q upstream.Query) error
	GoToPage(ctx context.Context, page int) error
	Reload(ctx context.Context) error
	OpenCreate()
	OpenEditByID(ctx context.Context, id int64) error
	OpenDetailByID(ctx context.Context, id int64) error
	SetValues(values map[string]any) error
	AttachFile(name string, f *form.File) error
	Submit(ctx context.Context) error
	RequestRemoval(id int64) (Confirmation, error)
	ConfirmRemoval(ctx context.Context, id int64, token string) error
	Cancel()
	Import(ctx context.Context, f *form.File) error
	Export(ctx context.Context, dr upstream.DateRange) error
	SupportsBulk() bool
	State() any
}

var (
	_ Screen = (*Controller[model.Hero])(nil)
	_ Screen = (*Controller[model.MemberRecord])(nil)
)
