package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
)

// Query は一覧取得の条件。
type Query struct {
	Page     int
	PageSize int
	Search   string
}

func (q Query) values() url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.PageSize > 0 {
		v.Set("paginate", strconv.Itoa(q.PageSize))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

// DateRange はエクスポート対象の期間（YYYY-MM-DD）。
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Resource は1つのRESTリソース（/hero、/anggota等）に対する操作を提供する。
type Resource[T any] struct {
	client *Client
	path   string
}

// NewResource はResourceを生成する。pathは "/hero" のような先頭スラッシュ付きのパス。
func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{client: c, path: path}
}

// Path はリソースのパスを返す。
func (r *Resource[T]) Path() string { return r.path }

func (r *Resource[T]) itemPath(id int64) string {
	return r.path + "/" + strconv.FormatInt(id, 10)
}

// List は指定ページの一覧を取得する。
func (r *Resource[T]) List(ctx context.Context, q Query) (*model.ListPage[T], error) {
	var page model.ListPage[T]
	if err := r.client.do(ctx, http.MethodGet, r.path, r.path, q.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get は主キーでレコードを1件取得する。
func (r *Resource[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	var raw json.RawMessage
	if err := r.client.do(ctx, http.MethodGet, r.path, r.itemPath(id), nil, nil, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, model.NewRecordNotFoundError(id)
		}
		return zero, err
	}
	var item T
	if err := json.Unmarshal(unwrapData(raw), &item); err != nil {
		return zero, fmt.Errorf("failed to decode %s record: %w", r.path, err)
	}
	return item, nil
}

// Create はレコードを作成する。
func (r *Resource[T]) Create(ctx context.Context, p *form.Payload) error {
	return r.client.do(ctx, http.MethodPost, r.path, r.path, nil, p, nil)
}

// Update はレコードを更新する。
// multipartの場合はPUTの代わりにPOST + _method=PUT で送る。
func (r *Resource[T]) Update(ctx context.Context, id int64, p *form.Payload) error {
	if p.Kind() == form.KindMultipart {
		return r.client.do(ctx, http.MethodPost, r.path, r.itemPath(id), nil, p.WithMethodOverride(http.MethodPut), nil)
	}
	return r.client.do(ctx, http.MethodPut, r.path, r.itemPath(id), nil, p, nil)
}

// Delete はレコードを削除する。
func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	return r.client.do(ctx, http.MethodDelete, r.path, r.itemPath(id), nil, nil, nil)
}

// Import はファイルを一括インポートとして送信する。処理はサーバー側で非同期に行われる。
func (r *Resource[T]) Import(ctx context.Context, f *form.File) error {
	return r.client.do(ctx, http.MethodPost, r.path, r.path+"/import", nil, form.NewFilePayload("file", f), nil)
}

// Export は期間を指定してエクスポートを依頼する。
func (r *Resource[T]) Export(ctx context.Context, dr DateRange) error {
	p := form.NewJSONPayload(map[string]any{"start_date": dr.StartDate, "end_date": dr.EndDate})
	return r.client.do(ctx, http.MethodPost, r.path, r.path+"/export", nil, p, nil)
}
