// Package resolver はセッションのユーザーIDから対応する組合員レコードを解決する。
//
// 外部APIの組合員一覧はuser_idで絞り込めないため、一覧を1ページ目から順に走査し、
// user_idが数値として一致する最初のレコードを見つけた時点で詳細を1回だけ取得する。
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/backoffice/internal/metrics"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// DefaultPageSize は走査時に1ページで取得する件数の既定値。
const DefaultPageSize = 100

// Status は解決結果の状態。
type Status string

const (
	// StatusNoKey はキーが空のため解決を行わなかったことを示す。
	StatusNoKey Status = "no_key"
	// StatusPending は解決処理が進行中であることを示す。
	StatusPending Status = "pending"
	// StatusNotFound は全ページを走査しても一致するレコードがなかったことを示す。
	StatusNotFound Status = "not_found"
	// StatusResolved はレコードの詳細まで取得できたことを示す。
	StatusResolved Status = "resolved"
)

// Result は1回の解決の結果。RecordはStatusResolvedの場合のみ設定される。
type Result struct {
	Status       Status              `json:"status"`
	Record       *model.MemberRecord `json:"record,omitempty"`
	PagesScanned int                 `json:"pages_scanned"`
}

// MemberSource は組合員一覧と詳細の取得元。
// upstream.Resource[model.MemberRecord] がこれを満たす。
type MemberSource interface {
	List(ctx context.Context, q upstream.Query) (*model.ListPage[model.MemberRecord], error)
	Get(ctx context.Context, id int64) (model.MemberRecord, error)
}

// Lookup はキーから組合員レコードを解決する。
// 外部APIが user_id での絞り込みに対応した場合は、走査しない実装に差し替えられる。
type Lookup interface {
	Resolve(ctx context.Context, key string) (Result, error)
}

// Resolver は一覧の逐次走査による Lookup の実装。
type Resolver struct {
	source   MemberSource
	pageSize int
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// New はResolverを生成する。pageSizeが0以下の場合はDefaultPageSizeを使う。
func New(source MemberSource, pageSize int, m metrics.MetricsCollector, logger *slog.Logger) *Resolver {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Resolver{source: source, pageSize: pageSize, metrics: m, logger: logger}
}

// Resolve はkeyに一致するuser_idを持つ組合員レコードを返す。
//
// 一覧の取得回数は最終ページ番号以下、詳細の取得は最大1回で、同じページを2度要求しない。
// 取得に失敗した場合は走査を打ち切ってエラーを返す。エラーはStatusNotFoundとは区別される。
func (r *Resolver) Resolve(ctx context.Context, key string) (Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		r.metrics.RecordResolution(string(StatusNoKey), 0)
		return Result{Status: StatusNoKey}, nil
	}

	page := 1
	for {
		list, err := r.source.List(ctx, upstream.Query{Page: page, PageSize: r.pageSize})
		if err != nil {
			r.metrics.RecordResolution("error", page-1)
			return Result{Status: StatusPending, PagesScanned: page - 1}, fmt.Errorf("failed to fetch member page %d: %w", page, err)
		}

		if id, ok := r.scan(list.Data, key, page); ok {
			record, err := r.source.Get(ctx, id)
			if err != nil {
				r.metrics.RecordResolution("error", page)
				return Result{Status: StatusPending, PagesScanned: page}, fmt.Errorf("failed to fetch member %d: %w", id, err)
			}
			r.metrics.RecordResolution(string(StatusResolved), page)
			return Result{Status: StatusResolved, Record: &record, PagesScanned: page}, nil
		}

		if page >= list.LastPage {
			r.metrics.RecordResolution(string(StatusNotFound), page)
			return Result{Status: StatusNotFound, PagesScanned: page}, nil
		}
		page++
	}
}

// scan はページ内で最初に一致したレコードのIDを返す。
// 同じページ内に一致するレコードが複数ある場合は最初のものを採用し、警告を記録する。
func (r *Resolver) scan(records []model.MemberRecord, key string, page int) (int64, bool) {
	found := -1
	for i := range records {
		if !records[i].UserID.Matches(key) {
			continue
		}
		if found < 0 {
			found = i
			continue
		}
		r.metrics.RecordDuplicateMember()
		if r.logger != nil {
			r.logger.Warn("同じuser_idを持つ組合員レコードが複数存在します",
				slog.String("user_id", key),
				slog.Int("page", page),
				slog.Int64("used_id", records[found].ID),
				slog.Int64("ignored_id", records[i].ID),
			)
		}
	}
	if found < 0 {
		return 0, false
	}
	return records[found].ID, true
}

var _ Lookup = (*Resolver)(nil)
