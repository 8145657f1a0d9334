// Package crud は管理画面共通の一覧・モーダル・フォーム操作を提供する。
//
// Controllerは1画面分の状態（一覧、モーダルのモード、入力中のドラフト、通知）を保持する。
// 状態はミューテックスで保護するが、外部APIとの通信中はロックを保持しない。
// 送信成功後は現在のページを再取得し、一覧を楽観的に書き換えることはない。
package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/metrics"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// DefaultPageSize は一覧の1ページあたりの件数の既定値。
const DefaultPageSize = 10

// removalTTL は削除確認トークンの有効期間。
const removalTTL = 5 * time.Minute

// ErrRemovalDeclined は削除の確認が得られなかったことを示す。
var ErrRemovalDeclined = errors.New("removal was not confirmed")

// Record は管理画面で扱うエンティティ。
type Record interface {
	RecordID() int64
	RecordLabel() string
}

// Source はエンティティの一覧・詳細・作成・更新・削除を提供する。
// upstream.Resource がこれを満たす。
type Source[T Record] interface {
	List(ctx context.Context, q upstream.Query) (*model.ListPage[T], error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, p *form.Payload) error
	Update(ctx context.Context, id int64, p *form.Payload) error
	Delete(ctx context.Context, id int64) error
}

// BulkSource は一括インポート・エクスポートを提供する。
type BulkSource interface {
	Import(ctx context.Context, f *form.File) error
	Export(ctx context.Context, dr upstream.DateRange) error
}

// Confirmer は削除前に利用者の確認を求める。
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// ConfirmFunc は関数をConfirmerとして使うためのアダプター。
type ConfirmFunc func(ctx context.Context, message string) bool

// Confirm はf(ctx, message)を呼び出す。
func (f ConfirmFunc) Confirm(ctx context.Context, message string) bool { return f(ctx, message) }

// Options はControllerの設定。
type Options struct {
	// Screen はメトリクスとログに使う画面名。
	Screen string
	// Schema はフォーム定義。
	Schema form.Schema
	// Builder はドラフトからペイロードを組み立てる。nilの場合はサニタイズなし。
	Builder *form.Builder
	// Bulk はインポート・エクスポートの提供元。nilの場合は非対応。
	Bulk BulkSource
	// PageSize は一覧の1ページあたりの件数。
	PageSize int
	Metrics  metrics.MetricsCollector
	Logger   *slog.Logger
}

type pendingRemoval struct {
	id        int64
	label     string
	expiresAt time.Time
}

// Controller は1つの管理画面の状態と操作。
type Controller[T Record] struct {
	screen  string
	source  Source[T]
	bulk    BulkSource
	schema  form.Schema
	builder *form.Builder
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	query    upstream.Query
	items    []T
	lastPage int
	total    int
	inflight int
	loadErr  string
	mode     Mode
	draft    *form.Draft
	notices  []Notice
	removals map[string]pendingRemoval
}

// New はControllerを生成する。
func New[T Record](source Source[T], opts Options) *Controller[T] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Builder == nil {
		opts.Builder = form.NewBuilder(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller[T]{
		screen:   opts.Screen,
		source:   source,
		bulk:     opts.Bulk,
		schema:   opts.Schema,
		builder:  opts.Builder,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      time.Now,
		query:    upstream.Query{Page: 1, PageSize: opts.PageSize},
		lastPage: 1,
		mode:     Mode{Kind: ModeClosed},
		removals: make(map[string]pendingRemoval),
	}
}

// Name は画面名を返す。
func (c *Controller[T]) Name() string { return c.screen }

// Load は検索条件を置き換えて一覧を取得する。
// PageSizeが0の場合は現在の件数を引き継ぐ。
func (c *Controller[T]) Load(ctx context.Context, q upstream.Query) error {
	c.mu.Lock()
	if q.PageSize <= 0 {
		q.PageSize = c.query.PageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	c.query = q
	c.mu.Unlock()
	return c.fetch(ctx, q)
}

// GoToPage は検索条件を保ったままページを移動する。
func (c *Controller[T]) GoToPage(ctx context.Context, page int) error {
	c.mu.Lock()
	q := c.query
	q.Page = max(page, 1)
	c.query = q
	c.mu.Unlock()
	return c.fetch(ctx, q)
}

// Reload は現在のページを再取得する。
func (c *Controller[T]) Reload(ctx context.Context) error {
	c.mu.Lock()
	q := c.query
	c.mu.Unlock()
	return c.fetch(ctx, q)
}

// fetch は一覧を取得して状態に反映する。
// 失敗時は一覧を空にして読み込み失敗の状態にする。並行した取得は後に完了したものが勝つ。
func (c *Controller[T]) fetch(ctx context.Context, q upstream.Query) error {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()

	page, err := c.source.List(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if err != nil {
		c.items = nil
		c.loadErr = messageOf(err, "データの読み込みに失敗しました。")
		c.logger.Warn("一覧の取得に失敗しました",
			slog.String("screen", c.screen),
			slog.Int("page", q.Page),
			slog.String("error", err.Error()),
		)
		return err
	}
	c.items = page.Data
	c.lastPage = max(page.LastPage, 1)
	c.total = page.Total
	c.loadErr = ""
	return nil
}

// OpenCreate はスキーマの初期値を設定したドラフトで作成モードを開く。
func (c *Controller[T]) OpenCreate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Mode{Kind: ModeCreate}
	c.draft = form.NewDraft(c.schema.Defaults)
}

// OpenEdit は既存レコードをコピーしたドラフトで編集モードを開く。
func (c *Controller[T]) OpenEdit(item T) error {
	return c.open(ModeEdit, item)
}

// OpenDetail は既存レコードを読み取り専用モードで開く。
func (c *Controller[T]) OpenDetail(item T) error {
	return c.open(ModeReadOnly, item)
}

// OpenEditByID は主キーでレコードを探して編集モードを開く。
// 現在の一覧にない場合は外部APIから取得する。
func (c *Controller[T]) OpenEditByID(ctx context.Context, id int64) error {
	item, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	return c.OpenEdit(item)
}

// OpenDetailByID は主キーでレコードを探して読み取り専用モードを開く。
func (c *Controller[T]) OpenDetailByID(ctx context.Context, id int64) error {
	item, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	return c.OpenDetail(item)
}

func (c *Controller[T]) open(kind ModeKind, item T) error {
	d, err := form.DraftFrom(item)
	if err != nil {
		return fmt.Errorf("failed to copy record %d: %w", item.RecordID(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Mode{Kind: kind, ID: item.RecordID()}
	c.draft = d
	return nil
}

func (c *Controller[T]) find(ctx context.Context, id int64) (T, error) {
	c.mu.Lock()
	for _, it := range c.items {
		if it.RecordID() == id {
			c.mu.Unlock()
			return it, nil
		}
	}
	c.mu.Unlock()
	return c.source.Get(ctx, id)
}

// editable は開いているドラフトを返す。呼び出し側でロックを保持すること。
func (c *Controller[T]) editable() (*form.Draft, error) {
	switch c.mode.Kind {
	case ModeClosed:
		return nil, model.NewModalNotOpenError()
	case ModeReadOnly:
		return nil, model.NewReadOnlyError()
	}
	return c.draft, nil
}

// SetValues は開いているドラフトのフィールドにまとめて値を設定する。
func (c *Controller[T]) SetValues(values map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.editable()
	if err != nil {
		return err
	}
	for k, v := range values {
		d.Set(k, v)
	}
	return nil
}

// AttachFile はファイル項目にファイルを添付する。
func (c *Controller[T]) AttachFile(name string, f *form.File) error {
	if !c.schema.IsFileField(name) {
		return model.NewInvalidRequestError(fmt.Sprintf("%s はファイル項目ではありません", name))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.editable()
	if err != nil {
		return err
	}
	d.Attach(name, f)
	return nil
}

// Submit はドラフトを送信する。
//
// 編集モードでは更新、作成モードでは作成を行う。成功時はモーダルを閉じて
// 現在のページを再取得し、失敗時はドラフトとモードを保持したままエラー通知を積む。
func (c *Controller[T]) Submit(ctx context.Context) error {
	c.mu.Lock()
	d, err := c.editable()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	mode := c.mode
	payload, err := c.builder.Build(c.schema, d)
	if err != nil {
		c.pushError(err)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if mode.Kind == ModeEdit {
		err = c.source.Update(ctx, mode.ID, payload)
	} else {
		err = c.source.Create(ctx, payload)
	}

	c.mu.Lock()
	if err != nil {
		c.pushError(err)
		c.mu.Unlock()
		c.metrics.RecordSubmission(c.screen, string(mode.Kind), "failure")
		c.logger.Warn("フォームの送信に失敗しました",
			slog.String("screen", c.screen),
			slog.String("mode", string(mode.Kind)),
			slog.String("error", err.Error()),
		)
		return err
	}
	// 送信中に別のモーダルが開かれた場合はそちらを閉じない
	if c.draft == d {
		c.mode = Mode{Kind: ModeClosed}
		c.draft = nil
	}
	if mode.Kind == ModeEdit {
		c.push(Notice{Level: NoticeSuccess, Message: "更新しました。"})
	} else {
		c.push(Notice{Level: NoticeSuccess, Message: "作成しました。"})
	}
	c.mu.Unlock()
	c.metrics.RecordSubmission(c.screen, string(mode.Kind), "success")

	_ = c.Reload(ctx)
	return nil
}

// Remove は確認が得られた場合のみレコードを削除し、現在のページを再取得する。
// 確認が得られなかった場合はリクエストを送らずにErrRemovalDeclinedを返す。
func (c *Controller[T]) Remove(ctx context.Context, item T, confirmer Confirmer) error {
	if confirmer == nil || !confirmer.Confirm(ctx, removalMessage(item.RecordLabel())) {
		return ErrRemovalDeclined
	}
	return c.remove(ctx, item.RecordID())
}

// remove は確認済みのレコードを削除する。
func (c *Controller[T]) remove(ctx context.Context, id int64) error {
	if err := c.source.Delete(ctx, id); err != nil {
		c.mu.Lock()
		c.pushError(err)
		c.mu.Unlock()
		c.metrics.RecordRemoval(c.screen, "failure")
		return err
	}

	c.mu.Lock()
	c.push(Notice{Level: NoticeSuccess, Message: "削除しました。"})
	c.mu.Unlock()
	c.metrics.RecordRemoval(c.screen, "success")

	_ = c.Reload(ctx)
	return nil
}

// Confirmation は削除確認の問い合わせ。
type Confirmation struct {
	Token     string    `json:"token"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestRemoval は現在の一覧にあるレコードの削除確認トークンを発行する。
func (c *Controller[T]) RequestRemoval(id int64) (Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range c.items {
		if it.RecordID() != id {
			continue
		}
		c.pruneRemovals()
		token := uuid.NewString()
		expiresAt := c.now().Add(removalTTL)
		c.removals[token] = pendingRemoval{id: id, label: it.RecordLabel(), expiresAt: expiresAt}
		return Confirmation{Token: token, Message: removalMessage(it.RecordLabel()), ExpiresAt: expiresAt}, nil
	}
	return Confirmation{}, model.NewRecordNotFoundError(id)
}

// ConfirmRemoval はRequestRemovalで発行したトークンを検証して削除を行う。
// トークンは1回限りで、IDが一致しない・期限切れの場合は削除しない。
// 確認はトークン発行時に済んでいるため、その後ページを移動していても削除できる。
func (c *Controller[T]) ConfirmRemoval(ctx context.Context, id int64, token string) error {
	c.mu.Lock()
	pending, ok := c.removals[token]
	if ok {
		delete(c.removals, token)
	}
	c.mu.Unlock()

	if !ok || pending.id != id || c.now().After(pending.expiresAt) {
		return model.NewConfirmationRequiredError()
	}
	c.logger.Info("削除確認済みのレコードを削除します",
		slog.String("screen", c.screen),
		slog.Int64("id", id),
		slog.String("label", pending.label),
	)
	return c.remove(ctx, id)
}

// pruneRemovals は期限切れの削除確認トークンを破棄する。呼び出し側でロックを保持すること。
func (c *Controller[T]) pruneRemovals() {
	now := c.now()
	for token, p := range c.removals {
		if now.After(p.expiresAt) {
			delete(c.removals, token)
		}
	}
}

// Cancel はドラフトを破棄してモーダルを閉じる。
func (c *Controller[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Mode{Kind: ModeClosed}
	c.draft = nil
}

// Import はファイルを一括インポートとして送信する。完了は追跡しない。
func (c *Controller[T]) Import(ctx context.Context, f *form.File) error {
	if c.bulk == nil {
		return model.NewNotSupportedError("import")
	}
	if f == nil || f.Size() == 0 {
		return model.NewMissingFieldsError([]string{"file"})
	}
	if err := c.bulk.Import(ctx, f); err != nil {
		c.mu.Lock()
		c.pushError(err)
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.push(Notice{Level: NoticeInfo, Message: "インポートを受け付けました。処理完了まで時間がかかる場合があります。"})
	c.mu.Unlock()
	return nil
}

// Export は期間を指定してエクスポートを依頼する。完了は追跡しない。
func (c *Controller[T]) Export(ctx context.Context, dr upstream.DateRange) error {
	if c.bulk == nil {
		return model.NewNotSupportedError("export")
	}
	var missing []string
	if dr.StartDate == "" {
		missing = append(missing, "start_date")
	}
	if dr.EndDate == "" {
		missing = append(missing, "end_date")
	}
	if len(missing) > 0 {
		return model.NewMissingFieldsError(missing)
	}
	if err := c.bulk.Export(ctx, dr); err != nil {
		c.mu.Lock()
		c.pushError(err)
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.push(Notice{Level: NoticeInfo, Message: "エクスポートを受け付けました。"})
	c.mu.Unlock()
	return nil
}

// SupportsBulk はインポート・エクスポートに対応しているかを返す。
func (c *Controller[T]) SupportsBulk() bool { return c.bulk != nil }

// Snapshot は画面の現在の状態を返す。保留中の通知は返した時点で消費される。
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot[T]{
		Screen:    c.screen,
		Mode:      c.mode,
		Items:     make([]T, len(c.items)),
		Page:      c.query.Page,
		PageSize:  c.query.PageSize,
		Search:    c.query.Search,
		LastPage:  c.lastPage,
		Total:     c.total,
		Loading:   c.inflight > 0,
		LoadError: c.loadErr,
		Notices:   c.notices,
		Bulk:      c.bulk != nil,
	}
	copy(s.Items, c.items)
	if c.draft != nil {
		s.Draft = c.draft.Clone()
	}
	c.notices = nil
	return s
}

// State はSnapshotを型に依存しない形で返す。
func (c *Controller[T]) State() any { return c.Snapshot() }

// push は通知を積む。呼び出し側でロックを保持すること。
func (c *Controller[T]) push(n Notice) {
	c.notices = append(c.notices, n)
}

// pushError はエラーを通知として積む。呼び出し側でロックを保持すること。
func (c *Controller[T]) pushError(err error) {
	n := Notice{Level: NoticeError, Message: messageOf(err, "処理に失敗しました。")}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		n.Code = apiErr.Code
		n.Fields = apiErr.Fields
	}
	c.push(n)
}

func removalMessage(label string) string {
	if label == "" {
		return "このデータを削除しますか？"
	}
	return fmt.Sprintf("「%s」を削除しますか？", label)
}

// messageOf はAPIErrorのメッセージ、それ以外はfallbackを返す。
func messageOf(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
