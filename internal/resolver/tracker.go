package resolver

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded は待機中にキーが変わり、結果が破棄されたことを示す。
var ErrSuperseded = errors.New("resolution superseded by a newer key")

// attempt は1つのキーに対する解決の試行。
type attempt struct {
	key     string
	cancel  context.CancelFunc
	done    chan struct{}
	settled bool
	result  Result
	err     error
}

// Tracker は1人の利用者（セッション）に対する解決状態を保持する。
//
// キーが変わると進行中の試行をキャンセルして1ページ目からやり直し、
// 古いキーの結果は決して返さない。同じキーの解決結果は再利用するため、
// 詳細の取得は1回の解決につき1回に限られる。通信エラーは保持せず、
// 次の呼び出しで改めて解決を行う。
type Tracker struct {
	lookup Lookup

	mu      sync.Mutex
	current *attempt
}

// NewTracker はTrackerを生成する。
func NewTracker(lookup Lookup) *Tracker {
	return &Tracker{lookup: lookup}
}

// ensure はkeyに対する試行を返す。必要なら新しい試行を開始する。
func (t *Tracker) ensure(key string) *attempt {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a := t.current; a != nil && a.key == key {
		if !a.settled || a.err == nil {
			return a
		}
	}
	if t.current != nil {
		t.current.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{key: key, cancel: cancel, done: make(chan struct{})}
	t.current = a
	go t.run(ctx, a)
	return a
}

func (t *Tracker) run(ctx context.Context, a *attempt) {
	res, err := t.lookup.Resolve(ctx, a.key)

	t.mu.Lock()
	a.result, a.err, a.settled = res, err, true
	t.mu.Unlock()

	a.cancel()
	close(a.done)
}

// Resolve はkeyの解決結果を待って返す。
// ctxが先に終了した場合はStatusPendingとctxのエラーを返すが、解決自体は継続する。
// 待機中に別のキーで解決が始まった場合はErrSupersededを返す。
func (t *Tracker) Resolve(ctx context.Context, key string) (Result, error) {
	a := t.ensure(key)

	select {
	case <-a.done:
	case <-ctx.Done():
		return Result{Status: StatusPending}, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != a {
		return Result{Status: StatusPending}, ErrSuperseded
	}
	return a.result, a.err
}

// Status はkeyの現在の状態を待たずに返す。
// 未解決の場合は解決を開始してStatusPendingを返す。
// 直前の試行が通信エラーで終わっていた場合はそのエラーを一度だけ返し、次の呼び出しで再試行する。
func (t *Tracker) Status(key string) (Result, error) {
	t.mu.Lock()
	if a := t.current; a != nil && a.key == key && a.settled && a.err != nil {
		t.current = nil
		t.mu.Unlock()
		return Result{}, a.err
	}
	t.mu.Unlock()

	a := t.ensure(key)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !a.settled {
		return Result{Status: StatusPending}, nil
	}
	return a.result, a.err
}

// Invalidate は保持している結果を破棄する。
// プロフィール更新後など、次の呼び出しで必ず最新のレコードを取得させたい場合に使う。
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.cancel()
		t.current = nil
	}
}

// Close は進行中の解決をキャンセルする。
func (t *Tracker) Close() {
	t.Invalidate()
}
