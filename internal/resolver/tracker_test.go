package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/backoffice/internal/model"
)

// mockLookup はキーごとの応答を関数で差し替えられるLookup。
type mockLookup struct {
	mu        sync.Mutex
	calls     []string
	resolveFn func(ctx context.Context, key string) (Result, error)
}

func (m *mockLookup) Resolve(ctx context.Context, key string) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, key)
	m.mu.Unlock()
	return m.resolveFn(ctx, key)
}

func (m *mockLookup) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func resolvedFor(key string, id int64) Result {
	return Result{Status: StatusResolved, Record: &model.MemberRecord{ID: id, UserID: model.FlexID(key)}}
}

func TestTracker_ReusesSettledResult(t *testing.T) {
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		return resolvedFor(key, 1), nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	for i := 0; i < 3; i++ {
		res, err := tr.Resolve(context.Background(), "42")
		if err != nil {
			t.Fatalf("Resolve がエラーを返した: %v", err)
		}
		if res.Status != StatusResolved {
			t.Fatalf("Status = %s, want %s", res.Status, StatusResolved)
		}
	}
	if n := lookup.callCount(); n != 1 {
		t.Errorf("解決の実行回数 = %d, want 1", n)
	}
}

// TestTracker_KeyChangeRestarts はキー変更で進行中の解決をキャンセルし、古いキーの結果を返さないことを検証する。
func TestTracker_KeyChangeRestarts(t *testing.T) {
	oldStarted := make(chan struct{})
	oldCancelled := make(chan struct{})
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		if key == "A" {
			close(oldStarted)
			<-ctx.Done()
			close(oldCancelled)
			// キャンセル後に結果を返しても採用されてはならない
			return resolvedFor("A", 1), nil
		}
		return resolvedFor(key, 2), nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	type outcome struct {
		res Result
		err error
	}
	oldDone := make(chan outcome, 1)
	go func() {
		res, err := tr.Resolve(context.Background(), "A")
		oldDone <- outcome{res, err}
	}()
	<-oldStarted

	res, err := tr.Resolve(context.Background(), "B")
	if err != nil {
		t.Fatalf("Resolve(B) がエラーを返した: %v", err)
	}
	if res.Record == nil || res.Record.ID != 2 {
		t.Errorf("Record = %+v, want id 2 for key B", res.Record)
	}

	select {
	case <-oldCancelled:
	case <-time.After(time.Second):
		t.Fatal("古いキーの解決がキャンセルされなかった")
	}

	old := <-oldDone
	if !errors.Is(old.err, ErrSuperseded) {
		t.Errorf("古いキーの待機結果 err = %v, want ErrSuperseded", old.err)
	}
	if old.res.Record != nil {
		t.Errorf("古いキーのレコードが返された: %+v", old.res.Record)
	}

	// 現在のキーはBのまま
	if res, _ := tr.Status("B"); res.Record == nil || res.Record.ID != 2 {
		t.Errorf("Status(B) = %+v, want id 2", res)
	}
}

// TestTracker_TransportErrorNotCached は通信エラーが保持されず次の呼び出しで再試行されることを検証する。
func TestTracker_TransportErrorNotCached(t *testing.T) {
	var mu sync.Mutex
	fail := true
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			fail = false
			return Result{Status: StatusPending}, errors.New("connection refused")
		}
		return resolvedFor(key, 5), nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	if _, err := tr.Resolve(context.Background(), "42"); err == nil {
		t.Fatal("1回目はエラーを返すべき")
	}
	res, err := tr.Resolve(context.Background(), "42")
	if err != nil {
		t.Fatalf("2回目の Resolve がエラーを返した: %v", err)
	}
	if res.Status != StatusResolved {
		t.Errorf("Status = %s, want %s", res.Status, StatusResolved)
	}
	if n := lookup.callCount(); n != 2 {
		t.Errorf("解決の実行回数 = %d, want 2", n)
	}
}

func TestTracker_NotFoundIsCached(t *testing.T) {
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		return Result{Status: StatusNotFound, PagesScanned: 1}, nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	tr.Resolve(context.Background(), "42")
	res, _ := tr.Resolve(context.Background(), "42")
	if res.Status != StatusNotFound {
		t.Errorf("Status = %s, want %s", res.Status, StatusNotFound)
	}
	if n := lookup.callCount(); n != 1 {
		t.Errorf("NotFoundは自動で再試行しない: 実行回数 = %d, want 1", n)
	}
}

func TestTracker_InvalidateForcesFreshResolution(t *testing.T) {
	var mu sync.Mutex
	var nextID int64
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		mu.Lock()
		defer mu.Unlock()
		nextID++
		return resolvedFor(key, nextID), nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	first, _ := tr.Resolve(context.Background(), "42")
	tr.Invalidate()
	second, _ := tr.Resolve(context.Background(), "42")

	if first.Record.ID == second.Record.ID {
		t.Error("Invalidate後は新しい解決結果を返すべき")
	}
	if n := lookup.callCount(); n != 2 {
		t.Errorf("解決の実行回数 = %d, want 2", n)
	}
}

func TestTracker_StatusIsPendingWhileScanning(t *testing.T) {
	release := make(chan struct{})
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		<-release
		return resolvedFor(key, 1), nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	res, err := tr.Status("42")
	if err != nil || res.Status != StatusPending {
		t.Errorf("Status = %s (err=%v), want pending", res.Status, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err = tr.Resolve(ctx, "42")
	if !errors.Is(err, context.DeadlineExceeded) || res.Status != StatusPending {
		t.Errorf("Resolve = %s (err=%v), want pending with deadline exceeded", res.Status, err)
	}

	close(release)
	res, err = tr.Resolve(context.Background(), "42")
	if err != nil || res.Status != StatusResolved {
		t.Errorf("Resolve = %s (err=%v), want resolved", res.Status, err)
	}
	if n := lookup.callCount(); n != 1 {
		t.Errorf("解決の実行回数 = %d, want 1", n)
	}
}

// TestTracker_StatusReportsTransportErrorOnce は通信エラーを一度だけ返し、次の呼び出しで再試行することを検証する。
func TestTracker_StatusReportsTransportErrorOnce(t *testing.T) {
	var mu sync.Mutex
	fail := true
	lookup := &mockLookup{resolveFn: func(ctx context.Context, key string) (Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			fail = false
			return Result{}, errors.New("connection refused")
		}
		return resolvedFor(key, 5), nil
	}}
	tr := NewTracker(lookup)
	defer tr.Close()

	if _, err := tr.Resolve(context.Background(), "42"); err == nil {
		t.Fatal("1回目はエラーを返すべき")
	}
	if _, err := tr.Status("42"); err == nil {
		t.Fatal("Status は直前の通信エラーを返すべき")
	}

	// 再試行が始まり、完了後はresolvedになる
	deadline := time.Now().Add(time.Second)
	for {
		res, err := tr.Status("42")
		if err != nil {
			t.Fatalf("再試行後の Status がエラーを返した: %v", err)
		}
		if res.Status == StatusResolved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Status = %s, want resolved", res.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := lookup.callCount(); n != 2 {
		t.Errorf("解決の実行回数 = %d, want 2", n)
	}
}
