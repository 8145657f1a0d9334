// Package workspace はセッションごとの画面状態（組合員レコードの解決状態と各管理画面）を保持する。
package workspace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/backoffice/internal/crud"
	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/metrics"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/resolver"
	"github.com/hitoshi/backoffice/internal/screen"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// Workspace は1セッション分の状態。
type Workspace struct {
	SessionID string
	UserID    string
	// Client はセッションのアクセストークンで外部APIにアクセスする。
	Client *upstream.Client
	// Members は組合員リソース。
	Members *upstream.Resource[model.MemberRecord]
	// Tracker はセッションのユーザーIDに対応する組合員レコードの解決状態。
	Tracker *resolver.Tracker

	registry *screen.Registry
	opts     crud.Options

	mu         sync.Mutex
	screens    map[string]crud.Screen
	lastAccess time.Time
}

// Screen は画面名に対応するコントローラーを返す。初回アクセス時に生成する。
func (w *Workspace) Screen(name string) (crud.Screen, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.screens[name]; ok {
		return s, nil
	}
	def, ok := w.registry.Lookup(name)
	if !ok {
		return nil, model.NewScreenNotFoundError(name)
	}
	s := def.Build(w.Client, w.opts)
	w.screens[name] = s
	return s, nil
}

// Config はStoreの設定。
type Config struct {
	// IdleTTL は最終アクセスからワークスペースを破棄するまでの時間。
	IdleTTL time.Duration
	// CleanupInterval は期限切れワークスペースの削除間隔。
	CleanupInterval time.Duration
	// ResolverPageSize はレコード解決時の一覧1ページの件数。
	ResolverPageSize int
	// ListPageSize は管理画面の一覧1ページの件数。
	ListPageSize int
}

// DefaultConfig はデフォルトのStore設定を返す。
func DefaultConfig() Config {
	return Config{
		IdleTTL:          30 * time.Minute,
		CleanupInterval:  5 * time.Minute,
		ResolverPageSize: resolver.DefaultPageSize,
		ListPageSize:     crud.DefaultPageSize,
	}
}

// Store はセッションIDごとのWorkspaceを管理する。
// バックグラウンドで一定時間アクセスのないWorkspaceを破棄する。
type Store struct {
	base     *upstream.Client
	registry *screen.Registry
	builder  *form.Builder
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   Config
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace

	stopCh chan struct{}
}

// NewStore は新しいStoreを生成し、クリーンアップを開始する。
func NewStore(base *upstream.Client, registry *screen.Registry, builder *form.Builder, m metrics.MetricsCollector, logger *slog.Logger, config Config) *Store {
	if m == nil {
		m = metrics.Nop{}
	}
	s := &Store{
		base:     base,
		registry: registry,
		builder:  builder,
		metrics:  m,
		logger:   logger,
		config:   config,
		now:      time.Now,
		items:    make(map[string]*Workspace),
		stopCh:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	close(s.stopCh)
}

// Get はセッションのWorkspaceを返す。存在しない場合は生成する。
func (s *Store) Get(sess *model.Session) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if w, ok := s.items[sess.ID]; ok {
		w.mu.Lock()
		w.lastAccess = now
		w.mu.Unlock()
		return w
	}

	client := s.base.WithToken(sess.APIToken)
	members := upstream.NewResource[model.MemberRecord](client, screen.MemberPath)
	lookup := resolver.New(members, s.config.ResolverPageSize, s.metrics, s.logger)

	w := &Workspace{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Client:    client,
		Members:   members,
		Tracker:   resolver.NewTracker(lookup),
		registry:  s.registry,
		opts: crud.Options{
			Builder:  s.builder,
			PageSize: s.config.ListPageSize,
			Metrics:  s.metrics,
			Logger:   s.logger,
		},
		screens:    make(map[string]crud.Screen),
		lastAccess: now,
	}
	s.items[sess.ID] = w
	return w
}

// Remove はセッションのWorkspaceを破棄する。ログアウト時に呼ぶ。
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	w, ok := s.items[sessionID]
	delete(s.items, sessionID)
	s.mu.Unlock()

	if ok {
		w.Tracker.Close()
	}
}

// Count は保持しているWorkspaceの数を返す。テストおよびメトリクス用。
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// cleanupLoop はバックグラウンドで期限切れWorkspaceを定期的に削除する。
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからIdleTTLを超えたWorkspaceを削除する。
func (s *Store) cleanup() int {
	now := s.now()

	var expired []*Workspace
	s.mu.Lock()
	for id, w := range s.items {
		w.mu.Lock()
		idle := now.Sub(w.lastAccess)
		w.mu.Unlock()
		if idle > s.config.IdleTTL {
			expired = append(expired, w)
			delete(s.items, id)
		}
	}
	s.mu.Unlock()

	for _, w := range expired {
		w.Tracker.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("期限切れのワークスペースを削除しました", slog.Int("count", len(expired)))
	}
	return len(expired)
}
