package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/backoffice/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	BulkRate        rate.Limit    // インポート・エクスポートのレート（req/sec）。10/60
	BulkBurst       int           // インポート・エクスポートのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、インポート・エクスポート 10 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		BulkRate:        rate.Limit(10.0 / 60.0),
		BulkBurst:       10,
		CleanupInterval: 5 * time.Minute,
	}
}

// limiterSet はキー（ユーザーID）ごとのトークンバケットの集合。
type limiterSet struct {
	kind  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newLimiterSet(kind string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		kind:    kind,
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// allow はキーのバケットから1トークン消費できるかを返す。
func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastAccess = now
	s.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// evict は最終アクセスがttlより古いエントリを削除し、削除件数を返す。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// middleware はセッションのユーザーIDをキーに制限するミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (s *limiterSet) middleware(now func() time.Time) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !s.allow(userID, now()) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", s.kind),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, s.limit)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般とインポート・エクスポートの2系統のバケットを独立に持つ。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	bulk    *limiterSet
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		bulk:    newLimiterSet("bulk_transfer", config.BulkRate, config.BulkBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware(rl.clock)
}

// BulkTransferMiddleware はインポート・エクスポート専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) BulkTransferMiddleware() func(next http.Handler) http.Handler {
	return rl.bulk.middleware(rl.clock)
}

// GeneralLimiterCount は管理中のAPI全般リミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.len() }

// BulkLimiterCount は管理中のインポート・エクスポートリミッター数を返す。
func (rl *RateLimiter) BulkLimiterCount() int { return rl.bulk.len() }

func (rl *RateLimiter) clock() time.Time { return rl.now() }

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() int {
	ttl := rl.config.CleanupInterval * 2
	now := rl.now()
	return rl.general.evict(now, ttl) + rl.bulk.evict(now, ttl)
}

// retryAfterSeconds は1トークンが補充されるまでの秒数（切り上げ、最低1秒）。
func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 || limit == rate.Inf {
		return 1
	}
	sec := int(math.Ceil(1.0 / float64(limit)))
	if sec < 1 {
		return 1
	}
	return sec
}

// writeRateLimitResponse は429 Too Many RequestsをRetry-After付きで書き込む。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	sec := retryAfterSeconds(limit)
	w.Header().Set("Retry-After", strconv.Itoa(sec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(sec))
}
