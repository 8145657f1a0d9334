package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/backoffice/internal/model"
)

// newChainRouter は本番と同じ順序でミドルウェアを組んだルーターを返す。
func newChainRouter(t *testing.T, logBuf *bytes.Buffer) *chi.Mux {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logBuf, nil))
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "sess-1" {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: "42", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)
	csrf := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRequestIDMiddleware())
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware(false))
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrf).ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(repo))
		r.Use(rl.GeneralMiddleware())
		r.Use(NewCSRFMiddleware(csrf))

		r.Get("/api/screens", func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": sess.UserID})
		})
		r.Post("/api/screens/hero/modal/submit", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})
	return r
}

func TestMiddlewareChain_AuthenticatedGET(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	req := httptest.NewRequest(http.MethodGet, "/api/screens", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["user_id"] != "42" {
		t.Errorf("user_id = %q, want 42", body["user_id"])
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID header")
	}
	// 安全なメソッドではCSRFトークンCookieが発行される
	if csrfCookieFrom(w) == nil {
		t.Error("expected csrf_token cookie on GET")
	}
}

func TestMiddlewareChain_NoSessionReturns401BeforeCSRF(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/screens/hero/modal/submit", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

// TestMiddlewareChain_CSRFFlow はトークン取得から状態変更リクエストまでの流れを検証する。
func TestMiddlewareChain_CSRFFlow(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	tw := httptest.NewRecorder()
	router.ServeHTTP(tw, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	var tokenBody map[string]string
	if err := json.NewDecoder(tw.Body).Decode(&tokenBody); err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}
	token := tokenBody["token"]

	submit := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/screens/hero/modal/submit", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
		if header != "" {
			req.Header.Set(csrfHeaderName, header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := submit(token); code != http.StatusNoContent {
		t.Errorf("with token: status = %d, want %d", code, http.StatusNoContent)
	}
	if code := submit(""); code != http.StatusForbidden {
		t.Errorf("without header: status = %d, want %d", code, http.StatusForbidden)
	}
}

func TestMiddlewareChain_PanicIsRecoveredWithRequestID(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	req := httptest.NewRequest(http.MethodGet, "/api/panic", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	req.Header.Set(RequestIDHeader, "req-panic")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !bytes.Contains(logBuf.Bytes(), []byte(`"request_id":"req-panic"`)) {
		t.Errorf("panic log should carry the request id: %s", logBuf.String())
	}
}
