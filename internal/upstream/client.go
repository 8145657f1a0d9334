// Package upstream は外部REST APIのクライアントを提供する。
// 一覧・詳細・作成・更新・削除・インポート・エクスポートとログインを扱い、
// 自動リトライは一切行わない。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/metrics"
	"github.com/hitoshi/backoffice/internal/model"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 10 << 20

// ErrUnavailable は外部APIから応答を得られなかったことを示す。
// HTTPステータスを伴うエラー（検証エラー等）とは区別される。
var ErrUnavailable = errors.New("upstream unavailable")

// ErrNotFound は外部APIが404を返したことを示す。
var ErrNotFound = errors.New("upstream resource not found")

// Client は外部REST APIのクライアント。
// WithTokenで生成したコピーはセッションごとのベアラートークンを持つが、
// HTTPクライアント・レートリミッター・メトリクスは共有する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
// limiterがnilの場合は送信レートを制限しない。
func NewClient(baseURL string, httpClient *http.Client, limiter *rate.Limiter, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
	}
}

// WithToken は指定トークンで認証するClientのコピーを返す。
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// errorBody は外部APIのエラーレスポンス。
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// do はリクエストを送信し、2xxの場合はレスポンスをoutへデコードする。
// outがnilの場合はボディを読み捨てる。
func (c *Client) do(ctx context.Context, method, resource, path string, query url.Values, payload *form.Payload, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	var contentType string
	if payload != nil {
		var err error
		body, contentType, err = payload.Encode()
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Backoffice/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamFailure(resource, method)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("外部APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrUnavailable, model.NewUpstreamUnavailableError())
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamRequest(resource, method, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrUnavailable, model.NewUpstreamUnavailableError())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(method, path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("外部APIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewUpstreamError("外部APIのレスポンスを解釈できませんでした")
	}
	return nil
}

// statusError はHTTPステータスとエラーボディをAPIErrorに変換する。
func (c *Client) statusError(method, path string, status int, raw []byte) error {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	c.logger.Warn("外部APIがエラーステータスを返しました",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_status", status),
	)

	switch status {
	case http.StatusUnprocessableEntity:
		return model.NewValidationError(eb.Message, eb.Errors)
	case http.StatusUnauthorized:
		return model.NewUnauthorizedError()
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, model.NewUpstreamError(eb.Message))
	default:
		return model.NewUpstreamError(eb.Message)
	}
}

// unwrapData は {"data": {...}} 形式のラッパーを取り除く。
// dataがオブジェクトでない場合は元のボディを返す。
func unwrapData(raw json.RawMessage) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	d := bytes.TrimSpace(env.Data)
	if len(d) > 0 && d[0] == '{' {
		return d
	}
	return raw
}

// LoginResult は外部APIのログイン応答。
type LoginResult struct {
	AccessToken string
	User        LoginUser
}

// LoginUser はログインしたアカウントの情報。
type LoginUser struct {
	ID    model.FlexID `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
}

// Login はメールアドレスとパスワードで外部APIにログインする。
// 認証失敗（401・422）はINVALID_CREDENTIALSとして返す。
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	payload := form.NewJSONPayload(map[string]any{"email": email, "password": password})

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/login", "/login", nil, payload, &raw); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) &&
			(apiErr.Code == model.ErrCodeUnauthorized || apiErr.Code == model.ErrCodeValidationFailed) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, err
	}

	var body struct {
		AccessToken string    `json:"access_token"`
		Token       string    `json:"token"`
		User        LoginUser `json:"user"`
	}
	if err := json.Unmarshal(unwrapData(raw), &body); err != nil {
		return nil, model.NewUpstreamError("ログイン応答を解釈できませんでした")
	}
	token := body.AccessToken
	if token == "" {
		token = body.Token
	}
	if token == "" {
		return nil, model.NewUpstreamError("ログイン応答にアクセストークンが含まれていません")
	}

	return &LoginResult{AccessToken: token, User: body.User}, nil
}
