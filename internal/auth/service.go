// Package auth は外部APIの資格情報によるログインとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/repository"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// Authenticator は外部APIへのログインを行う。upstream.Client がこれを満たす。
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*upstream.LoginResult, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	authenticator Authenticator
	sessionRepo   repository.SessionRepository
	config        ServiceConfig
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(authenticator Authenticator, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		authenticator: authenticator,
		sessionRepo:   sessionRepo,
		config:        config,
		now:           time.Now,
	}
}

// Login は外部APIで資格情報を検証し、セッションを発行する。
// セッションの有効期限はSessionMaxAgeと、アクセストークン（JWT）のexpのうち早い方になる。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	res, err := s.authenticator.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to login upstream: %w", err)
	}

	userID := strings.TrimSpace(string(res.User.ID))
	if userID == "" {
		return nil, model.NewUpstreamError("ログイン応答にユーザーIDが含まれていません")
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(s.config.SessionMaxAge) * time.Second)
	if exp, ok := tokenExpiry(res.AccessToken); ok && exp.Before(expiresAt) {
		expiresAt = exp
	}
	if !expiresAt.After(now) {
		return nil, model.NewUpstreamError("アクセストークンの有効期限が切れています")
	}

	name := res.User.Name
	if name == "" {
		name = email
	}
	accountEmail := res.User.Email
	if accountEmail == "" {
		accountEmail = email
	}

	session, err := s.createSession(ctx, &model.Session{
		UserID:    userID,
		Name:      name,
		Email:     accountEmail,
		APIToken:  res.AccessToken,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", userID),
		slog.Time("expires_at", expiresAt),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentAccount はセッションから現在のアカウント情報を取得する。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	account := session.Account()
	return &account, nil
}

// createSession はセッションIDを採番して永続化する。
func (s *Service) createSession(ctx context.Context, session *model.Session) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	session.ID = sessionID

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// tokenExpiry はJWT形式のアクセストークンからexpを読み取る。
// 署名は外部APIが検証するため、ここでは検証しない。JWTでない場合はfalseを返す。
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
