// Package profile はログイン中のユーザー自身の組合員プロフィールの参照・更新を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/resolver"
	"github.com/hitoshi/backoffice/internal/security"
)

// maxPhotoBytes はプロフィール写真の最大サイズ。
const maxPhotoBytes = 5 << 20

// StatusUnavailable は外部APIとの通信に失敗し、セッション情報のみを表示していることを示す。
const StatusUnavailable resolver.Status = "unavailable"

// profileSchema はプロフィール更新フォームの定義。
var profileSchema = form.Schema{
	Required:   []string{"name", "email"},
	FileFields: []string{"photo"},
}

// passwordSchema はパスワード変更フォームの定義。
var passwordSchema = form.Schema{
	Required:   []string{"password", "password_confirmation"},
	FileFields: []string{"photo"},
}

// protectedFields はプロフィール更新で利用者が変更できないフィールド。
var protectedFields = map[string]bool{
	"id": true, "user_id": true, "status": true,
	"password": true, "password_confirmation": true, "photo": true,
}

// Tracker はセッションのユーザーに対応する組合員レコードの解決状態。
// resolver.Tracker がこれを満たす。
type Tracker interface {
	Resolve(ctx context.Context, key string) (resolver.Result, error)
	Status(key string) (resolver.Result, error)
	Invalidate()
}

// MemberWriter は組合員レコードを更新する。
type MemberWriter interface {
	Update(ctx context.Context, id int64, p *form.Payload) error
}

// Profile はプロフィール画面の表示内容。
// 組合員レコードが見つからない・取得できない場合はセッションのアカウント情報のみを持つ。
type Profile struct {
	Status   resolver.Status     `json:"status"`
	Account  model.Account       `json:"account"`
	Member   *model.MemberRecord `json:"member,omitempty"`
	Fallback bool                `json:"fallback"`
	Message  string              `json:"message,omitempty"`
}

// Photo はプロフィール写真の画像データ。
type Photo struct {
	ContentType string
	Data        []byte
}

// Service はプロフィールのサービス層。
type Service struct {
	builder      *form.Builder
	guard        security.URLGuard
	photoClient  *http.Client
	assetBaseURL string
	logger       *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// assetBaseURLは相対パスで返される写真の基準URL。
func NewService(builder *form.Builder, guard security.URLGuard, assetBaseURL string, photoTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		builder:      builder,
		guard:        guard,
		photoClient:  guard.NewSafeClient(photoTimeout),
		assetBaseURL: strings.TrimRight(assetBaseURL, "/"),
		logger:       logger,
	}
}

// Get はプロフィールを返す。解決が終わるまで待つ。
// 組合員レコードが見つからない場合や通信に失敗した場合は、エラーにせず
// セッションのアカウント情報で代替し、その状態をStatusで示す。
func (s *Service) Get(ctx context.Context, tracker Tracker, sess *model.Session) (*Profile, error) {
	res, err := tracker.Resolve(ctx, sess.UserID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return s.profileFrom(sess, res, err), nil
}

// Status は解決を待たずに現在の状態でプロフィールを返す。
// 解決中はStatusPendingとセッションのアカウント情報を返す。
func (s *Service) Status(tracker Tracker, sess *model.Session) *Profile {
	res, err := tracker.Status(sess.UserID)
	return s.profileFrom(sess, res, err)
}

func (s *Service) profileFrom(sess *model.Session, res resolver.Result, err error) *Profile {
	p := &Profile{Account: sess.Account()}
	if err != nil {
		if errors.Is(err, resolver.ErrSuperseded) {
			p.Status, p.Fallback = resolver.StatusPending, true
			return p
		}
		s.logger.Warn("組合員レコードの解決に失敗しました",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		p.Status, p.Fallback = StatusUnavailable, true
		p.Message = "プロフィールを読み込めませんでした。再読み込みしてください。"
		return p
	}

	p.Status = res.Status
	if res.Status == resolver.StatusResolved && res.Record != nil {
		p.Member = res.Record
		return p
	}
	p.Fallback = true
	if res.Status == resolver.StatusNotFound {
		p.Message = "組合員データが登録されていません。"
	}
	return p
}

// resolved は解決済みの組合員レコードを返す。
func (s *Service) resolved(ctx context.Context, tracker Tracker, sess *model.Session) (*model.MemberRecord, error) {
	res, err := tracker.Resolve(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if res.Status != resolver.StatusResolved || res.Record == nil {
		return nil, model.NewMemberNotResolvedError()
	}
	return res.Record, nil
}

// Update はプロフィールを更新する。写真は任意で、nilの場合は変更しない。
// 成功後は解決結果を破棄し、次回の参照で最新のレコードを取得させる。
func (s *Service) Update(ctx context.Context, tracker Tracker, members MemberWriter, sess *model.Session, values map[string]any, photo *form.File) error {
	record, err := s.resolved(ctx, tracker, sess)
	if err != nil {
		return err
	}

	d, err := form.DraftFrom(record)
	if err != nil {
		return fmt.Errorf("failed to copy member record: %w", err)
	}
	for k, v := range values {
		if protectedFields[k] {
			continue
		}
		d.Set(k, v)
	}
	if photo != nil {
		d.Attach("photo", photo)
	}

	payload, err := s.builder.Build(profileSchema, d)
	if err != nil {
		return err
	}
	if err := members.Update(ctx, record.ID, payload); err != nil {
		return err
	}

	tracker.Invalidate()
	s.logger.Info("プロフィールを更新しました",
		slog.String("user_id", sess.UserID),
		slog.Int64("member_id", record.ID),
	)
	return nil
}

// ChangePassword はパスワードを変更する。新しいパスワードと確認用の入力が一致しない場合は送信しない。
func (s *Service) ChangePassword(ctx context.Context, tracker Tracker, members MemberWriter, sess *model.Session, password, confirmation string) error {
	d := form.NewDraft(nil)
	d.Set("password", password)
	d.Set("password_confirmation", confirmation)
	if missing := passwordSchema.Missing(d); len(missing) > 0 {
		return model.NewMissingFieldsError(missing)
	}
	if password != confirmation {
		return model.NewPasswordMismatchError()
	}

	record, err := s.resolved(ctx, tracker, sess)
	if err != nil {
		return err
	}

	payload, err := s.builder.Build(passwordSchema, d)
	if err != nil {
		return err
	}
	if err := members.Update(ctx, record.ID, payload); err != nil {
		return err
	}

	s.logger.Info("パスワードを変更しました", slog.String("user_id", sess.UserID))
	return nil
}

// Photo は組合員レコードの写真を取得する。
// 写真のURLは組合員データ由来のため、SSRF対策済みのクライアントで取得する。
func (s *Service) Photo(ctx context.Context, tracker Tracker, sess *model.Session) (*Photo, error) {
	record, err := s.resolved(ctx, tracker, sess)
	if err != nil {
		return nil, err
	}
	if record.Photo == nil || strings.TrimSpace(*record.Photo) == "" {
		return nil, model.NewPhotoUnavailableError()
	}

	photoURL, err := s.photoURL(*record.Photo)
	if err != nil {
		return nil, model.NewPhotoUnavailableError()
	}
	if err := s.guard.ValidateURL(photoURL); err != nil {
		s.logger.Warn("安全でない写真URLを拒否しました",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPhotoUnavailableError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, model.NewPhotoUnavailableError()
	}
	resp, err := s.photoClient.Do(req)
	if err != nil {
		s.logger.Warn("写真の取得に失敗しました",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPhotoUnavailableError()
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(contentType, "image/") {
		return nil, model.NewPhotoUnavailableError()
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil || len(data) > maxPhotoBytes {
		return nil, model.NewPhotoUnavailableError()
	}

	return &Photo{ContentType: contentType, Data: data}, nil
}

// photoURL は写真パスを絶対URLに変換する。
func (s *Service) photoURL(path string) (string, error) {
	path = strings.TrimSpace(path)
	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if s.assetBaseURL == "" {
		return "", fmt.Errorf("asset base URL is not configured")
	}
	return s.assetBaseURL + "/" + strings.TrimLeft(path, "/"), nil
}
