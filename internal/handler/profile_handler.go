package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, tracker profile.Tracker, sess *model.Session) (*profile.Profile, error)
	Status(tracker profile.Tracker, sess *model.Session) *profile.Profile
	Update(ctx context.Context, tracker profile.Tracker, members profile.MemberWriter, sess *model.Session, values map[string]any, photo *form.File) error
	ChangePassword(ctx context.Context, tracker profile.Tracker, members profile.MemberWriter, sess *model.Session, password, confirmation string) error
	Photo(ctx context.Context, tracker profile.Tracker, sess *model.Session) (*profile.Photo, error)
}

// ProfileHandler はログイン中のユーザー自身のプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service    ProfileServiceInterface
	workspaces Workspaces
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, workspaces Workspaces) *ProfileHandler {
	return &ProfileHandler{service: service, workspaces: workspaces}
}

// Get はプロフィールを返す。組合員レコードが見つからない場合もセッション情報で200を返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	tracker, _ := h.workspaces.Profile(sess)

	p, err := h.service.Get(r.Context(), tracker, sess)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Status は組合員レコードの解決を待たずに現在の状態を返す。
// 解決中はstatusがpendingになり、クライアントはresolvedかnot_foundになるまでポーリングする。
// GET /api/profile/status
func (h *ProfileHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	tracker, _ := h.workspaces.Profile(sess)
	writeJSON(w, http.StatusOK, h.service.Status(tracker, sess))
}

// Update はプロフィールを更新し、更新後のプロフィールを返す。
// PUT /api/profile （multipart。photoは任意）
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	in, err := readFormInput(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	tracker, members := h.workspaces.Profile(sess)

	if err := h.service.Update(r.Context(), tracker, members, sess, in.Values, in.Files["photo"]); err != nil {
		handleServiceError(w, r, err)
		return
	}

	p, err := h.service.Get(r.Context(), tracker, sess)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type changePasswordRequest struct {
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ChangePassword はパスワードを変更する。
// PUT /api/profile/password
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	tracker, members := h.workspaces.Profile(sess)

	if err := h.service.ChangePassword(r.Context(), tracker, members, sess, req.Password, req.PasswordConfirmation); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Photo はプロフィール写真を中継する。
// GET /api/profile/photo
func (h *ProfileHandler) Photo(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	tracker, _ := h.workspaces.Profile(sess)

	photo, err := h.service.Photo(r.Context(), tracker, sess)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(photo.Data)
}
