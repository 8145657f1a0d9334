package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/backoffice/internal/crud"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/profile"
	"github.com/hitoshi/backoffice/internal/screen"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// ConfirmTokenHeader は削除確認トークンを送るヘッダー名。
const ConfirmTokenHeader = "X-Confirm-Token"

// Workspaces はセッションごとの画面状態へのアクセスを提供する。
type Workspaces interface {
	Screen(sess *model.Session, name string) (crud.Screen, error)
	Profile(sess *model.Session) (profile.Tracker, profile.MemberWriter)
	Remove(sessionID string)
}

// ScreenLister は利用可能な管理画面の定義を返す。
type ScreenLister interface {
	All() []screen.Definition
}

// ScreenHandler は一覧・モーダル形式の管理画面のHTTPハンドラー。
// すべての操作は画面の最新状態をJSONで返す。
type ScreenHandler struct {
	screens    ScreenLister
	workspaces Workspaces
}

// NewScreenHandler はScreenHandlerを生成する。
func NewScreenHandler(screens ScreenLister, workspaces Workspaces) *ScreenHandler {
	return &ScreenHandler{screens: screens, workspaces: workspaces}
}

// List は管理画面の一覧を返す。
// GET /api/screens
func (h *ScreenHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"screens": h.screens.All()})
}

// screenFor はURLの画面名に対応するセッションのコントローラーを返す。
func (h *ScreenHandler) screenFor(w http.ResponseWriter, r *http.Request) (crud.Screen, bool) {
	sess, ok := requireSession(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.workspaces.Screen(sess, chi.URLParam(r, "screen"))
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}
	return s, true
}

// recordID はURLのレコードIDを解析する。
func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		handleServiceError(w, r, model.NewInvalidRequestError("IDが不正です"))
		return 0, false
	}
	return id, true
}

// Load は一覧を読み込む。page・page_size・searchクエリを受け付ける。
// GET /api/screens/{screen}
func (h *ScreenHandler) Load(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}

	q := upstream.Query{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			handleServiceError(w, r, model.NewInvalidRequestError("pageが不正です"))
			return
		}
		q.Page = page
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 || size > 100 {
			handleServiceError(w, r, model.NewInvalidRequestError("page_sizeは1〜100で指定してください"))
			return
		}
		q.PageSize = size
	}

	// pageのみの指定は現在の検索条件を保ったままのページ移動として扱う
	var err error
	if q.Page > 0 && !r.URL.Query().Has("search") && !r.URL.Query().Has("page_size") {
		err = s.GoToPage(r.Context(), q.Page)
	} else {
		err = s.Load(r.Context(), q)
	}
	// 一覧取得の失敗は画面状態のload_errorとして返す
	if err != nil && r.Context().Err() != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// State は現在の画面状態を返す。
// GET /api/screens/{screen}/state
func (h *ScreenHandler) State(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// OpenCreate は新規作成モーダルを開く。
// POST /api/screens/{screen}/modal/create
func (h *ScreenHandler) OpenCreate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	s.OpenCreate()
	writeJSON(w, http.StatusOK, s.State())
}

// OpenEdit は編集モーダルを開く。
// POST /api/screens/{screen}/modal/edit/{id}
func (h *ScreenHandler) OpenEdit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.OpenEditByID(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// OpenDetail は読み取り専用の詳細モーダルを開く。
// POST /api/screens/{screen}/modal/detail/{id}
func (h *ScreenHandler) OpenDetail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.OpenDetailByID(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// UpdateDraft は編集中のドラフトに値やファイルを反映する。
// PATCH /api/screens/{screen}/modal/draft （JSONまたはmultipart）
func (h *ScreenHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	in, err := readFormInput(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if len(in.Values) > 0 {
		if err := s.SetValues(in.Values); err != nil {
			handleServiceError(w, r, err)
			return
		}
	}
	for name, f := range in.Files {
		if err := s.AttachFile(name, f); err != nil {
			handleServiceError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.State())
}

// Submit はドラフトを送信する。成功時はモーダルを閉じた後の画面状態を返す。
// POST /api/screens/{screen}/modal/submit
func (h *ScreenHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	if err := s.Submit(r.Context()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// Cancel はモーダルを閉じ、ドラフトを破棄する。
// DELETE /api/screens/{screen}/modal
func (h *ScreenHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	s.Cancel()
	writeJSON(w, http.StatusOK, s.State())
}

// RequestRemoval は削除確認トークンを発行する。
// POST /api/screens/{screen}/items/{id}/removal
func (h *ScreenHandler) RequestRemoval(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	confirmation, err := s.RequestRemoval(id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

// ConfirmRemoval は確認トークンを検証してレコードを削除する。
// DELETE /api/screens/{screen}/items/{id} （ヘッダー X-Confirm-Token 必須）
func (h *ScreenHandler) ConfirmRemoval(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.ConfirmRemoval(r.Context(), id, r.Header.Get(ConfirmTokenHeader)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// Import はファイルを一括インポートとして送信する。
// POST /api/screens/{screen}/import （multipart、fileフィールド）
func (h *ScreenHandler) Import(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	if !s.SupportsBulk() {
		handleServiceError(w, r, model.NewNotSupportedError("import"))
		return
	}
	if !isMultipart(r) {
		handleServiceError(w, r, model.NewInvalidRequestError("multipart/form-dataで送信してください"))
		return
	}
	in, err := readFormInput(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := s.Import(r.Context(), in.Files["file"]); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.State())
}

// Export は期間を指定してエクスポートを依頼する。
// POST /api/screens/{screen}/export
func (h *ScreenHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.screenFor(w, r)
	if !ok {
		return
	}
	var dr upstream.DateRange
	if err := decodeJSON(w, r, &dr); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := s.Export(r.Context(), dr); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.State())
}
