package handler

import (
	"context"

	"github.com/hitoshi/backoffice/internal/crud"
	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/middleware"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/profile"
	"github.com/hitoshi/backoffice/internal/resolver"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn             func(ctx context.Context, email, password string) (*model.Session, error)
	logoutFn            func(ctx context.Context, sessionID string) error
	getCurrentAccountFn func(ctx context.Context, sessionID string) (*model.Account, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if m.getCurrentAccountFn != nil {
		return m.getCurrentAccountFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockTracker struct{}

func (mockTracker) Resolve(ctx context.Context, key string) (resolver.Result, error) {
	return resolver.Result{Status: resolver.StatusNotFound}, nil
}

func (mockTracker) Status(key string) (resolver.Result, error) {
	return resolver.Result{Status: resolver.StatusNotFound}, nil
}

func (mockTracker) Invalidate() {}

type mockMemberWriter struct{}

func (mockMemberWriter) Update(ctx context.Context, id int64, p *form.Payload) error { return nil }

type mockWorkspaces struct {
	screens map[string]crud.Screen
	tracker profile.Tracker
	removed []string
}

func (m *mockWorkspaces) Screen(sess *model.Session, name string) (crud.Screen, error) {
	if s, ok := m.screens[name]; ok {
		return s, nil
	}
	return nil, model.NewScreenNotFoundError(name)
}

func (m *mockWorkspaces) Profile(sess *model.Session) (profile.Tracker, profile.MemberWriter) {
	if m.tracker != nil {
		return m.tracker, mockMemberWriter{}
	}
	return mockTracker{}, mockMemberWriter{}
}

func (m *mockWorkspaces) Remove(sessionID string) {
	m.removed = append(m.removed, sessionID)
}

type mockProfileService struct {
	getFn            func(ctx context.Context, sess *model.Session) (*profile.Profile, error)
	updateFn         func(ctx context.Context, sess *model.Session, values map[string]any, photo *form.File) error
	changePasswordFn func(ctx context.Context, sess *model.Session, password, confirmation string) error
	photoFn          func(ctx context.Context, sess *model.Session) (*profile.Photo, error)
}

func (m *mockProfileService) Get(ctx context.Context, tracker profile.Tracker, sess *model.Session) (*profile.Profile, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sess)
	}
	return &profile.Profile{Account: sess.Account()}, nil
}

func (m *mockProfileService) Status(tracker profile.Tracker, sess *model.Session) *profile.Profile {
	res, _ := tracker.Status(sess.UserID)
	return &profile.Profile{Status: res.Status, Account: sess.Account(), Member: res.Record}
}

func (m *mockProfileService) Update(ctx context.Context, tracker profile.Tracker, members profile.MemberWriter, sess *model.Session, values map[string]any, photo *form.File) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, sess, values, photo)
	}
	return nil
}

func (m *mockProfileService) ChangePassword(ctx context.Context, tracker profile.Tracker, members profile.MemberWriter, sess *model.Session, password, confirmation string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, sess, password, confirmation)
	}
	return nil
}

func (m *mockProfileService) Photo(ctx context.Context, tracker profile.Tracker, sess *model.Session) (*profile.Photo, error) {
	if m.photoFn != nil {
		return m.photoFn(ctx, sess)
	}
	return nil, model.NewPhotoUnavailableError()
}

// mockScreen はcrud.Screenのモック。呼び出された操作を記録する。
type mockScreen struct {
	name    string
	bulk    bool
	calls   []string
	loadErr string

	loadFn           func(ctx context.Context, q upstream.Query) error
	openEditFn       func(ctx context.Context, id int64) error
	setValuesFn      func(values map[string]any) error
	attachFileFn     func(name string, f *form.File) error
	submitFn         func(ctx context.Context) error
	requestRemovalFn func(id int64) (crud.Confirmation, error)
	confirmRemovalFn func(ctx context.Context, id int64, token string) error
	importFn         func(ctx context.Context, f *form.File) error
	exportFn         func(ctx context.Context, dr upstream.DateRange) error
}

func (m *mockScreen) record(call string) { m.calls = append(m.calls, call) }

func (m *mockScreen) Name() string { return m.name }

func (m *mockScreen) Load(ctx context.Context, q upstream.Query) error {
	m.record("load")
	if m.loadFn != nil {
		if err := m.loadFn(ctx, q); err != nil {
			m.loadErr = err.Error()
			return err
		}
	}
	m.loadErr = ""
	return nil
}

func (m *mockScreen) GoToPage(ctx context.Context, page int) error { m.record("page"); return nil }
func (m *mockScreen) Reload(ctx context.Context) error             { m.record("reload"); return nil }
func (m *mockScreen) OpenCreate()                                  { m.record("create") }

func (m *mockScreen) OpenEditByID(ctx context.Context, id int64) error {
	m.record("edit")
	if m.openEditFn != nil {
		return m.openEditFn(ctx, id)
	}
	return nil
}

func (m *mockScreen) OpenDetailByID(ctx context.Context, id int64) error {
	m.record("detail")
	return nil
}

func (m *mockScreen) SetValues(values map[string]any) error {
	m.record("set")
	if m.setValuesFn != nil {
		return m.setValuesFn(values)
	}
	return nil
}

func (m *mockScreen) AttachFile(name string, f *form.File) error {
	m.record("attach")
	if m.attachFileFn != nil {
		return m.attachFileFn(name, f)
	}
	return nil
}

func (m *mockScreen) Submit(ctx context.Context) error {
	m.record("submit")
	if m.submitFn != nil {
		return m.submitFn(ctx)
	}
	return nil
}

func (m *mockScreen) RequestRemoval(id int64) (crud.Confirmation, error) {
	m.record("request_removal")
	if m.requestRemovalFn != nil {
		return m.requestRemovalFn(id)
	}
	return crud.Confirmation{}, nil
}

func (m *mockScreen) ConfirmRemoval(ctx context.Context, id int64, token string) error {
	m.record("confirm_removal")
	if m.confirmRemovalFn != nil {
		return m.confirmRemovalFn(ctx, id, token)
	}
	return nil
}

func (m *mockScreen) Cancel() { m.record("cancel") }

func (m *mockScreen) Import(ctx context.Context, f *form.File) error {
	m.record("import")
	if m.importFn != nil {
		return m.importFn(ctx, f)
	}
	return nil
}

func (m *mockScreen) Export(ctx context.Context, dr upstream.DateRange) error {
	m.record("export")
	if m.exportFn != nil {
		return m.exportFn(ctx, dr)
	}
	return nil
}

func (m *mockScreen) SupportsBulk() bool { return m.bulk }

func (m *mockScreen) State() any {
	state := map[string]any{"screen": m.name, "calls": len(m.calls)}
	if m.loadErr != "" {
		state["load_error"] = m.loadErr
	}
	return state
}

var _ crud.Screen = (*mockScreen)(nil)

// withSession はセッションミドルウェアを通過した状態のリクエストを返す。
func withSession(ctx context.Context) context.Context {
	return middleware.ContextWithSession(ctx, &model.Session{
		ID:       "sess-1",
		UserID:   "42",
		Name:     "Admin",
		Email:    "admin@example.com",
		APIToken: "tok",
	})
}
