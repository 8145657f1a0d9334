package handler

import (
	"github.com/hitoshi/backoffice/internal/crud"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/profile"
	"github.com/hitoshi/backoffice/internal/workspace"
)

// WorkspaceAdapter は workspace.Store を Workspaces に適合させるアダプタ。
type WorkspaceAdapter struct {
	store *workspace.Store
}

// NewWorkspaceAdapter はWorkspaceAdapterを生成する。
func NewWorkspaceAdapter(store *workspace.Store) *WorkspaceAdapter {
	return &WorkspaceAdapter{store: store}
}

// Screen はセッションの画面コントローラーを返す。
func (a *WorkspaceAdapter) Screen(sess *model.Session, name string) (crud.Screen, error) {
	return a.store.Get(sess).Screen(name)
}

// Profile はセッションの組合員レコード解決状態と組合員リソースを返す。
func (a *WorkspaceAdapter) Profile(sess *model.Session) (profile.Tracker, profile.MemberWriter) {
	ws := a.store.Get(sess)
	return ws.Tracker, ws.Members
}

// Remove はセッションのWorkspaceを破棄する。
func (a *WorkspaceAdapter) Remove(sessionID string) {
	a.store.Remove(sessionID)
}

// --- compile-time interface checks ---

var _ Workspaces = (*WorkspaceAdapter)(nil)
