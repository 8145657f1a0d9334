package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/profile"
	"github.com/hitoshi/backoffice/internal/resolver"
	"github.com/hitoshi/backoffice/internal/security"
)

func TestProfileHandler_Get_Fallback(t *testing.T) {
	svc := &mockProfileService{
		getFn: func(ctx context.Context, sess *model.Session) (*profile.Profile, error) {
			return &profile.Profile{Status: resolver.StatusNotFound, Account: sess.Account(), Fallback: true}, nil
		},
	}
	h := NewProfileHandler(svc, &mockWorkspaces{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil).WithContext(withSession(context.Background()))
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got profile.Profile
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !got.Fallback || got.Status != resolver.StatusNotFound || got.Account.Name != "Admin" {
		t.Errorf("profile = %+v", got)
	}
}

func TestProfileHandler_Get_NoSession(t *testing.T) {
	h := NewProfileHandler(&mockProfileService{}, &mockWorkspaces{})

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestProfileHandler_Update_Multipart はmultipartの値と写真がサービスに渡ることを検証する。
func TestProfileHandler_Update_Multipart(t *testing.T) {
	var gotValues map[string]any
	var gotPhoto *form.File
	svc := &mockProfileService{
		updateFn: func(ctx context.Context, sess *model.Session, values map[string]any, photo *form.File) error {
			gotValues, gotPhoto = values, photo
			return nil
		},
	}
	h := NewProfileHandler(svc, &mockWorkspaces{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "Siti Aminah")
	mw.WriteField("_method", "PUT")
	fw, _ := mw.CreateFormFile("photo", "siti.png")
	fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/profile", &buf).WithContext(withSession(context.Background()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if gotValues["name"] != "Siti Aminah" {
		t.Errorf("values = %v", gotValues)
	}
	if _, ok := gotValues["_method"]; ok {
		t.Error("_method should not be passed as a value")
	}
	if gotPhoto == nil || gotPhoto.Name != "siti.png" || gotPhoto.ContentType != "image/png" {
		t.Errorf("photo = %+v", gotPhoto)
	}
}

func TestProfileHandler_Update_ValidationError(t *testing.T) {
	svc := &mockProfileService{
		updateFn: func(ctx context.Context, sess *model.Session, values map[string]any, photo *form.File) error {
			return model.NewValidationError("", map[string][]string{"email": {"email sudah digunakan"}})
		},
	}
	h := NewProfileHandler(svc, &mockWorkspaces{})

	req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"email":"x@example.com"}`)).WithContext(withSession(context.Background()))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	body := assertErrorCode(t, w, model.ErrCodeValidationFailed)
	if len(body.Fields["email"]) != 1 {
		t.Errorf("fields = %v", body.Fields)
	}
}

func TestProfileHandler_ChangePassword(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"成功", `{"password":"rahasia123","password_confirmation":"rahasia123"}`, nil, http.StatusNoContent},
		{"不一致", `{"password":"a","password_confirmation":"b"}`, model.NewPasswordMismatchError(), http.StatusBadRequest},
		{"組合員未解決", `{"password":"a","password_confirmation":"a"}`, model.NewMemberNotResolvedError(), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockProfileService{
				changePasswordFn: func(ctx context.Context, sess *model.Session, password, confirmation string) error {
					return tt.err
				},
			}
			h := NewProfileHandler(svc, &mockWorkspaces{})

			req := httptest.NewRequest(http.MethodPut, "/api/profile/password", strings.NewReader(tt.body)).WithContext(withSession(context.Background()))
			w := httptest.NewRecorder()
			h.ChangePassword(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestProfileHandler_Photo(t *testing.T) {
	svc := &mockProfileService{
		photoFn: func(ctx context.Context, sess *model.Session) (*profile.Photo, error) {
			return &profile.Photo{ContentType: "image/jpeg", Data: []byte("JPEG")}, nil
		},
	}
	h := NewProfileHandler(svc, &mockWorkspaces{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile/photo", nil).WithContext(withSession(context.Background()))
	w := httptest.NewRecorder()
	h.Photo(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "JPEG" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestProfileHandler_Photo_Unavailable(t *testing.T) {
	h := NewProfileHandler(&mockProfileService{}, &mockWorkspaces{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile/photo", nil).WithContext(withSession(context.Background()))
	w := httptest.NewRecorder()
	h.Photo(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

type lookupFunc func(ctx context.Context, key string) (resolver.Result, error)

func (f lookupFunc) Resolve(ctx context.Context, key string) (resolver.Result, error) {
	return f(ctx, key)
}

// TestProfileHandler_Status_PendingThenResolved は走査中はpendingを返し、
// 解決後にresolvedとレコードを返すことを検証する。
func TestProfileHandler_Status_PendingThenResolved(t *testing.T) {
	release := make(chan struct{})
	tracker := resolver.NewTracker(lookupFunc(func(ctx context.Context, key string) (resolver.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return resolver.Result{}, ctx.Err()
		}
		record := model.MemberRecord{ID: 5, UserID: model.FlexID(key), Name: "Siti"}
		return resolver.Result{Status: resolver.StatusResolved, Record: &record}, nil
	}))
	defer tracker.Close()

	svc := profile.NewService(form.NewBuilder(nil), security.NewSSRFGuard(), "https://assets.example.com",
		time.Second, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	h := NewProfileHandler(svc, &mockWorkspaces{tracker: tracker})

	status := func() profile.Profile {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/profile/status", nil).WithContext(withSession(context.Background()))
		w := httptest.NewRecorder()
		h.Status(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var got profile.Profile
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		return got
	}

	// 走査がブロックされている間はセッション情報とpendingを返す
	got := status()
	if got.Status != resolver.StatusPending || !got.Fallback || got.Account.Name != "Admin" || got.Member != nil {
		t.Fatalf("pending profile = %+v", got)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := tracker.Resolve(ctx, "42"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	got = status()
	if got.Status != resolver.StatusResolved || got.Fallback || got.Member == nil || got.Member.ID != 5 {
		t.Errorf("resolved profile = %+v", got)
	}
}
