package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はスクレイプ時に登録済みメトリクスが返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDuplicateMember()

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "backoffice_member_duplicates_total") {
		t.Error("response should contain backoffice_member_duplicates_total metric")
	}
}

// TestHandler_OnlyServesGivenRegistry は渡したレジストリ以外のメトリクスを含まないことを検証する。
func TestHandler_OnlyServesGivenRegistry(t *testing.T) {
	other := prometheus.NewRegistry()
	c := NewCollector(other)
	c.RecordDuplicateMember()

	handler := Handler(prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), "backoffice_member_duplicates_total") {
		t.Error("response should not contain metrics from another registry")
	}
}
