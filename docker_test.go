package backoffice_test

import (
	"os"
	"strings"
	"testing"
)

func readRepoFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// composeService はdocker-compose.ymlから指定サービスのブロックを切り出す。
// トップレベルのservices直下が2スペースインデントである前提の簡易パーサー。
func composeService(t *testing.T, compose, name string) string {
	t.Helper()
	var (
		block []string
		in    bool
	)
	for _, line := range strings.Split(compose, "\n") {
		switch {
		case line == "  "+name+":":
			in = true
		case in && strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "    "):
			in = false
		case in && line != "" && !strings.HasPrefix(line, " "):
			in = false
		}
		if in {
			block = append(block, line)
		}
	}
	if len(block) == 0 {
		t.Fatalf("service %q not found in docker-compose.yml", name)
	}
	return strings.Join(block, "\n")
}

func TestDockerfile(t *testing.T) {
	content := readRepoFile(t, "Dockerfile")

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"Goのビルドステージがある", strings.Contains(content, "FROM golang:")},
		{"実行ステージはdistroless", strings.Contains(lastFrom, "gcr.io/distroless")},
		{"cmd/backofficeをビルドする", strings.Contains(content, "-o /out/backoffice ./cmd/backoffice")},
		{"非rootで動く", strings.Contains(content, "USER nonroot")},
		// distrolessにはcurlがないためバイナリ自身で確認する
		{"HEALTHCHECKはサブコマンド", strings.Contains(content, `"healthcheck"]`)},
		{"既定はserve", strings.Contains(content, `CMD ["serve"]`)},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("Dockerfile: %s", c.name)
		}
	}
}

func TestDockerCompose_ServiceCommands(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	tests := map[string]string{
		"api":     `command: ["serve"]`,
		"worker":  `command: ["worker"]`,
		"migrate": `command: ["migrate"]`,
		"db":      "image: postgres:",
	}
	for svc, want := range tests {
		if block := composeService(t, compose, svc); !strings.Contains(block, want) {
			t.Errorf("service %s should contain %q", svc, want)
		}
	}
}

// TestDockerCompose_MigrateRunsFirst はAPIとワーカーがマイグレーション完了後に起動することを検証する。
func TestDockerCompose_MigrateRunsFirst(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	for _, svc := range []string{"api", "worker"} {
		block := composeService(t, compose, svc)
		if !strings.Contains(block, "migrate:") || !strings.Contains(block, "service_completed_successfully") {
			t.Errorf("service %s should wait for migrate", svc)
		}
	}
}

// TestDockerCompose_OnlyAPIReachesOutside は外部ネットワークに出られるのがapiだけであることを検証する。
// apiは上流の管理APIと通信し、それ以外は内部ネットワークに閉じる。
func TestDockerCompose_OnlyAPIReachesOutside(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	if !strings.Contains(compose, "internal: true") {
		t.Error("backend network should be internal")
	}
	for _, svc := range []string{"api", "worker", "migrate", "db"} {
		block := composeService(t, compose, svc)
		external := strings.Contains(block, "- external")
		if external != (svc == "api") {
			t.Errorf("service %s external network = %v", svc, external)
		}
	}
}
