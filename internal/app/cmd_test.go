package app

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", nil, CommandServe},
		{"空文字はserve", []string{""}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"後続の引数は無視", []string{"worker", "--verbose"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownReturnsUsage(t *testing.T) {
	_, err := ParseCommand([]string{"fetch"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `"fetch"`) {
		t.Errorf("error should name the command: %v", err)
	}
	if !strings.Contains(err.Error(), "usage: backoffice") {
		t.Errorf("error should include usage: %v", err)
	}
}

func TestUsage_ListsEveryCommandSorted(t *testing.T) {
	u := Usage()
	order := []string{"healthcheck", "migrate", "serve", "worker"}
	last := -1
	for _, name := range order {
		idx := strings.Index(u, "  "+name)
		if idx < 0 {
			t.Fatalf("usage does not list %q:\n%s", name, u)
		}
		if idx < last {
			t.Errorf("%q is out of order:\n%s", name, u)
		}
		last = idx
	}
}
