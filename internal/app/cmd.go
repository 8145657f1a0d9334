package app

import (
	"fmt"
	"sort"
	"strings"
)

// Command はバイナリのサブコマンド。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

// commandSummaries はサブコマンドごとの説明。usageの出力にも使う。
var commandSummaries = map[Command]string{
	CommandServe:       "管理画面APIサーバーを起動する",
	CommandWorker:      "期限切れセッションの定期削除を実行する",
	CommandMigrate:     "データベースマイグレーションを適用して終了する",
	CommandHealthcheck: "ローカルの/healthを叩いて終了コードで結果を返す",
}

// ParseCommand は引数の先頭をサブコマンドとして解釈する。
// 引数なしはserve扱い。未知のサブコマンドはエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	cmd := Command(args[0])
	if _, ok := commandSummaries[cmd]; !ok {
		return "", fmt.Errorf("unknown command %q\n%s", args[0], Usage())
	}
	return cmd, nil
}

// Usage はサブコマンド一覧を返す。
func Usage() string {
	names := make([]string, 0, len(commandSummaries))
	for cmd := range commandSummaries {
		names = append(names, string(cmd))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: backoffice <command>\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-12s %s\n", name, commandSummaries[Command(name)])
	}
	return b.String()
}
