package form

import (
	"fmt"
	"strings"

	"github.com/hitoshi/backoffice/internal/security"
)

// Schema はエンティティごとのフォーム定義。
// 必須項目は存在チェックのみに使い、業務ルールの検証は外部APIに任せる。
type Schema struct {
	// Required は送信に必須のフィールド。
	Required []string
	// Defaults は新規作成時にドラフトへ設定する初期値。
	Defaults map[string]any
	// FileFields はファイルアップロードを受け付けるフィールド。
	// 1つでもあればペイロードはmultipartになる。
	FileFields []string
	// RichText はHTMLを受け付けるフィールド。送信前にサニタイズされる。
	RichText []string
}

// HasFiles はファイル項目を持つかを返す。
func (s Schema) HasFiles() bool { return len(s.FileFields) > 0 }

// IsFileField は指定フィールドがファイル項目かを返す。
func (s Schema) IsFileField(name string) bool { return contains(s.FileFields, name) }

// IsRichText は指定フィールドがリッチテキスト項目かを返す。
func (s Schema) IsRichText(name string) bool { return contains(s.RichText, name) }

// Missing は必須項目のうち値が存在しないものを返す。
// ファイル項目は添付ファイルまたは既存パスがあれば存在とみなす。
// リッチテキスト項目はタグを除いたテキストが空なら未入力とみなす。
func (s Schema) Missing(d *Draft) []string {
	var missing []string
	for _, name := range s.Required {
		if s.IsFileField(name) && d.File(name) != nil {
			continue
		}
		v, ok := d.Value(name)
		if !ok || isEmpty(v) {
			missing = append(missing, name)
			continue
		}
		if s.IsRichText(name) {
			if str, isStr := v.(string); isStr && security.PlainText(str) == "" {
				missing = append(missing, name)
			}
		}
	}
	return missing
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// isEmpty は値が未入力（nil、空白のみの文字列、空のスライス・マップ）かを返す。
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case fmt.Stringer:
		return strings.TrimSpace(x.String()) == ""
	default:
		return false
	}
}
