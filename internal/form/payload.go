package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"

	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/security"
)

// MethodOverrideField はmultipartでPUTを表現するためのフィールド名。
// 外部APIはmultipartボディ付きのPUTを受け付けないため、POST + _method=PUT で送る。
const MethodOverrideField = "_method"

// Kind はペイロードのエンコーディング種別。
type Kind int

const (
	// KindJSON はJSONオブジェクトとして送信する。
	KindJSON Kind = iota
	// KindMultipart はmultipart/form-dataとして送信する。
	KindMultipart
)

// field はmultipartのテキスト項目。
type field struct {
	name  string
	value string
}

// filePart はmultipartのファイル項目。
type filePart struct {
	name string
	file *File
}

// Payload は外部APIへ送信するリクエストボディ。
type Payload struct {
	kind   Kind
	object map[string]any
	fields []field
	files  []filePart
}

// NewJSONPayload はJSONペイロードを生成する。
func NewJSONPayload(object map[string]any) *Payload {
	if object == nil {
		object = make(map[string]any)
	}
	return &Payload{kind: KindJSON, object: object}
}

// NewFilePayload は単一ファイルだけを含むmultipartペイロードを生成する。
// インポートエンドポイントへの送信に使う。
func NewFilePayload(name string, f *File) *Payload {
	return &Payload{kind: KindMultipart, files: []filePart{{name: name, file: f}}}
}

// Kind はエンコーディング種別を返す。
func (p *Payload) Kind() Kind { return p.kind }

// Has は指定キーがペイロードに含まれるかを返す。
func (p *Payload) Has(name string) bool {
	if p.kind == KindJSON {
		_, ok := p.object[name]
		return ok
	}
	for _, f := range p.fields {
		if f.name == name {
			return true
		}
	}
	for _, f := range p.files {
		if f.name == name {
			return true
		}
	}
	return false
}

// Text はmultipartのテキスト項目、またはJSONの値の文字列表現を返す。
func (p *Payload) Text(name string) (string, bool) {
	if p.kind == KindJSON {
		v, ok := p.object[name]
		if !ok {
			return "", false
		}
		s, _ := stringify(v)
		return s, true
	}
	for _, f := range p.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return "", false
}

// FileOf は指定名のファイル項目を返す。
func (p *Payload) FileOf(name string) *File {
	for _, f := range p.files {
		if f.name == name {
			return f.file
		}
	}
	return nil
}

// WithMethodOverride はmultipartペイロードにメソッド上書きフィールドを追加したコピーを返す。
// JSONペイロードはそのまま返す。
func (p *Payload) WithMethodOverride(method string) *Payload {
	if p.kind != KindMultipart {
		return p
	}
	cp := *p
	cp.fields = append(append([]field(nil), p.fields...), field{name: MethodOverrideField, value: method})
	return &cp
}

// Encode はリクエストボディとContent-Typeを返す。
func (p *Payload) Encode() (io.Reader, string, error) {
	if p.kind == KindJSON {
		b, err := json.Marshal(p.object)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode json payload: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range p.fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}
	for _, fp := range p.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fp.name, fp.file.Name))
		contentType := fp.file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part %s: %w", fp.name, err)
		}
		if _, err := part.Write(fp.file.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write file part %s: %w", fp.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Builder はドラフトからペイロードを組み立てる。
type Builder struct {
	sanitizer security.HTMLSanitizer
}

// NewBuilder はBuilderを生成する。sanitizerがnilの場合リッチテキストはそのまま送る。
func NewBuilder(sanitizer security.HTMLSanitizer) *Builder {
	return &Builder{sanitizer: sanitizer}
}

// Build は必須項目の存在を確認したうえでペイロードを組み立てる。
//
// ファイル項目を持つスキーマはmultipartになり、以下の規則で項目を追加する:
//   - nilや空文字列の項目は送らない（空文字列として送らない）
//   - ファイル項目は添付ファイルがある場合のみ送る。既存パスの文字列は「変更なし」として送らない
//
// ファイル項目を持たないスキーマはドラフトの値をそのままJSONで送る。
// 必須項目が欠けている場合はmodel.APIError（MISSING_FIELDS）を返す。
func (b *Builder) Build(schema Schema, d *Draft) (*Payload, error) {
	if missing := schema.Missing(d); len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	values := d.Values()
	for _, name := range schema.RichText {
		if s, ok := values[name].(string); ok && b.sanitizer != nil {
			values[name] = b.sanitizer.Sanitize(s)
		}
	}

	if !schema.HasFiles() {
		return NewJSONPayload(values), nil
	}

	p := &Payload{kind: KindMultipart}
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		if schema.IsFileField(name) {
			continue
		}
		s, ok := stringify(values[name])
		if !ok || s == "" {
			continue
		}
		p.fields = append(p.fields, field{name: name, value: s})
	}

	for _, name := range schema.FileFields {
		if f := d.File(name); f != nil {
			p.files = append(p.files, filePart{name: name, file: f})
		}
	}

	return p, nil
}

// stringify はmultipartで送るための文字列表現を返す。
// nilや空の値の場合は第2戻り値がfalseになる。
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		if isEmpty(x) {
			return "", false
		}
		return x, true
	case json.Number:
		return x.String(), x.String() != ""
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case []any:
		if len(x) == 0 {
			return "", false
		}
	case map[string]any:
		if len(x) == 0 {
			return "", false
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
