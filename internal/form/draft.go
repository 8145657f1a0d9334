// Package form はモーダルフォームの入力途中の状態（ドラフト）と、
// 外部APIへ送信するペイロードの組み立てを提供する。
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// File はユーザーが選択した未送信のファイルを表す。
// ドラフト上のファイル項目が文字列（既存のパス）の場合は「変更なし」を意味し、
// Fileが添付されている場合のみ送信対象になる。
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size はファイルのバイト数を返す。
func (f *File) Size() int { return len(f.Data) }

// Draft は作成・編集中のエンティティの部分的な表現。
// エンティティに存在しない一時フィールド（password_confirmation等）も保持できる。
// モーダルが開いている間だけ存在し、キャンセル時は破棄される。
type Draft struct {
	values map[string]any
	files  map[string]*File
}

// NewDraft はデフォルト値をコピーしたドラフトを生成する。
func NewDraft(defaults map[string]any) *Draft {
	d := &Draft{
		values: make(map[string]any, len(defaults)),
		files:  make(map[string]*File),
	}
	for k, v := range defaults {
		d.values[k] = v
	}
	return d
}

// DraftFrom は既存レコードからドラフトを生成する。
// レコードをJSONとして展開するため、数値はjson.Numberとして保持される。
// 返されるドラフトは元のレコードと値を共有しない。
func DraftFrom(item any) (*Draft, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode record as object: %w", err)
	}
	if values == nil {
		values = make(map[string]any)
	}

	return &Draft{values: values, files: make(map[string]*File)}, nil
}

// Set はフィールドの値を設定する。同名の添付ファイルがあれば取り除く。
func (d *Draft) Set(name string, value any) {
	d.values[name] = value
	delete(d.files, name)
}

// Attach はファイル項目にファイルを添付する。
func (d *Draft) Attach(name string, f *File) {
	d.files[name] = f
}

// Value はフィールドの値を返す。
func (d *Draft) Value(name string) (any, bool) {
	v, ok := d.values[name]
	return v, ok
}

// File は添付ファイルを返す。未添付の場合はnil。
func (d *Draft) File(name string) *File {
	return d.files[name]
}

// Values はフィールド値のコピーを返す。
func (d *Draft) Values() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// Clone はドラフトのコピーを返す。添付ファイルの中身は共有する。
func (d *Draft) Clone() *Draft {
	cp := &Draft{
		values: d.Values(),
		files:  make(map[string]*File, len(d.files)),
	}
	for k, f := range d.files {
		cp.files[k] = f
	}
	return cp
}

// Names は値または添付ファイルを持つフィールド名を昇順で返す。
func (d *Draft) Names() []string {
	seen := make(map[string]bool, len(d.values)+len(d.files))
	for k := range d.values {
		seen[k] = true
	}
	for k := range d.files {
		seen[k] = true
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// fileSummary はスナップショット表示用の添付ファイル情報。
type fileSummary struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// MarshalJSON はドラフトを画面表示用にエンコードする。
// 添付ファイルは中身を含めず、名前とサイズのみを出力する。
func (d *Draft) MarshalJSON() ([]byte, error) {
	files := make(map[string]fileSummary, len(d.files))
	for k, f := range d.files {
		files[k] = fileSummary{Name: f.Name, ContentType: f.ContentType, Size: f.Size()}
	}
	return json.Marshal(struct {
		Values map[string]any         `json:"values"`
		Files  map[string]fileSummary `json:"files"`
	}{Values: d.values, Files: files})
}
