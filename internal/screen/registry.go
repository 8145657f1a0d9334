// Package screen は管理画面（エンティティ）の定義を提供する。
// 各画面は外部APIのリソースパス、フォーム定義、インポート・エクスポート対応の有無を持つ。
package screen

import (
	"github.com/hitoshi/backoffice/internal/crud"
	"github.com/hitoshi/backoffice/internal/form"
	"github.com/hitoshi/backoffice/internal/model"
	"github.com/hitoshi/backoffice/internal/upstream"
)

// 画面名。URLの {screen} パラメータとして使う。
const (
	Hero         = "hero"
	CallToAction = "cta"
	WhyUs        = "why-us"
	Announcement = "announcement"
	Member       = "member"
	Task         = "task"
	PPOB         = "ppob"
)

// MemberPath は組合員リソースのパス。プロフィールとレコード解決でも使う。
const MemberPath = "/anggota"

// Definition は1つの管理画面の定義。
type Definition struct {
	Name   string      `json:"name"`
	Title  string      `json:"title"`
	Path   string      `json:"path"`
	Schema form.Schema `json:"-"`
	Bulk   bool        `json:"bulk"`

	build func(c *upstream.Client, opts crud.Options) crud.Screen
}

// Build は指定クライアントで外部APIにアクセスする画面コントローラーを生成する。
func (d Definition) Build(c *upstream.Client, opts crud.Options) crud.Screen {
	return d.build(c, opts)
}

func define[T crud.Record](name, title, path string, schema form.Schema, bulk bool) Definition {
	return Definition{
		Name:   name,
		Title:  title,
		Path:   path,
		Schema: schema,
		Bulk:   bulk,
		build: func(c *upstream.Client, opts crud.Options) crud.Screen {
			res := upstream.NewResource[T](c, path)
			opts.Screen = name
			opts.Schema = schema
			opts.Bulk = nil
			if bulk {
				opts.Bulk = res
			}
			return crud.New[T](res, opts)
		},
	}
}

// Registry は管理画面の一覧。
type Registry struct {
	defs   []Definition
	byName map[string]Definition
}

// NewRegistry は全管理画面を登録したRegistryを生成する。
func NewRegistry() *Registry {
	defs := []Definition{
		define[model.Hero](Hero, "ヒーロー", "/hero", form.Schema{
			Required:   []string{"judul"},
			Defaults:   map[string]any{"status": 1},
			FileFields: []string{"gambar"},
		}, false),
		define[model.CallToAction](CallToAction, "コールトゥアクション", "/cta", form.Schema{
			Required:   []string{"judul", "teks_tombol", "link"},
			Defaults:   map[string]any{"status": 1},
			FileFields: []string{"gambar"},
		}, false),
		define[model.WhyUs](WhyUs, "選ばれる理由", "/why-us", form.Schema{
			Required:   []string{"judul", "deskripsi"},
			Defaults:   map[string]any{"status": 1},
			FileFields: []string{"icon"},
		}, false),
		define[model.Announcement](Announcement, "お知らせ", "/pengumuman", form.Schema{
			Required:   []string{"judul", "isi"},
			Defaults:   map[string]any{"status": 1},
			FileFields: []string{"gambar"},
			RichText:   []string{"isi"},
		}, false),
		define[model.MemberRecord](Member, "組合員", MemberPath, form.Schema{
			Required:   []string{"name", "email"},
			Defaults:   map[string]any{"status": 1},
			FileFields: []string{"photo"},
		}, true),
		define[model.Task](Task, "タスク", "/tugas", form.Schema{
			Required: []string{"judul", "anggota_id"},
			Defaults: map[string]any{"status": "pending", "prioritas": "sedang"},
		}, false),
		define[model.PPOBProduct](PPOB, "PPOB商品", "/ppob", form.Schema{
			Required: []string{"kode", "nama", "harga"},
			Defaults: map[string]any{"status": 1},
		}, true),
	}

	r := &Registry{defs: defs, byName: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.byName[d.Name] = d
	}
	return r
}

// Lookup は画面名から定義を返す。
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All は登録順の画面定義を返す。
func (r *Registry) All() []Definition {
	return append([]Definition(nil), r.defs...)
}
