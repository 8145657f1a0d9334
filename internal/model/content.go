package model

// Hero はトップページのヒーローブロックを表す。
type Hero struct {
	ID       int64   `json:"id"`
	Judul    string  `json:"judul"`
	Subjudul string  `json:"subjudul"`
	Gambar   *string `json:"gambar"`
	Status   int     `json:"status"`
}

func (h Hero) RecordID() int64     { return h.ID }
func (h Hero) RecordLabel() string { return h.Judul }

// CallToAction はCTAブロックを表す。
type CallToAction struct {
	ID         int64   `json:"id"`
	Judul      string  `json:"judul"`
	Deskripsi  string  `json:"deskripsi"`
	TeksTombol string  `json:"teks_tombol"`
	Link       string  `json:"link"`
	Gambar     *string `json:"gambar"`
	Status     int     `json:"status"`
}

func (c CallToAction) RecordID() int64     { return c.ID }
func (c CallToAction) RecordLabel() string { return c.Judul }

// WhyUs は「選ばれる理由」ブロックの1項目を表す。
type WhyUs struct {
	ID        int64   `json:"id"`
	Judul     string  `json:"judul"`
	Deskripsi string  `json:"deskripsi"`
	Icon      *string `json:"icon"`
	Status    int     `json:"status"`
}

func (w WhyUs) RecordID() int64     { return w.ID }
func (w WhyUs) RecordLabel() string { return w.Judul }

// Announcement はお知らせを表す。Isiはリッチテキスト（HTML）。
type Announcement struct {
	ID      int64   `json:"id"`
	Judul   string  `json:"judul"`
	Isi     string  `json:"isi"`
	Tanggal string  `json:"tanggal"`
	Gambar  *string `json:"gambar"`
	Status  int     `json:"status"`
}

func (a Announcement) RecordID() int64     { return a.ID }
func (a Announcement) RecordLabel() string { return a.Judul }

// Task は組合の業務タスクを表す。
type Task struct {
	ID        int64  `json:"id"`
	Judul     string `json:"judul"`
	Deskripsi string `json:"deskripsi"`
	AnggotaID FlexID `json:"anggota_id"`
	Prioritas string `json:"prioritas"`
	Tenggat   string `json:"tenggat"`
	Status    string `json:"status"`
}

func (t Task) RecordID() int64     { return t.ID }
func (t Task) RecordLabel() string { return t.Judul }

// PPOBProduct はPPOB（各種料金支払い）商品を表す。
type PPOBProduct struct {
	ID       int64  `json:"id"`
	Kode     string `json:"kode"`
	Nama     string `json:"nama"`
	Kategori string `json:"kategori"`
	Provider string `json:"provider"`
	Harga    int64  `json:"harga"`
	Status   int    `json:"status"`
}

func (p PPOBProduct) RecordID() int64     { return p.ID }
func (p PPOBProduct) RecordLabel() string { return p.Nama }
