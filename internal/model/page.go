package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ListPage は一覧エンドポイントが返す1ページ分のレコードを表す。
// Dataの順序はサーバーが返した順序のまま保持する。
type ListPage[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

// pageEnvelope はページネーション応答の揺れを吸収するための受信用構造体。
// リソースによって last_page の代わりに page_total を返すもの、
// meta にページ情報を入れるもの、全体を data でラップするものがある。
type pageEnvelope struct {
	Data        json.RawMessage `json:"data"`
	CurrentPage *FlexInt        `json:"current_page"`
	LastPage    *FlexInt        `json:"last_page"`
	PageTotal   *FlexInt        `json:"page_total"`
	Total       *FlexInt        `json:"total"`
	Meta        *struct {
		CurrentPage *FlexInt `json:"current_page"`
		LastPage    *FlexInt `json:"last_page"`
		Total       *FlexInt `json:"total"`
	} `json:"meta"`
}

// UnmarshalJSON はページネーション応答をデコードする。
// last_page が得られない場合は current_page（最低1）を最終ページとみなし、
// 呼び出し側の走査が必ず終了するようにする。
func (p *ListPage[T]) UnmarshalJSON(b []byte) error {
	var env pageEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("invalid list page: %w", err)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && data[0] == '{' {
		// {"success": true, "data": {paginator}} 形式
		return p.UnmarshalJSON(data)
	}

	var page ListPage[T]
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &page.Data); err != nil {
			return fmt.Errorf("invalid list data: %w", err)
		}
	}

	pick := func(candidates ...*FlexInt) int {
		for _, c := range candidates {
			if c != nil && *c > 0 {
				return int(*c)
			}
		}
		return 0
	}

	var metaCurrent, metaLast, metaTotal *FlexInt
	if env.Meta != nil {
		metaCurrent, metaLast, metaTotal = env.Meta.CurrentPage, env.Meta.LastPage, env.Meta.Total
	}
	page.CurrentPage = pick(env.CurrentPage, metaCurrent)
	page.LastPage = pick(env.LastPage, env.PageTotal, metaLast)
	page.Total = pick(env.Total, metaTotal)

	if page.CurrentPage == 0 {
		page.CurrentPage = 1
	}
	if page.LastPage == 0 {
		page.LastPage = page.CurrentPage
	}

	*p = page
	return nil
}
