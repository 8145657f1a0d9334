// Package security はアプリケーションのセキュリティ機能を提供する。
//
// RichTextSanitizer は管理画面から送信されるリッチテキスト（お知らせ本文など）を
// 外部APIへ送る前にサニタイズする。公開サイトにそのまま表示されるため、
// bluemondayの許可リストポリシーで安全なタグと属性のみを通過させる。
package security

import (
	"io"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// HTMLSanitizer はリッチテキストのサニタイズ機能のインターフェース。
type HTMLSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// RichTextSanitizer はHTMLSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので、1インスタンスを共有してよい。
type RichTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewRichTextSanitizer はRichTextSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, h2, h3, h4, ul, ol, li, blockquote, strong, em, u
//   - aタグ: href（http, https, mailto）。外部リンクにはtarget="_blank"とrel="noopener noreferrer"
//   - imgタグ: src（httpsのみ）とalt
//   - script, iframe, style およびon*イベント属性は除去される
func NewRichTextSanitizer() *RichTextSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li", "blockquote",
		"strong", "em", "u",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").OnElements("img")

	return &RichTextSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *RichTextSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(rawHTML)
	return stripInsecureImages(cleaned)
}

// stripInsecureImages はhttps以外のsrcを持つimgタグを除去する。
// bluemondayのURLスキーム許可は要素単位で分けられないため、後段で処理する。
func stripInsecureImages(sanitized string) string {
	if !strings.Contains(sanitized, "<img") {
		return sanitized
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(sanitized))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return b.String()
			}
			return sanitized
		}
		tok := z.Token()
		if (tt == html.StartTagToken || tt == html.SelfClosingTagToken) && tok.Data == "img" {
			if !hasHTTPSSource(tok) {
				continue
			}
		}
		b.WriteString(tok.String())
	}
}

func hasHTTPSSource(tok html.Token) bool {
	for _, a := range tok.Attr {
		if a.Key != "src" {
			continue
		}
		u, err := url.Parse(a.Val)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Scheme, "https")
	}
	return false
}

// PlainText はHTMLからテキストノードのみを取り出し、空白を1つに畳んで返す。
// リッチテキストの必須チェック（"<p></p>" のような見た目だけの入力を空とみなす）に使う。
func PlainText(rawHTML string) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var parts []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.TextToken:
			parts = append(parts, string(z.Text()))
		}
	}
}

var _ HTMLSanitizer = (*RichTextSanitizer)(nil)
