// Package model はドメインモデルを定義する。
package model

import "time"

// Account は外部APIで認証されたアカウントの最小情報を表す。
// 組合員レコードが解決できない場合のフォールバック表示にも使う。
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session はユーザーのログインセッションを表す。
// APITokenは外部APIへのリクエストに付与するBearerトークン。
type Session struct {
	ID        string
	UserID    string
	Name      string
	Email     string
	APIToken  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Account はセッションに保持されたアカウント情報を返す。
func (s *Session) Account() Account {
	return Account{ID: s.UserID, Name: s.Name, Email: s.Email}
}
