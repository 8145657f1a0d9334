package model

import (
	"encoding/json"
	"fmt"
)

// MemberRecord は認証アカウントに紐づく組合員（プロフィール）レコードを表す。
// user_idは認証アカウントへの外部キーだが、一覧APIでは絞り込みに使えない。
type MemberRecord struct {
	ID         int64   `json:"id"`
	UserID     FlexID  `json:"user_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone,omitempty"`
	Address    string  `json:"address,omitempty"`
	Gender     string  `json:"gender,omitempty"`
	BirthPlace string  `json:"birth_place,omitempty"`
	BirthDate  string  `json:"birth_date,omitempty"`
	Photo      *string `json:"photo"`
	Status     int     `json:"status"`

	// Extra は上記以外の自由形式プロフィール項目を保持する。
	Extra map[string]json.RawMessage `json:"-"`
}

// RecordID はレコードの主キーを返す。
func (m MemberRecord) RecordID() int64 { return m.ID }

// RecordLabel は削除確認などでレコードを示す表示名を返す。
func (m MemberRecord) RecordLabel() string { return m.Name }

// memberKnownFields はExtraに含めない既知のフィールド名。
var memberKnownFields = map[string]bool{
	"id": true, "user_id": true, "name": true, "email": true, "phone": true,
	"address": true, "gender": true, "birth_place": true, "birth_date": true,
	"photo": true, "status": true,
}

// UnmarshalJSON は既知フィールドをデコードし、残りをExtraに格納する。
func (m *MemberRecord) UnmarshalJSON(b []byte) error {
	type alias MemberRecord
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("invalid member record: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("invalid member record: %w", err)
	}
	for k, v := range raw {
		if memberKnownFields[k] {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]json.RawMessage)
		}
		a.Extra[k] = v
	}

	*m = MemberRecord(a)
	return nil
}

// MarshalJSON は既知フィールドとExtraを1つのオブジェクトとして出力する。
func (m MemberRecord) MarshalJSON() ([]byte, error) {
	type alias MemberRecord
	known, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(m.Extra)+len(memberKnownFields))
	for k, v := range m.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
