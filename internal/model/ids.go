package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FlexID はJSON上で数値・文字列のどちらで届いても受け付けるIDを表す。
// 外部APIはuser_idを数値で返すこともあれば文字列で返すこともあるため、
// 正規化した文字列表現で保持する。
type FlexID string

// UnmarshalJSON は数値・文字列・nullのいずれも受け付ける。
func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("invalid id string: %w", err)
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("invalid id number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// MarshalJSON は整数として解釈できる場合は数値、それ以外は文字列として出力する。
func (f FlexID) MarshalJSON() ([]byte, error) {
	if f == "" {
		return []byte("null"), nil
	}
	if n, ok := f.Int64(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(f))
}

// Int64 は整数として解釈できる場合にその値を返す。
func (f FlexID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(f)), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Matches はキーと数値として等しいかを判定する。
// "42" と 42 と "42.0" は等しいとみなす。比較は10進表記のまま厳密に行い、
// 浮動小数点への丸めで別のIDが一致することはない。
// どちらかが数値でない場合は文字列比較を行う。
func (f FlexID) Matches(key string) bool {
	a := strings.TrimSpace(string(f))
	b := strings.TrimSpace(key)
	if a == "" || b == "" {
		return false
	}
	ai, okA := FlexID(a).Int64()
	bi, okB := FlexID(b).Int64()
	if okA && okB {
		return ai == bi
	}
	ar, okA := exactDecimal(a)
	br, okB := exactDecimal(b)
	if okA && okB {
		return ar.Cmp(br) == 0
	}
	return a == b
}

// exactDecimal は10進表記の数値を丸めずに有理数として読む。
func exactDecimal(s string) (*big.Rat, bool) {
	if strings.ContainsAny(s, "/xXpP") {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	return r, ok
}

// FlexInt はJSON上で数値・数値文字列のどちらでも受け付ける整数。
// ページネーション情報（current_page、last_page等）の受信に使用する。
type FlexInt int

// UnmarshalJSON は数値・数値文字列・nullを受け付ける。
func (n *FlexInt) UnmarshalJSON(b []byte) error {
	var id FlexID
	if err := id.UnmarshalJSON(b); err != nil {
		return err
	}
	if id == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(id), 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", string(id), err)
	}
	*n = FlexInt(int(f))
	return nil
}
