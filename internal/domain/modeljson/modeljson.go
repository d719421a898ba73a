// Package modeljson はLLMの自由文応答からJSONを取り出すためのパーサー
// モデルはJSONを散文やコードフェンスで包んで返すことがあるため、
// 複数の戦略を順に試す
package modeljson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoJSON は応答からJSONを取り出せなかったことを表す
var ErrNoJSON = errors.New("no parseable JSON object in model output")

var (
	fencedRe        = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	braceSpanRe     = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// Unmarshal はモデル応答rawをvへデコードする
// 戦略の順序:
//  1. そのままJSONとしてパース
//  2. コードフェンス（```json / ```）の内側をパース
//  3. 最初の{...}スパンを抽出し、末尾カンマを除去してパース
//
// 全戦略が失敗した場合はErrNoJSONを包んだエラーを返す
func Unmarshal(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: empty response", ErrNoJSON)
	}

	// 戦略1: 直接パース
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	// 戦略2: コードフェンスの内側
	if m := fencedRe.FindStringSubmatch(trimmed); m != nil {
		inner := strings.TrimSpace(m[1])
		if err := json.Unmarshal([]byte(inner), v); err == nil {
			return nil
		}
		// フェンス内にも散文が混ざることがあるので、以降の戦略はフェンス内を対象にする
		trimmed = inner
	}

	// 戦略3: 最初の{...}スパン＋末尾カンマ修復
	span := braceSpanRe.FindString(trimmed)
	if span == "" {
		return fmt.Errorf("%w: no brace-delimited span", ErrNoJSON)
	}
	if err := json.Unmarshal([]byte(span), v); err == nil {
		return nil
	}
	repaired := trailingCommaRe.ReplaceAllString(span, "$1")
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return nil
}

// Score はモデルが数値・小数・引用付き数値のいずれで返してもよいスコア値
// 小数は最近接整数へ丸める（範囲のクランプは呼び出し側の責務）
type Score int

// UnmarshalJSON はjson.Unmarshalerの実装
func (s *Score) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	text = strings.Trim(text, `"`)
	if text == "" || text == "null" {
		*s = 0
		return nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("score is not numeric: %q", string(data))
	}
	*s = Score(math.Round(f))
	return nil
}

// Int はスコアをintとして返す
func (s Score) Int() int {
	return int(s)
}

// ClampScore はスコアを[0,100]に収める
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
