package contextaug

import (
	"fmt"
	"strings"
)

// Chunk は類似検索で取得した参照テキストの断片
type Chunk struct {
	SourceText  string  // 断片本文（保存時に長さ制限済み）
	OriginLabel string  // 出所（ファイル名やナレッジのトピック名）
	Similarity  float64 // コサイン類似度（0.0 - 1.0）
}

// VectorRecord はベクトルストアへ保存する1行
type VectorRecord struct {
	Embedding   []float32
	Summary     string
	OriginLabel string
	Metadata    map[string]string
}

// FormatChunks はエージェントへ渡す参照資料ブロックを組み立てる
// 断片は区切り付きで列挙され、出所ラベルを併記する
func FormatChunks(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[%s]\n%s\n---\n", c.OriginLabel, c.SourceText)
	}
	return strings.TrimSuffix(b.String(), "---\n")
}
