package contextretrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/Nyukimin/promptmaster/internal/domain/contextaug"
	"github.com/Nyukimin/promptmaster/internal/domain/llm"
	"github.com/Nyukimin/promptmaster/internal/domain/owner"
)

// VectorSearcher はベクトルストアへの類似検索
type VectorSearcher interface {
	SearchContext(ctx context.Context, ref owner.Ref, embedding []float32, topK int, threshold float64) ([]contextaug.Chunk, error)
	SearchKnowledge(ctx context.Context, userID string, embedding []float32, topK int, threshold float64) ([]contextaug.Chunk, error)
}

// Retriever は評価前のプロンプトに対する参照資料の取得器
// 所有者スコープの文脈を優先し、見つからなければ共有ナレッジへフォールバックする
type Retriever struct {
	embedder  llm.Embedder
	searcher  VectorSearcher
	topK      int
	threshold float64
}

// NewRetriever は新しいRetrieverを作成
func NewRetriever(embedder llm.Embedder, searcher VectorSearcher, topK int, threshold float64) *Retriever {
	return &Retriever{
		embedder:  embedder,
		searcher:  searcher,
		topK:      topK,
		threshold: threshold,
	}
}

// FetchContext はプロンプトに類似する参照断片を返す
// ゲストは共有ナレッジのみを検索する
func (r *Retriever) FetchContext(ctx context.Context, ref owner.Ref, prompt string) ([]contextaug.Chunk, error) {
	vectors, err := r.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed prompt: empty result")
	}
	embedding := vectors[0]

	if !ref.IsGuest() {
		chunks, err := r.searcher.SearchContext(ctx, ref, embedding, r.topK, r.threshold)
		if err != nil {
			return nil, fmt.Errorf("search context vectors: %w", err)
		}
		if len(chunks) > 0 {
			return r.normalize(chunks), nil
		}
	}

	chunks, err := r.searcher.SearchKnowledge(ctx, ref.UserID, embedding, r.topK, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("search knowledge vectors: %w", err)
	}
	return r.normalize(chunks), nil
}

// normalize は検索結果の規約（降順・しきい値超え・最大topK件）を保証する
// ストア実装が規約を満たしていても二重に守る
func (r *Retriever) normalize(chunks []contextaug.Chunk) []contextaug.Chunk {
	filtered := make([]contextaug.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Similarity > r.threshold {
			filtered = append(filtered, c)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > r.topK {
		filtered = filtered[:r.topK]
	}
	return filtered
}
