package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Nyukimin/promptmaster/internal/domain/contextaug"
	"github.com/Nyukimin/promptmaster/internal/domain/llm"
	"github.com/Nyukimin/promptmaster/internal/domain/owner"
)

// ErrUnsupportedFileType は取り込み対象外のファイル形式
var ErrUnsupportedFileType = errors.New("unsupported file type")

// 分割と要約の既定値
const (
	maxSummaryLen = 255
)

// BlobStore はアップロード原本の保存先
type BlobStore interface {
	Save(userID, projectID, filename string, content []byte) (string, error)
}

// VectorWriter は文脈ベクトルの保存先
type VectorWriter interface {
	InsertContextVectors(ctx context.Context, ref owner.Ref, records []contextaug.VectorRecord) error
}

// IngestResult は取り込み完了の報告
type IngestResult struct {
	StoragePath string
	ChunkCount  int
}

// Service はアップロードファイルを文脈ベクトルへ変換する取り込み処理
type Service struct {
	store        BlobStore
	embedder     llm.Embedder
	vectors      VectorWriter
	chunkSize    int
	chunkOverlap int
}

// NewService は新しいServiceを作成
func NewService(store BlobStore, embedder llm.Embedder, vectors VectorWriter, chunkSize, chunkOverlap int) *Service {
	return &Service{
		store:        store,
		embedder:     embedder,
		vectors:      vectors,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IngestFile はファイルを保存し、分割・埋め込み・ベクトル保存まで行う
// 対応形式はプレーンテキスト（.txt / .md）のみ
func (s *Service) IngestFile(ctx context.Context, ref owner.Ref, filename string, content []byte) (IngestResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".txt" && ext != ".md" {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}

	path, err := s.store.Save(ref.UserID, ref.ProjectID, filename, content)
	if err != nil {
		return IngestResult{}, fmt.Errorf("store upload: %w", err)
	}

	chunks := ChunkText(string(content), s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return IngestResult{StoragePath: path}, nil
	}

	embeddings, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return IngestResult{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	label := filepath.Base(filename)
	records := make([]contextaug.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = contextaug.VectorRecord{
			Embedding:   embeddings[i],
			Summary:     Summarize(c, maxSummaryLen),
			OriginLabel: label,
			Metadata: map[string]string{
				"source_file": label,
				"chunk_index": fmt.Sprintf("%d", i),
			},
		}
	}

	if err := s.vectors.InsertContextVectors(ctx, ref, records); err != nil {
		return IngestResult{}, fmt.Errorf("store context vectors: %w", err)
	}

	return IngestResult{StoragePath: path, ChunkCount: len(chunks)}, nil
}

// ChunkText は単語単位のスライディングウィンドウでテキストを分割する
// 各チャンクは最大size語、隣接チャンクはoverlap語を共有する
func ChunkText(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	if overlap >= size {
		overlap = size - 1
	}
	step := size - overlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Summarize はテキストを単語境界でn文字以内に切り詰める
// 切り詰めた場合は末尾に"..."を付ける
func Summarize(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	cut := string(runes[:n-3])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
