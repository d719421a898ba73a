package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Nyukimin/promptmaster/internal/domain/contextaug"
	"github.com/Nyukimin/promptmaster/internal/domain/owner"
)

// VectorRepository は文脈・ナレッジベクトルのPostgreSQL実装（pgvector）
type VectorRepository struct {
	pool *pgxpool.Pool
}

// NewVectorRepository は新しいVectorRepositoryを作成
func NewVectorRepository(pool *pgxpool.Pool) *VectorRepository {
	return &VectorRepository{pool: pool}
}

// InsertContextVectors は所有者スコープ付きの文脈ベクトルを一括保存する
func (r *VectorRepository) InsertContextVectors(ctx context.Context, ref owner.Ref, records []contextaug.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal vector metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO context_vectors (user_id, project_id, embedding, chunk_summary, origin_label, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			nullIfEmpty(ref.UserID),
			nullIfEmpty(ref.ProjectID),
			pgvector.NewVector(rec.Embedding),
			rec.Summary,
			rec.OriginLabel,
			meta,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert context vector: %w", err)
		}
	}
	return nil
}

// InsertKnowledgeVector はナレッジベースへ1件保存する
// userIDが空の場合は全ユーザー共有のグローバル行になる
func (r *VectorRepository) InsertKnowledgeVector(ctx context.Context, userID string, rec contextaug.VectorRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal knowledge metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO knowledge_vectors (user_id, embedding, chunk_summary, origin_label, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		nullIfEmpty(userID),
		pgvector.NewVector(rec.Embedding),
		rec.Summary,
		rec.OriginLabel,
		meta,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge vector: %w", err)
	}
	return nil
}

// SearchContext は所有者スコープ内でコサイン類似検索を行う
// しきい値を超えた断片のみを類似度の降順で最大topK件返す
func (r *VectorRepository) SearchContext(ctx context.Context, ref owner.Ref, embedding []float32, topK int, threshold float64) ([]contextaug.Chunk, error) {
	query := `
		SELECT chunk_summary, origin_label, 1 - (embedding <=> $1) AS similarity
		FROM context_vectors
		WHERE user_id = $2`
	args := []any{pgvector.NewVector(embedding), ref.UserID}
	if ref.HasProject() {
		query += ` AND project_id = $5`
		args = append(args, threshold, topK, ref.ProjectID)
	} else {
		args = append(args, threshold, topK)
	}
	query += `
		AND 1 - (embedding <=> $1) > $3
		ORDER BY embedding <=> $1
		LIMIT $4`

	return r.searchChunks(ctx, query, args)
}

// SearchKnowledge は共有ナレッジベースに対して同じ類似検索を行う
// userIDが非空ならそのユーザーの行とグローバル行の両方を対象にする
func (r *VectorRepository) SearchKnowledge(ctx context.Context, userID string, embedding []float32, topK int, threshold float64) ([]contextaug.Chunk, error) {
	query := `
		SELECT chunk_summary, origin_label, 1 - (embedding <=> $1) AS similarity
		FROM knowledge_vectors
		WHERE (user_id IS NULL OR user_id = $2)
		AND 1 - (embedding <=> $1) > $3
		ORDER BY embedding <=> $1
		LIMIT $4`
	args := []any{pgvector.NewVector(embedding), nullIfEmpty(userID), threshold, topK}

	return r.searchChunks(ctx, query, args)
}

// CountKnowledge はユーザーのナレッジ行数を返す（保存上限の判定用）
func (r *VectorRepository) CountKnowledge(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM knowledge_vectors WHERE user_id = $1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count knowledge vectors: %w", err)
	}
	return n, nil
}

// DeleteContextByProject はプロジェクトの文脈ベクトルを全削除する
func (r *VectorRepository) DeleteContextByProject(ctx context.Context, projectID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM context_vectors WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("delete context vectors: %w", err)
	}
	return nil
}

func (r *VectorRepository) searchChunks(ctx context.Context, query string, args []any) ([]contextaug.Chunk, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var chunks []contextaug.Chunk
	for rows.Next() {
		var c contextaug.Chunk
		if err := rows.Scan(&c.SourceText, &c.OriginLabel, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity rows: %w", err)
	}
	return chunks, nil
}
