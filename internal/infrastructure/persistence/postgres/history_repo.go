package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nyukimin/promptmaster/internal/domain/history"
	"github.com/Nyukimin/promptmaster/internal/domain/routing"
)

// HistoryRepository はhistory.RepositoryのPostgreSQL実装
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository は新しいHistoryRepositoryを作成
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Insert は履歴レコードを1件保存する
func (r *HistoryRepository) Insert(ctx context.Context, rec history.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO prompt_history (id, user_id, project_id, prompt_text, optimized_prompt, agent_used, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		nullIfEmpty(rec.UserID),
		nullIfEmpty(rec.ProjectID),
		rec.PromptText,
		rec.OptimizedPrompt,
		rec.AgentUsed.String(),
		rec.Score,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListByProject はプロジェクトの履歴を新しい順に返す
func (r *HistoryRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]history.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, project_id, prompt_text, optimized_prompt, agent_used, score, created_at
		FROM prompt_history
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list project history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByUser はユーザーの履歴を新しい順に返す
// projectIDが非空の場合はそのプロジェクトに絞り込む
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, limit int, projectID string) ([]history.Record, error) {
	query := `
		SELECT id, user_id, project_id, prompt_text, optimized_prompt, agent_used, score, created_at
		FROM prompt_history
		WHERE user_id = $1`
	args := []any{userID}
	if projectID != "" {
		query += ` AND project_id = $3`
		args = append(args, limit, projectID)
	} else {
		args = append(args, limit)
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// PruneProject はプロジェクト内で新しい順にkeep件を残して削除する
// 順位付けと削除を単一文で行うため、同時実行でも保持件数が壊れない
func (r *HistoryRepository) PruneProject(ctx context.Context, projectID string, keep int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM prompt_history
		WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (PARTITION BY project_id ORDER BY created_at DESC) AS rn
				FROM prompt_history
				WHERE project_id = $1
			) ranked
			WHERE rn > $2
		)`,
		projectID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune project history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneAllProjects は全プロジェクトへ保持規則を一括適用する
func (r *HistoryRepository) PruneAllProjects(ctx context.Context, keep int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM prompt_history
		WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (PARTITION BY project_id ORDER BY created_at DESC) AS rn
				FROM prompt_history
				WHERE project_id IS NOT NULL
			) ranked
			WHERE rn > $1
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune all project history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneUser はユーザー全体の履歴を新しい順にkeep件まで保持する
func (r *HistoryRepository) PruneUser(ctx context.Context, userID string, keep int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM prompt_history
		WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (ORDER BY created_at DESC) AS rn
				FROM prompt_history
				WHERE user_id = $1
			) ranked
			WHERE rn > $2
		)`,
		userID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune user history: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]history.Record, error) {
	var records []history.Record
	for rows.Next() {
		var (
			rec       history.Record
			userID    *string
			projectID *string
			agent     string
		)
		if err := rows.Scan(&rec.ID, &userID, &projectID, &rec.PromptText, &rec.OptimizedPrompt, &agent, &rec.Score, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		rec.UserID = deref(userID)
		rec.ProjectID = deref(projectID)
		rec.AgentUsed = routing.AgentName(agent)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return records, nil
}

// nullIfEmpty は空文字をNULLとして保存するための変換
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
