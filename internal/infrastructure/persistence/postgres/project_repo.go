package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nyukimin/promptmaster/internal/domain/project"
)

// ProjectRepository はproject.RepositoryのPostgreSQL実装
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository は新しいProjectRepositoryを作成
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

// Insert はプロジェクトを1件保存する
func (r *ProjectRepository) Insert(ctx context.Context, p project.Project) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projects (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.UserID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get はIDでプロジェクトを取得する
func (r *ProjectRepository) Get(ctx context.Context, id string) (project.Project, error) {
	var p project.Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at
		FROM projects
		WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return project.Project{}, project.ErrNotFound
	}
	if err != nil {
		return project.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListByUser はユーザーの全プロジェクトを作成日時の新しい順に返す
func (r *ProjectRepository) ListByUser(ctx context.Context, userID string) ([]project.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, created_at
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project rows: %w", err)
	}
	return projects, nil
}

// Delete はプロジェクトと付随する履歴・文脈ベクトルを1トランザクションで削除する
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM prompt_history WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("delete project history: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM context_vectors WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("delete project context vectors: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrNotFound
	}
	return tx.Commit(ctx)
}
