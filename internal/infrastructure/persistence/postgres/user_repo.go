package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nyukimin/promptmaster/internal/domain/user"
)

// UserRepository はuser.RepositoryのPostgreSQL実装
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository は新しいUserRepositoryを作成
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get はIDでユーザーを取得する
func (r *UserRepository) Get(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, created_at
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Upsert は存在しなければ作成し、存在すればemailを更新する
// 認証済みリクエストの初回到達で行が自動作成される
func (r *UserRepository) Upsert(ctx context.Context, u user.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`,
		u.ID, u.Email, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
