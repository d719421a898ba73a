package user

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound はユーザーが存在しないことを表す
var ErrNotFound = errors.New("user not found")

// User は認証プロバイダー由来のユーザー
// 初回の認証済み操作で行が自動作成される
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Repository はユーザー永続化のインターフェース
type Repository interface {
	Get(ctx context.Context, id string) (User, error)
	// Upsert は存在しなければ作成し、存在すればemailを更新する
	Upsert(ctx context.Context, u User) error
}
