package project

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound はプロジェクトが存在しないことを表す
var ErrNotFound = errors.New("project not found")

// Project はユーザーが所有するプロジェクト
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// New は新しいProjectを作成
func New(userID, name string) Project {
	return Project{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// OwnedBy は指定ユーザーの所有物かを判定
func (p Project) OwnedBy(userID string) bool {
	return p.UserID == userID
}

// Repository はプロジェクト永続化のインターフェース
type Repository interface {
	Insert(ctx context.Context, p Project) error
	Get(ctx context.Context, id string) (Project, error)
	ListByUser(ctx context.Context, userID string) ([]Project, error)
	// Delete はプロジェクトと、その履歴・文脈ベクトルを削除する
	Delete(ctx context.Context, id string) error
}
