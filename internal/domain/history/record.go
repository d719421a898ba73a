package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Nyukimin/promptmaster/internal/domain/owner"
	"github.com/Nyukimin/promptmaster/internal/domain/routing"
)

// ErrNotFound は履歴レコードが存在しないことを表す
var ErrNotFound = errors.New("history record not found")

// 保存時の長さ上限（文字数）
const (
	MaxPromptLen    = 1000
	MaxOptimizedLen = 2000
)

// Record は1回の最適化の履歴
// 所有者参照（ユーザー/プロジェクト）付きで一度だけ作成され、以後変更されない
type Record struct {
	ID              string
	UserID          string // 空ならユーザー紐付けなし
	ProjectID       string // 空ならプロジェクト紐付けなし
	PromptText      string
	OptimizedPrompt string
	AgentUsed       routing.AgentName
	Score           int
	CreatedAt       time.Time
}

// NewRecord は新しいRecordを作成する
// 本文は保存上限で切り詰める
func NewRecord(ref owner.Ref, promptText, optimizedPrompt string, agent routing.AgentName, score int) Record {
	return Record{
		ID:              uuid.New().String(),
		UserID:          ref.UserID,
		ProjectID:       ref.ProjectID,
		PromptText:      truncate(promptText, MaxPromptLen),
		OptimizedPrompt: truncate(optimizedPrompt, MaxOptimizedLen),
		AgentUsed:       agent,
		Score:           score,
		CreatedAt:       time.Now().UTC(),
	}
}

// truncate は文字列をn文字（rune）に切り詰める
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Repository は履歴永続化のインターフェース
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	ListByProject(ctx context.Context, projectID string, limit int) ([]Record, error)
	ListByUser(ctx context.Context, userID string, limit int, projectID string) ([]Record, error)
	// PruneProject はプロジェクト内で新しい順にkeep件を残し、残りを削除する
	PruneProject(ctx context.Context, projectID string, keep int) (int64, error)
	// PruneAllProjects は全プロジェクトに対してPruneProjectと同じ保持規則を適用する
	PruneAllProjects(ctx context.Context, keep int) (int64, error)
	// PruneUser はユーザー全体の履歴を新しい順にkeep件まで保持する
	PruneUser(ctx context.Context, userID string, keep int) (int64, error)
}
