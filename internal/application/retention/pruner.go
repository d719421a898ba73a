package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// HistoryPruner は履歴の保持規則を適用する
type HistoryPruner interface {
	PruneAllProjects(ctx context.Context, keep int) (int64, error)
}

const (
	tickInterval = time.Minute
	pruneTimeout = 30 * time.Second
)

// Pruner はcronスケジュールで履歴保持を実行するバックグラウンドジョブ
type Pruner struct {
	history  HistoryPruner
	schedule string
	keep     int
	gron     *gronx.Gronx
	logger   *slog.Logger
}

// NewPruner は新しいPrunerを作成する
// scheduleは標準cron書式で、不正な場合はエラーを返す
func NewPruner(history HistoryPruner, schedule string, keep int, logger *slog.Logger) (*Pruner, error) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, fmt.Errorf("invalid retention schedule %q", schedule)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		history:  history,
		schedule: schedule,
		keep:     keep,
		gron:     g,
		logger:   logger,
	}, nil
}

// Start はスケジュール監視ループを開始する（ブロックする）
// ctxのキャンセルで停止する
func (p *Pruner) Start(ctx context.Context) {
	p.logger.Info("retention pruner started", "schedule", p.schedule, "keep", p.keep)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retention pruner stopped")
			return
		case now := <-ticker.C:
			due, err := p.gron.IsDue(p.schedule, now)
			if err != nil {
				p.logger.Error("retention schedule check failed", "error", err)
				continue
			}
			if due {
				p.runOnce(ctx)
			}
		}
	}
}

// runOnce は全プロジェクトへ保持規則を1回適用する
func (p *Pruner) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	deleted, err := p.history.PruneAllProjects(ctx, p.keep)
	if err != nil {
		p.logger.Error("history prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("history pruned", "deleted", deleted, "keep", p.keep)
	}
}
