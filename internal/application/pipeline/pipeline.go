package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Nyukimin/promptmaster/internal/domain/agent"
	"github.com/Nyukimin/promptmaster/internal/domain/contextaug"
	"github.com/Nyukimin/promptmaster/internal/domain/history"
	"github.com/Nyukimin/promptmaster/internal/domain/owner"
	"github.com/Nyukimin/promptmaster/internal/domain/routing"
)

// Router はエージェント選択を行う
type Router interface {
	Route(ctx context.Context, goal, prompt, forced string) routing.Decision
}

// ContextRetriever は参照資料の取得を行う
type ContextRetriever interface {
	FetchContext(ctx context.Context, ref owner.Ref, prompt string) ([]contextaug.Chunk, error)
}

// Evaluator はルーブリック評価を行う
type Evaluator interface {
	Evaluate(ctx context.Context, name routing.AgentName, goal, prompt string, chunks []contextaug.Chunk) agent.EvaluationResult
}

// HistoryRecorder は履歴保存と保持規則の適用を行う
type HistoryRecorder interface {
	Insert(ctx context.Context, rec history.Record) error
	PruneUser(ctx context.Context, userID string, keep int) (int64, error)
}

// ValidationError はリクエスト検証の失敗
// パイプラインで4xxになるのはこのエラーだけで、下流の失敗はすべて結果に吸収される
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// OptimizeRequest は最適化リクエスト
type OptimizeRequest struct {
	Prompt     string
	Goal       string
	ForceAgent string
	Owner      owner.Ref
}

// OptimizeResponse は最適化の最終結果
type OptimizeResponse struct {
	AgentUsed       routing.AgentName
	Confidence      float64
	Reasoning       string
	Score           int
	Feedback        string
	OptimizedPrompt string
	RubricBreakdown map[string]int
	ContextUsed     int
	Error           string
}

// Pipeline は分類→文脈取得→評価→履歴保存の一連の流れ
type Pipeline struct {
	router    Router
	retriever ContextRetriever
	evaluator Evaluator
	recorder  HistoryRecorder
	userKeep  int
	logger    *slog.Logger
}

// New は新しいPipelineを作成
// userKeepはユーザー単位の履歴保持件数（0以下で保持無制限）
func New(router Router, retriever ContextRetriever, evaluator Evaluator, recorder HistoryRecorder, userKeep int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		router:    router,
		retriever: retriever,
		evaluator: evaluator,
		recorder:  recorder,
		userKeep:  userKeep,
		logger:    logger,
	}
}

// Optimize はプロンプトを評価・最適化する
// 空のprompt/goal以外でエラーを返すことはない：下流の失敗は結果へ吸収される
func (p *Pipeline) Optimize(ctx context.Context, req OptimizeRequest) (OptimizeResponse, error) {
	if err := validate(req); err != nil {
		return OptimizeResponse{}, err
	}

	resp := p.analyze(ctx, req)

	// 履歴保存はベストエフォート：失敗してもレスポンスには影響しない
	if !req.Owner.IsGuest() && resp.Error == "" {
		p.persist(ctx, req, resp)
	}

	return resp, nil
}

// AnalyzeResponse はルーティング決定のみの結果
type AnalyzeResponse struct {
	Agent      routing.AgentName
	Confidence float64
	Reasoning  string
}

// AnalyzeOnly はルーティング決定だけを返す（評価・履歴保存は行わない）
func (p *Pipeline) AnalyzeOnly(ctx context.Context, req OptimizeRequest) (AnalyzeResponse, error) {
	if err := validate(req); err != nil {
		return AnalyzeResponse{}, err
	}
	decision := p.router.Route(ctx, req.Goal, req.Prompt, req.ForceAgent)
	return AnalyzeResponse{
		Agent:      decision.Agent,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
	}, nil
}

func (p *Pipeline) analyze(ctx context.Context, req OptimizeRequest) OptimizeResponse {
	decision := p.router.Route(ctx, req.Goal, req.Prompt, req.ForceAgent)

	chunks, err := p.retriever.FetchContext(ctx, req.Owner, req.Prompt)
	if err != nil {
		// 文脈なしで評価を続行する
		p.logger.Warn("context retrieval failed, evaluating without references",
			"agent", decision.Agent, "error", err)
		chunks = nil
	}

	result := p.evaluator.Evaluate(ctx, decision.Agent, req.Goal, req.Prompt, chunks)

	return OptimizeResponse{
		AgentUsed:       decision.Agent,
		Confidence:      decision.Confidence,
		Reasoning:       decision.Reasoning,
		Score:           result.Score,
		Feedback:        result.Feedback,
		OptimizedPrompt: result.OptimizedPrompt,
		RubricBreakdown: result.RubricBreakdown,
		ContextUsed:     len(chunks),
		Error:           result.Err,
	}
}

func (p *Pipeline) persist(ctx context.Context, req OptimizeRequest, resp OptimizeResponse) {
	rec := history.NewRecord(req.Owner, req.Prompt, resp.OptimizedPrompt, resp.AgentUsed, resp.Score)
	if err := p.recorder.Insert(ctx, rec); err != nil {
		p.logger.Warn("history insert failed", "user", req.Owner.UserID, "error", err)
		return
	}
	if p.userKeep > 0 {
		if _, err := p.recorder.PruneUser(ctx, req.Owner.UserID, p.userKeep); err != nil {
			p.logger.Warn("user history prune failed", "user", req.Owner.UserID, "error", err)
		}
	}
}

func validate(req OptimizeRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Goal) == "" {
		return &ValidationError{Field: "goal", Reason: "must not be empty"}
	}
	return nil
}
