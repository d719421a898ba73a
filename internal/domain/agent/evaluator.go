package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nyukimin/promptmaster/internal/domain/contextaug"
	"github.com/Nyukimin/promptmaster/internal/domain/llm"
	"github.com/Nyukimin/promptmaster/internal/domain/modeljson"
	"github.com/Nyukimin/promptmaster/internal/domain/routing"
)

// EvaluationResult は評価の結果
// Evaluateは常に整形済みの結果を返す（エラーを外へ投げない）
type EvaluationResult struct {
	Score           int
	Feedback        string
	OptimizedPrompt string
	RubricBreakdown map[string]int
	Err             string // 内部失敗時のみ非空
}

const (
	evalTemperature = 0.3
	evalMaxTokens   = 2048
)

// Evaluator はルーブリックエージェントの評価実行器
type Evaluator struct {
	registry *Registry
	provider llm.Provider
	timeout  time.Duration
}

// NewEvaluator は新しいEvaluatorを作成
func NewEvaluator(registry *Registry, provider llm.Provider, timeout time.Duration) *Evaluator {
	return &Evaluator{
		registry: registry,
		provider: provider,
		timeout:  timeout,
	}
}

// Evaluate はプロンプトを評価・最適化する
// 失敗（ネットワーク、タイムアウト、パース不能）はすべて吸収され、
// score=0・optimized_prompt=入力プロンプトのフォールバック結果に変換される
func (e *Evaluator) Evaluate(ctx context.Context, name routing.AgentName, goal, prompt string, chunks []contextaug.Chunk) EvaluationResult {
	profile, ok := e.registry.Get(name)
	if !ok {
		// 未知の名前はgeneralで処理
		profile, _ = e.registry.Get(routing.AgentGeneral)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req := llm.GenerateRequest{
		SystemPrompt: profile.SystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildEvaluationPrompt(profile, goal, prompt, chunks)},
		},
		MaxTokens:   evalMaxTokens,
		Temperature: evalTemperature,
	}

	resp, err := e.provider.Generate(ctx, req)
	if err != nil {
		return fallbackResult(prompt, fmt.Sprintf("model call failed: %v", err))
	}

	var payload struct {
		Score           modeljson.Score            `json:"score"`
		Feedback        string                     `json:"feedback"`
		OptimizedPrompt string                     `json:"optimized_prompt"`
		RubricBreakdown map[string]modeljson.Score `json:"rubric_breakdown"`
	}
	if err := modeljson.Unmarshal(resp.Content, &payload); err != nil {
		return fallbackResult(prompt, fmt.Sprintf("unparseable model output: %v", err))
	}

	optimized := strings.TrimSpace(payload.OptimizedPrompt)
	if optimized == "" {
		optimized = prompt
	}

	breakdown := make(map[string]int, len(payload.RubricBreakdown))
	for k, v := range payload.RubricBreakdown {
		breakdown[k] = v.Int()
	}

	return EvaluationResult{
		Score:           modeljson.ClampScore(payload.Score.Int()),
		Feedback:        payload.Feedback,
		OptimizedPrompt: optimized,
		RubricBreakdown: breakdown,
	}
}

// fallbackResult は失敗時の安全な既定結果を作成
func fallbackResult(prompt, reason string) EvaluationResult {
	return EvaluationResult{
		Score:           0,
		Feedback:        fmt.Sprintf("Error during evaluation: %s", reason),
		OptimizedPrompt: prompt,
		Err:             reason,
	}
}

// buildEvaluationPrompt は評価用ユーザープロンプトを組み立てる
func buildEvaluationPrompt(profile Profile, goal, prompt string, chunks []contextaug.Chunk) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are evaluating a prompt for: %s\n\n", goal)
	fmt.Fprintf(&b, "PROMPT TO EVALUATE:\n\"\"\"\n%s\n\"\"\"\n", prompt)

	if refs := contextaug.FormatChunks(chunks); refs != "" {
		b.WriteString("\nREFERENCE MATERIAL:\nUse the following retrieved context to inform your evaluation and optimization:\n---\n")
		b.WriteString(refs)
		b.WriteString("---\nApply relevant techniques from the reference material and mention them in your feedback.\n")
	}

	fmt.Fprintf(&b, "\nSCORING RUBRIC (Total: 100 points):\n%s\n", profile.Rubric.PromptText())

	b.WriteString(`
Provide your response in this exact JSON format:
{
    "score": <total_score_0_to_100>,
    "rubric_breakdown": {<criterion_name>: <score>, ...},
    "feedback": "<detailed feedback explaining the scores>",
    "optimized_prompt": "<your improved version of the prompt>"
}

Be thorough and constructive in your feedback. The optimized prompt should be significantly better.
`)

	return b.String()
}
