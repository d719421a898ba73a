package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nyukimin/promptmaster/internal/domain/agent"
	"github.com/Nyukimin/promptmaster/internal/domain/llm"
	"github.com/Nyukimin/promptmaster/internal/domain/modeljson"
	"github.com/Nyukimin/promptmaster/internal/domain/routing"
)

const (
	classifyMaxTokens   = 256
	classifyTemperature = 0.0
)

// LLMClassifier はLLMベースのエージェント分類器
// 明示指定があればモデル呼び出しなしで短絡し、
// 分類失敗時はgeneral・確信度0.0へフォールバックする
type LLMClassifier struct {
	provider     llm.Provider
	timeout      time.Duration
	systemPrompt string
}

// NewLLMClassifier は新しいLLMClassifierを作成
// 分類プロンプトはレジストリのエージェント説明から構築される
func NewLLMClassifier(provider llm.Provider, registry *agent.Registry, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{
		provider:     provider,
		timeout:      timeout,
		systemPrompt: buildClassifySystemPrompt(registry),
	}
}

// Route は(goal, prompt)に対するルーティング決定を返す
// forcedが既知のエージェント名なら確信度1.0で短絡する
// エラーは返さない：失敗はすべて既定の決定に吸収される
func (c *LLMClassifier) Route(ctx context.Context, goal, prompt, forced string) routing.Decision {
	if name, ok := routing.Parse(forced); ok {
		return routing.NewDecision(name, 1.0, "explicit override")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	userMessage := fmt.Sprintf("PROMPT TO CLASSIFY:\n%q\n\nUSER'S GOAL:\n%q\n\nSelect the appropriate agent and explain your reasoning.", prompt, goal)

	req := llm.GenerateRequest{
		SystemPrompt: c.systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   classifyMaxTokens,
		Temperature: classifyTemperature, // 低温度で安定した分類
	}

	resp, err := c.provider.Generate(ctx, req)
	if err != nil {
		return routing.NewDecision(routing.AgentGeneral, 0.0, fmt.Sprintf("classification call failed, fallback to general: %v", err))
	}

	var payload struct {
		Agent      string  `json:"agent"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := modeljson.Unmarshal(resp.Content, &payload); err != nil {
		return routing.NewDecision(routing.AgentGeneral, 0.0, fmt.Sprintf("unparseable classification output, fallback to general: %v", err))
	}

	name, ok := routing.Parse(payload.Agent)
	if !ok {
		return routing.NewDecision(routing.AgentGeneral, 0.0, fmt.Sprintf("unknown agent %q, fallback to general", payload.Agent))
	}

	reasoning := payload.Reasoning
	if reasoning == "" {
		reasoning = "LLM classification"
	}
	return routing.NewDecision(name, payload.Confidence, reasoning)
}

// buildClassifySystemPrompt は分類用のシステムプロンプトを構築
func buildClassifySystemPrompt(registry *agent.Registry) string {
	var descriptions strings.Builder
	for _, p := range registry.All() {
		fmt.Fprintf(&descriptions, "- %s: %s\n", p.Name, p.Description)
	}

	return fmt.Sprintf(`You are a prompt classification system. Your job is to analyze a user's prompt and determine which specialized agent should handle it.

Available agents:
%s
Analyze the prompt and user's goal, then select the most appropriate agent.

Respond with ONLY a JSON object in this format:
{"agent": "<agent_name>", "confidence": <0.0-1.0>, "reasoning": "<brief explanation>"}

Rules:
1. Choose "coding" for any programming, debugging, or software-related tasks
2. Choose "creative" for writing, marketing, storytelling, or artistic content
3. Choose "analyst" for data analysis, research, reports, or analytical tasks
4. Choose "general" for prompts that don't clearly fit the above categories
5. Confidence should reflect how certain you are about the classification`,
		descriptions.String())
}
