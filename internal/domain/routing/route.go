package routing

import "strings"

// AgentName は評価エージェントの種別を表す型
type AgentName string

// 固定の4エージェント
const (
	AgentCoding   AgentName = "coding"
	AgentCreative AgentName = "creative"
	AgentAnalyst  AgentName = "analyst"
	AgentGeneral  AgentName = "general"
)

// All は全エージェント名を定義順で返す
func All() []AgentName {
	return []AgentName{AgentCoding, AgentCreative, AgentAnalyst, AgentGeneral}
}

// String はAgentNameの文字列表現を返す
func (a AgentName) String() string {
	return string(a)
}

// Valid は既知のエージェント名かを判定
func (a AgentName) Valid() bool {
	switch a {
	case AgentCoding, AgentCreative, AgentAnalyst, AgentGeneral:
		return true
	}
	return false
}

// Parse は文字列をAgentNameに変換（大文字小文字を無視）
func Parse(s string) (AgentName, bool) {
	name := AgentName(strings.ToLower(strings.TrimSpace(s)))
	if name.Valid() {
		return name, true
	}
	return "", false
}

// Decision はルーティング決定の結果を表す
type Decision struct {
	Agent      AgentName // 選択されたエージェント
	Confidence float64   // 確信度（0.0 - 1.0）
	Reasoning  string    // 決定理由
}

// NewDecision は新しいDecisionを作成（確信度は[0,1]に丸める）
func NewDecision(agent AgentName, confidence float64, reasoning string) Decision {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Decision{
		Agent:      agent,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}
