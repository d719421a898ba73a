package rubric

import (
	"fmt"
	"strings"
)

// Criterion は採点基準の1項目を表す値オブジェクト
type Criterion struct {
	Name        string // 基準名（例: clarity）
	Weight      int    // 配点（パーセント）
	Description string // 採点モデルへ提示する説明
}

// Definition は1エージェントが持つ採点ルーブリック
// 全基準の配点合計は必ず100になる
type Definition struct {
	criteria []Criterion
}

// New は新しいDefinitionを作成し、配点合計が100であることを検証する
func New(criteria ...Criterion) (Definition, error) {
	if len(criteria) == 0 {
		return Definition{}, fmt.Errorf("rubric requires at least one criterion")
	}

	seen := make(map[string]bool, len(criteria))
	total := 0
	for _, c := range criteria {
		if c.Name == "" {
			return Definition{}, fmt.Errorf("rubric criterion name must not be empty")
		}
		if seen[c.Name] {
			return Definition{}, fmt.Errorf("duplicate rubric criterion: %s", c.Name)
		}
		if c.Weight <= 0 {
			return Definition{}, fmt.Errorf("rubric criterion %s has non-positive weight %d", c.Name, c.Weight)
		}
		seen[c.Name] = true
		total += c.Weight
	}

	if total != 100 {
		return Definition{}, fmt.Errorf("rubric weights must sum to 100, got %d", total)
	}

	copied := make([]Criterion, len(criteria))
	copy(copied, criteria)
	return Definition{criteria: copied}, nil
}

// MustNew はNewと同じだが、検証失敗時にpanicする
// プロセス起動時の固定ルーブリック定義にのみ使用する
func MustNew(criteria ...Criterion) Definition {
	d, err := New(criteria...)
	if err != nil {
		panic(err)
	}
	return d
}

// Criteria は基準の一覧を定義順で返す
func (d Definition) Criteria() []Criterion {
	copied := make([]Criterion, len(d.criteria))
	copy(copied, d.criteria)
	return copied
}

// TotalWeight は配点合計を返す
func (d Definition) TotalWeight() int {
	total := 0
	for _, c := range d.criteria {
		total += c.Weight
	}
	return total
}

// PromptText は採点モデルへ提示するルーブリック本文を組み立てる
func (d Definition) PromptText() string {
	var b strings.Builder
	for _, c := range d.criteria {
		fmt.Fprintf(&b, "- %s (%d points): %s\n", c.Name, c.Weight, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
