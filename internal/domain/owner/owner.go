package owner

// Ref は履歴・文脈のスコープとなる所有者参照を表す値オブジェクト
// ユーザーのみ、ユーザー＋プロジェクト、いずれも空（ゲスト）の形を取る
type Ref struct {
	UserID    string
	ProjectID string
}

// IsGuest は認証されていないゲストリクエストかを判定
func (r Ref) IsGuest() bool {
	return r.UserID == "" && r.ProjectID == ""
}

// HasProject はプロジェクトスコープを持つかを判定
func (r Ref) HasProject() bool {
	return r.ProjectID != ""
}
