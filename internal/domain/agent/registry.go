package agent

import "github.com/Nyukimin/promptmaster/internal/domain/routing"

// Registry は4エージェントの固定プロファイル集合
// プロセス起動時に一度だけ構築され、以後は読み取り専用
// ロックなしで並行読み出しして安全
type Registry struct {
	profiles map[routing.AgentName]Profile
	order    []routing.AgentName
}

// NewRegistry は全プロファイルを構築して返す
func NewRegistry() *Registry {
	profiles := []Profile{
		codingProfile(),
		creativeProfile(),
		analystProfile(),
		generalProfile(),
	}

	r := &Registry{
		profiles: make(map[routing.AgentName]Profile, len(profiles)),
		order:    make([]routing.AgentName, 0, len(profiles)),
	}
	for _, p := range profiles {
		r.profiles[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r
}

// Get は名前でプロファイルを取得
func (r *Registry) Get(name routing.AgentName) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// All は全プロファイルを定義順で返す
func (r *Registry) All() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.profiles[name])
	}
	return out
}
