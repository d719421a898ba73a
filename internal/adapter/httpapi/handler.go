package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Nyukimin/promptmaster/internal/adapter/auth"
	"github.com/Nyukimin/promptmaster/internal/application/ingestion"
	"github.com/Nyukimin/promptmaster/internal/application/pipeline"
	"github.com/Nyukimin/promptmaster/internal/domain/agent"
	"github.com/Nyukimin/promptmaster/internal/domain/history"
	"github.com/Nyukimin/promptmaster/internal/domain/owner"
	"github.com/Nyukimin/promptmaster/internal/domain/project"
	"github.com/Nyukimin/promptmaster/internal/domain/user"
)

// Pipeline は最適化パイプラインの呼び出し口
type Pipeline interface {
	Optimize(ctx context.Context, req pipeline.OptimizeRequest) (pipeline.OptimizeResponse, error)
	AnalyzeOnly(ctx context.Context, req pipeline.OptimizeRequest) (pipeline.AnalyzeResponse, error)
}

// Ingestor はアップロードファイルの取り込み口
type Ingestor interface {
	IngestFile(ctx context.Context, ref owner.Ref, filename string, content []byte) (ingestion.IngestResult, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	ingestTimeout       = 2 * time.Minute
)

// Handler はREST APIのHTTPハンドラー群
type Handler struct {
	pipeline  Pipeline
	ingestor  Ingestor
	projects  project.Repository
	history   history.Repository
	users     user.Repository
	registry  *agent.Registry
	verifier  auth.Verifier
	validate  *validator.Validate
	logger    *slog.Logger
	maxUpload int64
	version   string
}

// NewHandler は新しいHandlerを作成
// verifierがnilの場合、認証必須のエンドポイントは常に401を返す
func NewHandler(
	p Pipeline,
	ing Ingestor,
	projects project.Repository,
	hist history.Repository,
	users user.Repository,
	registry *agent.Registry,
	verifier auth.Verifier,
	maxUpload int64,
	version string,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline:  p,
		ingestor:  ing,
		projects:  projects,
		history:   hist,
		users:     users,
		registry:  registry,
		verifier:  verifier,
		validate:  validator.New(),
		logger:    logger,
		maxUpload: maxUpload,
		version:   version,
	}
}

// Routes は全ルートを登録したmuxを返す
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /{$}", h.handleRoot)

	mux.HandleFunc("POST /api/v1/prompts/optimize", h.handleOptimize)
	mux.HandleFunc("POST /api/v1/prompts/analyze-only", h.handleAnalyzeOnly)
	mux.HandleFunc("GET /api/v1/prompts/agents", h.handleAgents)
	mux.HandleFunc("GET /api/v1/history", h.handleUserHistory)

	mux.HandleFunc("POST /api/v1/projects", h.handleCreateProject)
	mux.HandleFunc("GET /api/v1/projects", h.handleListProjects)
	mux.HandleFunc("GET /api/v1/projects/{id}", h.handleGetProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", h.handleDeleteProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/history", h.handleProjectHistory)
	mux.HandleFunc("POST /api/v1/projects/{id}/upload", h.handleUpload)

	return withRequestLog(withCORS(mux), h.logger)
}

type optimizeRequest struct {
	Prompt     string `json:"prompt" validate:"required,max=10000"`
	Goal       string `json:"goal" validate:"required,max=1000"`
	ForceAgent string `json:"force_agent" validate:"omitempty,oneof=coding creative analyst general"`
	ProjectID  string `json:"project_id" validate:"omitempty,uuid"`
}

type routingInfo struct {
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type optimizeResponse struct {
	OriginalPrompt  string         `json:"original_prompt"`
	Goal            string         `json:"goal"`
	Agent           string         `json:"agent"`
	Routing         routingInfo    `json:"routing"`
	Score           int            `json:"score"`
	Feedback        string         `json:"feedback"`
	OptimizedPrompt string         `json:"optimized_prompt"`
	RubricBreakdown map[string]int `json:"rubric_breakdown,omitempty"`
	ContextUsed     int            `json:"context_used"`
	Error           string         `json:"error,omitempty"`
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ref := h.ownerRef(r, req.ProjectID)

	resp, err := h.pipeline.Optimize(r.Context(), pipeline.OptimizeRequest{
		Prompt:     req.Prompt,
		Goal:       req.Goal,
		ForceAgent: req.ForceAgent,
		Owner:      ref,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, optimizeResponse{
		OriginalPrompt:  req.Prompt,
		Goal:            req.Goal,
		Agent:           resp.AgentUsed.String(),
		Routing:         routingInfo{Confidence: resp.Confidence, Reasoning: resp.Reasoning},
		Score:           resp.Score,
		Feedback:        resp.Feedback,
		OptimizedPrompt: resp.OptimizedPrompt,
		RubricBreakdown: resp.RubricBreakdown,
		ContextUsed:     resp.ContextUsed,
		Error:           resp.Error,
	})
}

type analyzeResponse struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// handleAnalyzeOnly はルーティング決定だけを返す（評価は実行しない）
func (h *Handler) handleAnalyzeOnly(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.pipeline.AnalyzeOnly(r.Context(), pipeline.OptimizeRequest{
		Prompt:     req.Prompt,
		Goal:       req.Goal,
		ForceAgent: req.ForceAgent,
		Owner:      h.ownerRef(r, req.ProjectID),
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, analyzeResponse{
		Agent:      resp.Agent.String(),
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
	})
}

func (h *Handler) writePipelineError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		h.writeError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	h.logger.Error("pipeline failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

// ownerRef はリクエストから所有者参照を組み立てる
// 他人のプロジェクトが指定された場合はプロジェクトを黙って外す
func (h *Handler) ownerRef(r *http.Request, projectID string) owner.Ref {
	u, ok := h.optionalUser(r)
	if !ok {
		return owner.Ref{}
	}

	ref := owner.Ref{UserID: u.ID}
	if projectID == "" {
		return ref
	}

	p, err := h.projects.Get(r.Context(), projectID)
	if err != nil || !p.OwnedBy(u.ID) {
		h.logger.Warn("project scope dropped", "project", projectID, "user", u.ID)
		return ref
	}
	ref.ProjectID = projectID
	return ref
}

type agentInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Rubric      map[string]int `json:"rubric"`
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	profiles := h.registry.All()
	out := make([]agentInfo, 0, len(profiles))
	for _, p := range profiles {
		rubric := make(map[string]int)
		for _, c := range p.Rubric.Criteria() {
			rubric[c.Name] = c.Weight
		}
		out = append(out, agentInfo{
			Name:        p.Name.String(),
			Description: p.Description,
			Rubric:      rubric,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

type historyEntry struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id,omitempty"`
	PromptText      string    `json:"prompt_text"`
	OptimizedPrompt string    `json:"optimized_prompt"`
	AgentUsed       string    `json:"agent_used"`
	Score           int       `json:"score"`
	CreatedAt       time.Time `json:"created_at"`
}

func (h *Handler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := queryLimit(r)
	records, err := h.history.ListByUser(r.Context(), u.ID, limit, r.URL.Query().Get("project_id"))
	if err != nil {
		h.logger.Error("list user history failed", "user", u.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": toHistoryEntries(records)})
}

type createProjectRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	p := project.New(u.ID, req.Name)
	if err := h.projects.Insert(r.Context(), p); err != nil {
		h.logger.Error("create project failed", "user", u.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	h.writeJSON(w, http.StatusCreated, projectResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt})
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.logger.Error("list projects failed", "user", u.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load projects")
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	p, ok := h.ownedProject(w, r, u)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, projectResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt})
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	p, ok := h.ownedProject(w, r, u)
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), p.ID); err != nil {
		h.logger.Error("delete project failed", "project", p.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProjectHistory(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	p, ok := h.ownedProject(w, r, u)
	if !ok {
		return
	}

	records, err := h.history.ListByProject(r.Context(), p.ID, queryLimit(r))
	if err != nil {
		h.logger.Error("list project history failed", "project", p.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": toHistoryEntries(records)})
}

// ownedProject はパスのプロジェクトを取得し、所有権を検証する
// 他人のプロジェクトは存在を明かさず404にする
func (h *Handler) ownedProject(w http.ResponseWriter, r *http.Request, u auth.User) (project.Project, bool) {
	id := r.PathValue("id")
	p, err := h.projects.Get(r.Context(), id)
	if errors.Is(err, project.ErrNotFound) || (err == nil && !p.OwnedBy(u.ID)) {
		h.writeError(w, http.StatusNotFound, "project not found")
		return project.Project{}, false
	}
	if err != nil {
		h.logger.Error("get project failed", "project", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load project")
		return project.Project{}, false
	}
	return p, true
}

type uploadResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// handleUpload はプロジェクトへのファイルアップロードを受け付ける
// 取り込みは非同期に行われ、受理応答をすぐ返す
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	p, ok := h.ownedProject(w, r, u)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	ref := owner.Ref{UserID: u.ID, ProjectID: p.ID}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()

		result, err := h.ingestor.IngestFile(ctx, ref, header.Filename, content)
		if err != nil {
			h.logger.Error("ingestion failed", "file", header.Filename, "error", err)
			return
		}
		h.logger.Info("file ingested", "file", header.Filename, "chunks", result.ChunkCount, "path", result.StoragePath)
	}()

	h.writeJSON(w, http.StatusAccepted, uploadResponse{Filename: header.Filename, Status: "processing"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.registry.All()))
	for _, p := range h.registry.All() {
		names = append(names, p.Name.String())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"version":          h.version,
		"agents_available": names,
	})
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"name":    "PromptMaster API",
		"version": h.version,
		"docs":    "/api/v1",
	})
}

// requireUser は認証必須エンドポイントのユーザー取得
// 検証に失敗した場合は401を書き込んでfalseを返す
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	u, ok := h.optionalUser(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.User{}, false
	}
	return u, true
}

// optionalUser はトークンがあれば検証し、なければゲスト扱いにする
// 検証済みユーザーは初回到達時に行が自動作成される
func (h *Handler) optionalUser(r *http.Request) (auth.User, bool) {
	if h.verifier == nil {
		return auth.User{}, false
	}
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return auth.User{}, false
	}

	u, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		return auth.User{}, false
	}

	if err := h.users.Upsert(r.Context(), user.User{ID: u.ID, Email: u.Email, CreatedAt: time.Now().UTC()}); err != nil {
		h.logger.Warn("user upsert failed", "user", u.ID, "error", err)
	}
	return u, true
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("field %s failed on %s", strings.ToLower(f.Field()), f.Tag())
	}
	return "validation failed"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}

// writeError は{"detail": ...}形式でエラーを返す
func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func queryLimit(r *http.Request) int {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit
}

func toHistoryEntries(records []history.Record) []historyEntry {
	out := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, historyEntry{
			ID:              rec.ID,
			ProjectID:       rec.ProjectID,
			PromptText:      rec.PromptText,
			OptimizedPrompt: rec.OptimizedPrompt,
			AgentUsed:       rec.AgentUsed.String(),
			Score:           rec.Score,
			CreatedAt:       rec.CreatedAt,
		})
	}
	return out
}
