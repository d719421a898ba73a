package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nyukimin/promptmaster/internal/adapter/auth"
	"github.com/Nyukimin/promptmaster/internal/application/ingestion"
	"github.com/Nyukimin/promptmaster/internal/application/pipeline"
	"github.com/Nyukimin/promptmaster/internal/domain/agent"
	"github.com/Nyukimin/promptmaster/internal/domain/history"
	"github.com/Nyukimin/promptmaster/internal/domain/owner"
	"github.com/Nyukimin/promptmaster/internal/domain/project"
	"github.com/Nyukimin/promptmaster/internal/domain/routing"
	"github.com/Nyukimin/promptmaster/internal/domain/user"
)

type fakePipeline struct {
	resp        pipeline.OptimizeResponse
	analyzeResp pipeline.AnalyzeResponse
	err         error
	lastReq     pipeline.OptimizeRequest
	calls       int
}

func (f *fakePipeline) Optimize(ctx context.Context, req pipeline.OptimizeRequest) (pipeline.OptimizeResponse, error) {
	f.calls++
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakePipeline) AnalyzeOnly(ctx context.Context, req pipeline.OptimizeRequest) (pipeline.AnalyzeResponse, error) {
	f.calls++
	f.lastReq = req
	return f.analyzeResp, f.err
}

type fakeIngestor struct {
	mu     sync.Mutex
	files  []string
	ref    owner.Ref
	done   chan struct{}
	result ingestion.IngestResult
}

func (f *fakeIngestor) IngestFile(ctx context.Context, ref owner.Ref, filename string, content []byte) (ingestion.IngestResult, error) {
	f.mu.Lock()
	f.files = append(f.files, filename)
	f.ref = ref
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return f.result, nil
}

type fakeProjects struct {
	projects map[string]project.Project
	deleted  []string
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: make(map[string]project.Project)}
}

func (f *fakeProjects) Insert(ctx context.Context, p project.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeProjects) Get(ctx context.Context, id string) (project.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (f *fakeProjects) ListByUser(ctx context.Context, userID string) ([]project.Project, error) {
	var out []project.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProjects) Delete(ctx context.Context, id string) error {
	if _, ok := f.projects[id]; !ok {
		return project.ErrNotFound
	}
	delete(f.projects, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeHistory struct {
	records []history.Record
}

func (f *fakeHistory) Insert(ctx context.Context, rec history.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistory) ListByProject(ctx context.Context, projectID string, limit int) ([]history.Record, error) {
	var out []history.Record
	for _, r := range f.records {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) ListByUser(ctx context.Context, userID string, limit int, projectID string) ([]history.Record, error) {
	var out []history.Record
	for _, r := range f.records {
		if r.UserID == userID && (projectID == "" || r.ProjectID == projectID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) PruneProject(ctx context.Context, projectID string, keep int) (int64, error) {
	return 0, nil
}

func (f *fakeHistory) PruneAllProjects(ctx context.Context, keep int) (int64, error) {
	return 0, nil
}

func (f *fakeHistory) PruneUser(ctx context.Context, userID string, keep int) (int64, error) {
	return 0, nil
}

type fakeUsers struct {
	upserted []user.User
}

func (f *fakeUsers) Get(ctx context.Context, id string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) Upsert(ctx context.Context, u user.User) error {
	f.upserted = append(f.upserted, u)
	return nil
}

type fakeVerifier struct {
	users map[string]auth.User
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (auth.User, error) {
	u, ok := f.users[token]
	if !ok {
		return auth.User{}, auth.ErrInvalidToken
	}
	return u, nil
}

type fixture struct {
	handler  http.Handler
	pipeline *fakePipeline
	ingestor *fakeIngestor
	projects *fakeProjects
	history  *fakeHistory
	users    *fakeUsers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fp := &fakePipeline{
		resp: pipeline.OptimizeResponse{
			AgentUsed:       routing.AgentCoding,
			Confidence:      0.92,
			Score:           85,
			Feedback:        "good",
			OptimizedPrompt: "improved",
		},
		analyzeResp: pipeline.AnalyzeResponse{
			Agent:      routing.AgentCoding,
			Confidence: 0.92,
			Reasoning:  "debugging task",
		},
	}
	fi := &fakeIngestor{result: ingestion.IngestResult{StoragePath: "/uploads/a.txt", ChunkCount: 2}}
	projects := newFakeProjects()
	hist := &fakeHistory{}
	users := &fakeUsers{}
	verifier := &fakeVerifier{users: map[string]auth.User{
		"token-u1": {ID: "u1", Email: "u1@example.com"},
	}}

	h := NewHandler(fp, fi, projects, hist, users, agent.NewRegistry(), verifier, 5*1024*1024, "1.0.0", nil)
	return &fixture{
		handler:  h.Routes(),
		pipeline: fp,
		ingestor: fi,
		projects: projects,
		history:  hist,
		users:    users,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestOptimize_GuestSuccess(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/optimize", "", map[string]any{
		"prompt": "fix this bug",
		"goal":   "get working code",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["agent"] != "coding" {
		t.Errorf("agent = %v", body["agent"])
	}
	routing, _ := body["routing"].(map[string]any)
	if routing["confidence"] != 0.92 {
		t.Errorf("routing.confidence = %v", routing["confidence"])
	}
	if body["score"] != float64(85) {
		t.Errorf("score = %v", body["score"])
	}
	if body["original_prompt"] != "fix this bug" {
		t.Errorf("original_prompt = %v", body["original_prompt"])
	}
	if _, ok := body["error"]; ok {
		t.Error("error field should be absent on success")
	}
	if body["optimized_prompt"] == body["original_prompt"] {
		t.Error("optimized prompt should differ from the input")
	}
	if !f.pipeline.lastReq.Owner.IsGuest() {
		t.Error("unauthenticated request should be guest scoped")
	}
}

func TestOptimize_EmptyPromptRejected(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/optimize", "", map[string]any{
		"prompt": "",
		"goal":   "g",
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	body := decodeBody(t, rec)
	if _, ok := body["detail"]; !ok {
		t.Error("error response should carry a detail field")
	}
	if f.pipeline.calls != 0 {
		t.Error("invalid request must not reach the pipeline")
	}
}

func TestOptimize_InvalidForceAgentRejected(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/optimize", "", map[string]any{
		"prompt":      "p",
		"goal":        "g",
		"force_agent": "wizard",
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestOptimize_AuthenticatedOwnerForwarded(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/optimize", "token-u1", map[string]any{
		"prompt": "p",
		"goal":   "g",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.pipeline.lastReq.Owner.UserID != "u1" {
		t.Errorf("owner = %+v", f.pipeline.lastReq.Owner)
	}
	if len(f.users.upserted) == 0 {
		t.Error("authenticated user should be upserted")
	}
}

func TestOptimize_ForeignProjectScopeDropped(t *testing.T) {
	f := newFixture(t)
	p := project.New("someone-else", "their project")
	f.projects.Insert(context.Background(), p)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/optimize", "token-u1", map[string]any{
		"prompt":     "p",
		"goal":       "g",
		"project_id": p.ID,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.pipeline.lastReq.Owner.ProjectID != "" {
		t.Error("foreign project scope should be dropped, not rejected")
	}
	if f.pipeline.lastReq.Owner.UserID != "u1" {
		t.Error("user scope should survive")
	}
}

func TestOptimize_InvalidTokenTreatedAsGuest(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/optimize", "bad-token", map[string]any{
		"prompt": "p",
		"goal":   "g",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !f.pipeline.lastReq.Owner.IsGuest() {
		t.Error("invalid token on optional endpoint should degrade to guest")
	}
}

func TestAgents_ListsAllFour(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/api/v1/prompts/agents", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	agents, _ := body["agents"].([]any)
	if len(agents) != 4 {
		t.Fatalf("expected 4 agents, got %d", len(agents))
	}
	first, _ := agents[0].(map[string]any)
	if first["name"] != "coding" {
		t.Errorf("first agent = %v", first["name"])
	}
	rubric, _ := first["rubric"].(map[string]any)
	total := 0.0
	for _, w := range rubric {
		total += w.(float64)
	}
	if total != 100 {
		t.Errorf("rubric weights sum to %v, want 100", total)
	}
}

func TestUserHistory_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/api/v1/history", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/api/v1/history", "token-u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAnalyzeOnly_ReturnsRoutingDecision(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/prompts/analyze-only", "", map[string]any{
		"prompt": "fix this bug",
		"goal":   "get working code",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["agent"] != "coding" {
		t.Errorf("agent = %v", body["agent"])
	}
	if body["confidence"] != 0.92 {
		t.Errorf("confidence = %v", body["confidence"])
	}
	if _, ok := body["score"]; ok {
		t.Error("analyze-only response must not carry evaluation fields")
	}
}

func TestProjects_CRUDLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/projects", "token-u1", map[string]any{
		"name": "my project",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created project missing id")
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/api/v1/projects", "token-u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decodeBody(t, rec)
	projects, _ := list["projects"].([]any)
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}

	rec = doJSON(t, f.handler, http.MethodGet, "/api/v1/projects/"+id, "token-u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, f.handler, http.MethodDelete, "/api/v1/projects/"+id, "token-u1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if len(f.projects.deleted) != 1 {
		t.Error("project should be deleted through the repository")
	}
}

func TestProjects_RequireAuth(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodPost, "/api/v1/projects", "", map[string]any{"name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProjects_ForeignProjectHiddenAs404(t *testing.T) {
	f := newFixture(t)
	p := project.New("someone-else", "theirs")
	f.projects.Insert(context.Background(), p)

	rec := doJSON(t, f.handler, http.MethodGet, "/api/v1/projects/"+p.ID, "token-u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProjectHistory_ScopedToProject(t *testing.T) {
	f := newFixture(t)
	p := project.New("u1", "mine")
	f.projects.Insert(context.Background(), p)
	f.history.records = []history.Record{
		{ID: "r1", UserID: "u1", ProjectID: p.ID, AgentUsed: routing.AgentCoding, CreatedAt: time.Now()},
		{ID: "r2", UserID: "u1", ProjectID: "other", AgentUsed: routing.AgentGeneral, CreatedAt: time.Now()},
	}

	rec := doJSON(t, f.handler, http.MethodGet, "/api/v1/projects/"+p.ID+"/history", "token-u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	items, _ := body["history"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(items))
	}
}

func TestUpload_AcceptedAndIngestedAsync(t *testing.T) {
	f := newFixture(t)
	f.ingestor.done = make(chan struct{})
	p := project.New("u1", "mine")
	f.projects.Insert(context.Background(), p)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("prompt engineering notes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+p.ID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer token-u1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "processing" {
		t.Errorf("status field = %v", body["status"])
	}

	select {
	case <-f.ingestor.done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion was not triggered")
	}
	f.ingestor.mu.Lock()
	defer f.ingestor.mu.Unlock()
	if len(f.ingestor.files) != 1 || f.ingestor.files[0] != "notes.txt" {
		t.Errorf("ingested files = %v", f.ingestor.files)
	}
	if f.ingestor.ref.UserID != "u1" || f.ingestor.ref.ProjectID != p.ID {
		t.Errorf("owner scope = %+v", f.ingestor.ref)
	}
}

func TestUpload_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	p := project.New("u1", "mine")
	f.projects.Insert(context.Background(), p)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+p.ID+"/upload", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUpload_MissingFileRejected(t *testing.T) {
	f := newFixture(t)
	p := project.New("u1", "mine")
	f.projects.Insert(context.Background(), p)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file attached")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+p.ID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer token-u1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
	agents, _ := body["agents_available"].([]any)
	if len(agents) != 4 {
		t.Errorf("agents_available = %v", body["agents_available"])
	}
}

func TestCORS_PreflightHandled(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/prompts/optimize", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing CORS headers")
	}
}

func TestRoot_APIInfo(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PromptMaster") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
