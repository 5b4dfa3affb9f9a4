package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/data/revocation"
	"github.com/yungbote/workbench-backend/internal/http/middleware"
	"github.com/yungbote/workbench-backend/internal/platform/openai"
)

type stubModel struct{}

func (stubModel) GenerateText(ctx context.Context, msgs []openai.Message) (openai.Result, error) {
	return openai.Result{Text: "misc"}, nil
}

func (stubModel) GenerateJSON(ctx context.Context, msgs []openai.Message, name string, schema map[string]any) (map[string]any, openai.Result, error) {
	return map[string]any{}, openai.Result{}, nil
}

func (stubModel) StreamText(ctx context.Context, msgs []openai.Message, onDelta func(string) error) (openai.Result, error) {
	return openai.Result{}, onDelta("ok")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testApp struct {
	handler http.Handler
	graph   graph.Store
	cfg     Config
	clock   *clock
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)
	clk := &clock{now: time.Now().UTC()}
	cfg := Config{
		Environment:     "test",
		JWTSecretKey:    "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		VerifyTokenTTL:  time.Hour,
		PromoCredit:     1,
		FilesRoot:       t.TempDir(),
		ConfigRoot:      t.TempDir(),
		now:             clk.Now,
	}
	clients := &Clients{
		Graph:   graph.NewMemoryStore(),
		DB:      testutil.DB(t),
		Revoked: revocation.NewMemory(),
		OpenAI:  stubModel{},
	}
	svc, err := wireServices(log, cfg, clients, nil)
	if err != nil {
		t.Fatalf("wireServices: %v", err)
	}
	handlers := wireHandlers(log, cfg, svc, clients.ReadinessChecks())
	server := wireServer(log, cfg, handlers, wireMiddleware(log, svc, nil), nil, false)
	return &testApp{handler: server.Engine, graph: clients.Graph, cfg: cfg, clock: clk}
}

// session carries cookies between requests the way a browser would.
type session struct {
	t       *testing.T
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) session(t *testing.T) *session {
	return &session{t: t, app: a, cookies: map[string]*http.Cookie{}}
}

func (s *session) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range s.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	if c, ok := s.cookies[middleware.CSRFCookie]; ok {
		req.Header.Set(middleware.CSRFHeader, c.Value)
	}
	w := httptest.NewRecorder()
	s.app.handler.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(s.cookies, c.Name)
			continue
		}
		s.cookies[c.Name] = c
	}
	return w
}

func (s *session) json(method, path string, payload any) *httptest.ResponseRecorder {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return s.do(method, path, body, "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env, _ := decode(t, w)["error"].(map[string]any)
	code, _ := env["code"].(string)
	return code
}

func (s *session) register(email string) string {
	s.t.Helper()
	w := s.json(http.MethodPost, "/auth/register", map[string]any{"email": email, "password": "correct horse"})
	if w.Code != http.StatusOK {
		s.t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	for _, name := range []string{middleware.AccessCookie, "refresh_token", middleware.CSRFCookie} {
		if _, ok := s.cookies[name]; !ok {
			s.t.Fatalf("register did not set %s cookie", name)
		}
	}
	w = s.json(http.MethodGet, "/auth/validate", nil)
	if w.Code != http.StatusOK {
		s.t.Fatalf("validate: %d %s", w.Code, w.Body.String())
	}
	id, _ := decode(s.t, w)["user_id"].(string)
	if id == "" {
		s.t.Fatalf("validate returned no user id: %s", w.Body.String())
	}
	return id
}

func TestExpiredAccessTokenRefreshes(t *testing.T) {
	a := newTestApp(t)
	s := a.session(t)
	s.register("alice@x")
	before := s.cookies[middleware.AccessCookie].Value

	a.clock.Advance(16 * time.Minute)
	w := s.json(http.MethodGet, "/messages/x", nil)
	if w.Code != http.StatusUnauthorized || decode(t, w)["status"] != "invalid" {
		t.Fatalf("expired token: %d %s", w.Code, w.Body.String())
	}

	w = s.json(http.MethodPost, "/auth/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", w.Code, w.Body.String())
	}
	if after := s.cookies[middleware.AccessCookie].Value; after == before {
		t.Fatal("refresh did not issue a new access token")
	}
	if w := s.json(http.MethodGet, "/messages/x", nil); w.Code != http.StatusOK {
		t.Fatalf("after refresh: %d %s", w.Code, w.Body.String())
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	a := newTestApp(t)
	s := a.session(t)
	s.register("bob@x")
	access := s.cookies[middleware.AccessCookie].Value

	if w := s.json(http.MethodPost, "/auth/logout", nil); w.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", w.Code, w.Body.String())
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/validate", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: %d", w.Code)
	}
}

func TestMutationsRequireCSRFHeader(t *testing.T) {
	a := newTestApp(t)
	s := a.session(t)
	s.register("carol@x")
	csrf := s.cookies[middleware.CSRFCookie]
	delete(s.cookies, middleware.CSRFCookie)
	w := s.json(http.MethodPost, "/pricing/add", map[string]any{"sum": 1})
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing csrf: %d %s", w.Code, w.Body.String())
	}
	s.cookies[middleware.CSRFCookie] = csrf
	if w := s.json(http.MethodPost, "/pricing/add", map[string]any{"sum": 1}); w.Code != http.StatusOK {
		t.Fatalf("with csrf: %d %s", w.Code, w.Body.String())
	}
}

func TestDeletingLastMessageDropsCategory(t *testing.T) {
	a := newTestApp(t)
	s := a.session(t)
	uid := s.register("dana@x")

	ctx := context.Background()
	now := time.Now().UTC()
	p1, err := a.graph.WritePrompt(ctx, uid, "notes", "q1", "a1", now)
	if err != nil {
		t.Fatalf("WritePrompt: %v", err)
	}
	p2, err := a.graph.WritePrompt(ctx, uid, "notes", "q2", "a2", now.Add(time.Second))
	if err != nil {
		t.Fatalf("WritePrompt: %v", err)
	}

	w := s.json(http.MethodDelete, "/messages/"+p1.ID, nil)
	if w.Code != http.StatusOK || decode(t, w)["category_deleted"] != false {
		t.Fatalf("first delete: %d %s", w.Code, w.Body.String())
	}
	w = s.json(http.MethodDelete, "/messages/"+p2.ID, nil)
	if w.Code != http.StatusOK || decode(t, w)["category_deleted"] != true {
		t.Fatalf("second delete: %d %s", w.Code, w.Body.String())
	}

	w = s.json(http.MethodGet, "/categories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("categories: %d %s", w.Code, w.Body.String())
	}
	cats, _ := decode(t, w)["categories"].([]any)
	for _, c := range cats {
		if c == "notes" {
			t.Fatalf("notes survived: %v", cats)
		}
	}
}

func TestPricingAddValidatesSum(t *testing.T) {
	a := newTestApp(t)
	s := a.session(t)
	s.register("erin@x")

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"string", `{"sum": "abc"}`, http.StatusBadRequest, "type_mismatch"},
		{"negative", `{"sum": -1}`, http.StatusBadRequest, "invalid_amount"},
		{"missing", `{}`, http.StatusBadRequest, "missing_field"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/pricing/add", strings.NewReader(tc.body), "application/json")
			if w.Code != tc.status || errorCode(t, w) != tc.code {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	w := s.json(http.MethodPost, "/pricing/add", map[string]any{"sum": 10})
	if w.Code != http.StatusOK || decode(t, w)["balance"] != 10.0 {
		t.Fatalf("top up: %d %s", w.Code, w.Body.String())
	}
	w = s.json(http.MethodGet, "/pricing/history", nil)
	entries, _ := decode(t, w)["entries"].([]any)
	if w.Code != http.StatusOK || len(entries) != 1 {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
}

func TestUploadSanitisesFilename(t *testing.T) {
	a := newTestApp(t)
	s := a.session(t)
	uid := s.register("frank@x")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "../../etc/passwd")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("root:x:0:0"))
	_ = mw.Close()

	w := s.do(http.MethodPost, "/file", &buf, mw.FormDataContentType())
	if w.Code != http.StatusOK || decode(t, w)["name"] != "passwd" {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(a.cfg.FilesRoot, uid, "passwd")); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(a.cfg.FilesRoot, "..", "etc", "passwd")); err == nil {
		t.Fatal("upload escaped the files root")
	}

	w = s.json(http.MethodGet, "/files_staged", nil)
	files, _ := decode(t, w)["files"].([]any)
	if len(files) != 1 || files[0] != "passwd" {
		t.Fatalf("staged: %s", w.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	a := newTestApp(t)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("readyz: %d %s", w.Code, w.Body.String())
	}
	checks, _ := decode(t, w)["checks"].(map[string]any)
	if checks["audit_db"] != "ok" {
		t.Fatalf("checks: %v", checks)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FRONTEND_ORIGIN", " https://a.test , ,https://b.test")
	t.Setenv("ENVIRONMENT", "production")
	cfg := LoadConfig(testutil.Logger(t))
	if cfg.Addr() != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.test" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if !cfg.CookieSecure || cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
}
