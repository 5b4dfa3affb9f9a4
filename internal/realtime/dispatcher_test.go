package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/data/revocation"
	"github.com/yungbote/workbench-backend/internal/data/userconfig"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/platform/openai"
	"github.com/yungbote/workbench-backend/internal/requestdata"
	"github.com/yungbote/workbench-backend/internal/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	in      chan []byte
	written chan Frame
	gone    chan struct{}
	goneMu  sync.Once

	mu     sync.Mutex
	frames []Frame
	code   int
	reason string
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 8),
		written: make(chan Frame, 64),
		gone:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.gone:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	select {
	case <-c.gone:
		return errors.New("broken pipe")
	default:
	}
	c.frames = append(c.frames, f)
	c.written <- f
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if !c.closed {
		c.closed, c.code, c.reason = true, code, reason
	}
	c.mu.Unlock()
	c.hangup()
	return nil
}

func (c *fakeConn) hangup() { c.goneMu.Do(func() { close(c.gone) }) }

func (c *fakeConn) send(t *testing.T, event string, data map[string]any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.in <- raw
}

func (c *fakeConn) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-c.written:
		return f
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a frame")
	}
	return Frame{}
}

func (c *fakeConn) closeStatus() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.reason
}

// upstream is a scripted model endpoint. Every call costs 0.02 at test prices.
type upstream struct {
	deltas []string
	err    error
	hang   bool
	calls  int32
}

var usage = openai.Usage{InputTokens: 1000, OutputTokens: 1000}

func (u *upstream) GenerateText(ctx context.Context, msgs []openai.Message) (openai.Result, error) {
	atomic.AddInt32(&u.calls, 1)
	return openai.Result{Text: "misc", Model: "fake", Usage: usage}, nil
}

func (u *upstream) GenerateJSON(ctx context.Context, msgs []openai.Message, name string, schema map[string]any) (map[string]any, openai.Result, error) {
	atomic.AddInt32(&u.calls, 1)
	return map[string]any{}, openai.Result{Model: "fake", Usage: usage}, nil
}

func (u *upstream) StreamText(ctx context.Context, msgs []openai.Message, onDelta func(string) error) (openai.Result, error) {
	atomic.AddInt32(&u.calls, 1)
	for _, d := range u.deltas {
		if err := onDelta(d); err != nil {
			return openai.Result{}, err
		}
	}
	if u.hang {
		<-ctx.Done()
		return openai.Result{}, ctx.Err()
	}
	if u.err != nil {
		return openai.Result{}, u.err
	}
	return openai.Result{Model: "fake", Usage: usage}, nil
}

type harness struct {
	dispatcher *Dispatcher
	auth       services.AuthService
	ledger     services.LedgerService
	store      *graph.MemoryStore
	up         *upstream
}

func newHarness(t *testing.T, up *upstream) *harness {
	t.Helper()
	log := testutil.Logger(t)
	store := graph.NewMemoryStore()
	files, err := filestore.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	configs, err := userconfig.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("userconfig: %v", err)
	}
	orch, err := llm.New(log, up, &llm.CostMeter{}, nil, llm.Config{
		Pricing: llm.Pricing{InputPer1K: 0.005, OutputPer1K: 0.015},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("llm: %v", err)
	}
	led := services.NewLedgerService(log, store, nil, &llm.CostMeter{}, nil)
	auth, err := services.NewAuthService(log, store, revocation.NewMemory(), led, nil, nil, services.AuthConfig{
		Secret:     "test-secret",
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	aug := services.NewAugmentationService(log, orch, store, files)
	persona := services.NewPersonaService(log, orch, store, files, configs, aug)
	prompts := services.NewPromptService(log, store, files, configs, aug, nil, false)
	return &harness{
		dispatcher: NewDispatcher(log, auth, led, persona, prompts, nil),
		auth:       auth,
		ledger:     led,
		store:      store,
		up:         up,
	}
}

// login registers a user, credits it and returns its access token and session context.
func (h *harness) login(t *testing.T, credit float64) (string, context.Context) {
	t.Helper()
	tok, err := h.auth.Register(context.Background(), "user@example.com", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx, err := h.auth.SetContextFromToken(context.Background(), tok.Access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if credit > 0 {
		if _, err := h.ledger.Credit(ctx, credit, "test"); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	return tok.Access, ctx
}

func (h *harness) serve(conn *fakeConn, token string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.dispatcher.Serve(context.Background(), conn, token)
	}()
	return done
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

func data(f Frame) map[string]any {
	m, _ := f.Data.(map[string]any)
	return m
}

func expectEvent(t *testing.T, f Frame, want Event) map[string]any {
	t.Helper()
	if f.Event != want {
		t.Fatalf("event = %q (%v), want %q", f.Event, f.Data, want)
	}
	return data(f)
}

func TestServeRefusesUnauthenticated(t *testing.T) {
	cases := map[string]string{
		"":        "token_missing",
		"garbage": "invalid_token",
	}
	for token, kind := range cases {
		h := newHarness(t, &upstream{})
		conn := newFakeConn()
		wait(t, h.serve(conn, token))

		d := expectEvent(t, conn.next(t), EventError)
		if d["kind"] != kind {
			t.Fatalf("token %q: kind = %v, want %s", token, d["kind"], kind)
		}
		if code, reason := conn.closeStatus(); code != ClosePolicyViolation || reason != kind {
			t.Fatalf("close = %d %q", code, reason)
		}
	}
}

func TestServeStreamsThenPersists(t *testing.T) {
	h := newHarness(t, &upstream{deltas: []string{"Hel", "lo", " world"}})
	token, ctx := h.login(t, 1)
	conn := newFakeConn()
	done := h.serve(conn, token)

	conn.send(t, "start_stream", map[string]any{
		"prompt":  "say hello",
		"persona": "Coder",
		"tags":    map[string]any{"category": "Greetings"},
	})

	var got string
	for _, want := range []string{"Hel", "lo", " world"} {
		d := expectEvent(t, conn.next(t), EventResponse)
		if d["content"] != want {
			t.Fatalf("content = %v, want %q", d["content"], want)
		}
		got += want
	}
	expectEvent(t, conn.next(t), EventStreamEnd)
	if d := expectEvent(t, conn.next(t), EventUpdateWorkflow); d["status"] != "finished" {
		t.Fatalf("update_workflow = %v", d)
	}
	saved := expectEvent(t, conn.next(t), EventPromptSaved)
	if saved["category"] != "greetings" || saved["id"] == "" {
		t.Fatalf("prompt_saved = %v", saved)
	}

	conn.hangup()
	wait(t, done)

	userID := requestdata.UserID(ctx)
	msgs, _ := h.store.GetMessages(ctx, userID, "greetings")
	if len(msgs) != 1 || msgs[0].Response != got || msgs[0].ID != saved["id"] {
		t.Fatalf("persisted = %+v", msgs)
	}
	if bal, _ := h.ledger.Balance(ctx); math.Abs(bal-0.98) > 1e-9 {
		t.Fatalf("balance = %v, want 0.98", bal)
	}
	if n := atomic.LoadInt32(&h.up.calls); n != 1 {
		t.Fatalf("upstream calls = %d", n)
	}
}

func TestServeRefusesEmptyBalance(t *testing.T) {
	h := newHarness(t, &upstream{deltas: []string{"x"}})
	token, _ := h.login(t, 0)
	conn := newFakeConn()
	done := h.serve(conn, token)

	conn.send(t, "start_stream", map[string]any{"prompt": "hi"})
	d := expectEvent(t, conn.next(t), EventError)
	if d["error"] != "Insufficient balance" {
		t.Fatalf("error = %v", d["error"])
	}
	wait(t, done)
	if code, reason := conn.closeStatus(); code != ClosePolicyViolation || reason != "forbidden" {
		t.Fatalf("close = %d %q", code, reason)
	}
	if n := atomic.LoadInt32(&h.up.calls); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestServeInvalidFrameKeepsConnection(t *testing.T) {
	h := newHarness(t, &upstream{deltas: []string{"ok"}})
	token, _ := h.login(t, 1)
	conn := newFakeConn()
	done := h.serve(conn, token)

	conn.in <- []byte("not json")
	expectEvent(t, conn.next(t), EventError)

	conn.send(t, "start_stream", map[string]any{"additionalQA": "x"})
	if d := expectEvent(t, conn.next(t), EventError); d["kind"] != "missing_field" {
		t.Fatalf("kind = %v", d["kind"])
	}

	conn.send(t, "start_stream", map[string]any{"prompt": "hi", "tags": map[string]any{"category": "misc"}})
	expectEvent(t, conn.next(t), EventResponse)
	expectEvent(t, conn.next(t), EventStreamEnd)

	conn.hangup()
	wait(t, done)
}

func TestServeUpstreamErrorSkipsPersistence(t *testing.T) {
	h := newHarness(t, &upstream{deltas: []string{"partial"}, err: errors.New("upstream reset")})
	token, ctx := h.login(t, 1)
	conn := newFakeConn()
	done := h.serve(conn, token)

	// An explicit persona keeps persona selection off the metered path.
	conn.send(t, "start_stream", map[string]any{
		"prompt":  "hi",
		"persona": "Coder",
		"tags":    map[string]any{"category": "misc"},
	})
	expectEvent(t, conn.next(t), EventResponse)
	if d := expectEvent(t, conn.next(t), EventError); d["kind"] != "upstream_error" {
		t.Fatalf("kind = %v", d["kind"])
	}

	conn.hangup()
	wait(t, done)
	if msgs, _ := h.store.GetMessages(ctx, requestdata.UserID(ctx), "misc"); len(msgs) != 0 {
		t.Fatalf("partial response persisted: %+v", msgs)
	}
	if n := atomic.LoadInt32(&h.up.calls); n != 1 {
		t.Fatalf("upstream calls = %d, want only the stream", n)
	}
	if bal, _ := h.ledger.Balance(ctx); bal != 1 {
		t.Fatalf("failed stream was charged: %v", bal)
	}
}

func TestServeUpstreamErrorChargesPersonaSelection(t *testing.T) {
	h := newHarness(t, &upstream{deltas: []string{"partial"}, err: errors.New("upstream reset")})
	token, ctx := h.login(t, 1)
	conn := newFakeConn()
	done := h.serve(conn, token)

	conn.send(t, "start_stream", map[string]any{"prompt": "hi", "tags": map[string]any{"category": "misc"}})
	expectEvent(t, conn.next(t), EventResponse)
	expectEvent(t, conn.next(t), EventError)

	conn.hangup()
	wait(t, done)
	if n := atomic.LoadInt32(&h.up.calls); n != 2 {
		t.Fatalf("upstream calls = %d, want selection plus stream", n)
	}
	if bal, _ := h.ledger.Balance(ctx); math.Abs(bal-0.98) > 1e-9 {
		t.Fatalf("balance = %v, want only the selection call charged", bal)
	}
}

func TestServeDisconnectCancelsUpstream(t *testing.T) {
	h := newHarness(t, &upstream{deltas: []string{"first"}, hang: true})
	token, ctx := h.login(t, 1)
	conn := newFakeConn()
	done := h.serve(conn, token)

	conn.send(t, "start_stream", map[string]any{"prompt": "hi", "tags": map[string]any{"category": "misc"}})
	expectEvent(t, conn.next(t), EventResponse)
	conn.hangup()
	wait(t, done)

	if msgs, _ := h.store.GetMessages(ctx, requestdata.UserID(ctx), "misc"); len(msgs) != 0 {
		t.Fatalf("cancelled stream persisted: %+v", msgs)
	}
}
