// Package realtime runs prompt stream sessions over a bidirectional socket.
//
// A connection is authenticated once, then serves start_stream requests one at
// a time: balance gate, persona query, chunk forwarding, and persistence of the
// finished exchange. Frames that arrive while a session streams are queued and
// handled after it.
package realtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/requestdata"
	"github.com/yungbote/workbench-backend/internal/services"
)

const inboundQueue = 16

const (
	outcomeCompleted    = "completed"
	outcomeRefused      = "refused"
	outcomeUpstream     = "upstream_error"
	outcomeDisconnected = "disconnected"
)

type Dispatcher struct {
	log     *logger.Logger
	auth    services.AuthService
	ledger  services.LedgerService
	persona services.PersonaService
	prompts services.PromptService
	metrics *observability.Metrics

	pingPeriod time.Duration
	now        func() time.Time
}

func NewDispatcher(
	log *logger.Logger,
	auth services.AuthService,
	ledger services.LedgerService,
	persona services.PersonaService,
	prompts services.PromptService,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		log:        log.With("service", "StreamDispatcher"),
		auth:       auth,
		ledger:     ledger,
		persona:    persona,
		prompts:    prompts,
		metrics:    metrics,
		pingPeriod: pingPeriod,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Serve runs one connection until the client leaves or the connection is
// refused. It closes conn before returning.
func (d *Dispatcher) Serve(ctx context.Context, conn Conn, accessToken string) {
	d.metrics.StreamConnOpened()
	defer d.metrics.StreamConnClosed()

	claims, err := d.auth.VerifyAccess(ctx, accessToken)
	if err != nil {
		kind := apierr.CodeOf(err)
		if kind == "" {
			kind = apierr.CodeInvalidToken
		}
		d.metrics.IncSecurityEvent("stream_" + kind)
		d.log.Warn("stream connection refused", "kind", kind)
		_ = conn.WriteFrame(errorFrame(err))
		_ = conn.Close(ClosePolicyViolation, kind)
		return
	}

	rd := requestdata.New(claims.Subject, claims.ID)
	ctx, cancel := context.WithCancel(requestdata.WithRequestData(ctx, rd))
	log := d.log.With("user_id", rd.UserID)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = conn.Close(CloseNormal, "")
		wg.Wait()
	}()

	inbound := make(chan []byte, inboundQueue)
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.readLoop(ctx, cancel, conn, inbound, log)
	}()
	go func() {
		defer wg.Done()
		d.keepAlive(ctx, cancel, conn)
	}()

	log.Info("stream connection opened")
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-inbound:
			if !ok || !d.handle(ctx, conn, rd, raw, log) {
				return
			}
		}
	}
}

// readLoop feeds client frames to the session. A read failure means the
// client is gone, which cancels any running stream.
func (d *Dispatcher) readLoop(ctx context.Context, cancel context.CancelFunc, conn Conn, inbound chan<- []byte, log *logger.Logger) {
	defer close(inbound)
	defer cancel()
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn("stream read failed", "error", err)
			}
			return
		}
		select {
		case inbound <- raw:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) keepAlive(ctx context.Context, cancel context.CancelFunc, conn Conn) {
	ticker := time.NewTicker(d.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				cancel()
				return
			}
		}
	}
}

// handle processes one client frame. It reports whether the connection stays open.
func (d *Dispatcher) handle(ctx context.Context, conn Conn, rd *requestdata.RequestData, raw []byte, log *logger.Logger) bool {
	frame, err := decodeFrame(raw)
	if err != nil {
		return d.send(conn, errorFrame(err))
	}
	if frame.Event != EventStartStream {
		return d.send(conn, errorFrame(apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("unsupported event %q", frame.Event))))
	}
	req, err := decodeStart(frame.Data)
	if err != nil {
		return d.send(conn, errorFrame(err))
	}

	if err := d.ledger.RequirePositive(ctx); err != nil {
		if apierr.Is(err, apierr.CodeInsufficientBalance) {
			d.metrics.IncStream(outcomeRefused)
			log.Info("stream refused", "reason", "insufficient_balance")
			_ = conn.WriteFrame(errorFrame(err))
			_ = conn.Close(ClosePolicyViolation, apierr.CodeForbidden)
			return false
		}
		log.Error("balance check failed", "error", err)
		return d.send(conn, errorFrame(err))
	}
	return d.stream(ctx, conn, rd, req, log)
}

// stream runs one session from the persona query to the saved prompt.
func (d *Dispatcher) stream(ctx context.Context, conn Conn, rd *requestdata.RequestData, req startRequest, log *logger.Logger) bool {
	rd.MessageID = uuid.NewString()
	log = log.With("message_id", rd.MessageID)
	defer d.settle(ctx, rd, log)

	persona := d.persona.ResolvePersona(ctx, req.Persona, req.tag("persona"), req.Prompt)
	st, err := d.persona.Query(ctx, services.QueryRequest{
		Persona:      persona,
		Prompt:       req.Prompt,
		AdditionalQA: req.AdditionalQA,
		Category:     req.tag("category"),
		Topic:        req.tag("topic"),
		Files:        req.Files,
		MessageIDs:   req.Messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			d.metrics.IncStream(outcomeDisconnected)
			return false
		}
		d.metrics.IncStream(outcomeUpstream)
		log.Warn("stream could not start", "error", err)
		return d.send(conn, errorFrame(err))
	}
	defer st.Close()

	var buf strings.Builder
	for {
		chunk, err := st.Recv()
		if err == io.EOF || chunk.End {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				d.metrics.IncStream(outcomeDisconnected)
				log.Info("client left mid-stream", "buffered_chars", buf.Len())
				return false
			}
			d.metrics.IncStream(outcomeUpstream)
			log.Warn("upstream failed mid-stream", "error", err, "buffered_chars", buf.Len())
			return d.send(conn, errorFrame(err))
		}
		if err := conn.WriteFrame(Frame{Event: EventResponse, Data: map[string]any{"content": chunk.Content}}); err != nil {
			d.metrics.IncStream(outcomeDisconnected)
			log.Info("client left mid-stream", "error", err)
			return false
		}
		buf.WriteString(chunk.Content)
	}

	open := d.send(conn, Frame{Event: EventStreamEnd}) &&
		d.send(conn, Frame{Event: EventUpdateWorkflow, Data: map[string]any{"status": "finished"}})

	res := d.prompts.Persist(context.WithoutCancel(ctx), services.PersistRequest{
		Prompt:      req.Prompt,
		Response:    buf.String(),
		CategoryTag: req.tag("category"),
		At:          d.now(),
	})
	d.settle(ctx, rd, log)
	d.metrics.IncStream(outcomeCompleted)

	for _, w := range res.Warnings {
		open = open && d.send(conn, Frame{Event: EventPersistWarning, Data: map[string]any{
			"error": w.Step + ": " + apierr.From(w.Err).Public(),
			"step":  w.Step,
		}})
	}
	if res.Saved() {
		log.Info("prompt saved", "prompt_id", res.PromptID, "category", res.Category, "files", len(res.Files))
		open = open && d.send(conn, Frame{Event: EventPromptSaved, Data: map[string]any{"id": res.PromptID, "category": res.Category}})
	}
	return open
}

// settle charges the cost accumulated since the last settlement. It runs
// after every session, whatever its outcome.
func (d *Dispatcher) settle(ctx context.Context, rd *requestdata.RequestData, log *logger.Logger) {
	cost := rd.TakeCost()
	if cost <= 0 {
		return
	}
	if _, err := d.ledger.Settle(context.WithoutCancel(ctx), cost); err != nil {
		log.Error("settle failed", "cost", cost, "error", err)
	}
}

func (d *Dispatcher) send(conn Conn, f Frame) bool {
	if err := conn.WriteFrame(f); err != nil {
		d.log.Debug("frame write failed", "event", f.Event, "error", err)
		return false
	}
	return true
}
