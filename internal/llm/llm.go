// Package llm is the orchestrator every feature uses to talk to the upstream
// model. It adds deadlines, a circuit breaker and cost accounting on top of the
// wire client; nothing else in the tree knows the wire protocol.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/ctxutil"
	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/platform/openai"
	"github.com/yungbote/workbench-backend/internal/requestdata"
)

type Orchestrator interface {
	// Execute issues one call and returns the full text.
	Execute(ctx context.Context, system, user []string) (string, error)
	// ExecuteJSON issues one structured-output call constrained by schema.
	ExecuteJSON(ctx context.Context, system, user []string, schemaName string, schema map[string]any) (map[string]any, error)
	// Stream starts a streaming call. Cancelling ctx or closing the stream cancels it upstream.
	Stream(ctx context.Context, system, user []string) (*Stream, error)
}

type Config struct {
	Pricing Pricing
	// Timeout bounds each call, streaming included.
	Timeout time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Pricing:         PricingFromEnv(),
		Timeout:         time.Duration(envutil.Int("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
		BreakerFailures: uint32(envutil.Int("LLM_BREAKER_FAILURES", 5)),
		BreakerCooldown: time.Duration(envutil.Int("LLM_BREAKER_COOLDOWN_SECONDS", 30)) * time.Second,
	}
}

type orchestrator struct {
	log     *logger.Logger
	client  openai.Client
	cfg     Config
	meter   *CostMeter
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

func New(log *logger.Logger, client openai.Client, meter *CostMeter, metrics *observability.Metrics, cfg Config) (Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if meter == nil {
		meter = &CostMeter{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	o := &orchestrator{
		log:     log.With("service", "LLMOrchestrator"),
		client:  client,
		cfg:     cfg,
		meter:   meter,
		metrics: metrics,
	}
	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream-llm",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			o.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return o, nil
}

func buildMessages(system, user []string) []openai.Message {
	msgs := make([]openai.Message, 0, len(system)+len(user))
	for _, s := range system {
		msgs = append(msgs, openai.System(s))
	}
	for _, u := range user {
		msgs = append(msgs, openai.User(u))
	}
	return msgs
}

// account charges the call to the request's session context and the process meter.
func (o *orchestrator) account(ctx context.Context, mode string, started time.Time, res openai.Result, err error) {
	cost := 0.0
	if err == nil {
		cost = o.cfg.Pricing.Cost(res.Usage)
		requestdata.GetRequestData(ctx).AddCost(cost)
		o.meter.Add(cost)
	}
	o.metrics.ObserveLLMRequest(res.Model, mode, statusLabel(err), time.Since(started), res.Usage.InputTokens, res.Usage.OutputTokens, cost)
}

func (o *orchestrator) Execute(ctx context.Context, system, user []string) (string, error) {
	ctx = ctxutil.Default(ctx)
	ctx, span := observability.StartSpan(ctx, "llm.execute")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	started := time.Now()
	var res openai.Result
	_, err := o.breaker.Execute(func() (any, error) {
		r, err := o.client.GenerateText(callCtx, buildMessages(system, user))
		res = r
		return nil, err
	})
	err = mapErr(err)
	o.account(ctx, "execute", started, res, err)
	if err != nil {
		span.RecordError(err)
		o.log.Warn("llm execute failed", "error", err, "user_id", requestdata.UserID(ctx))
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.output_tokens", res.Usage.OutputTokens))
	return res.Text, nil
}

func (o *orchestrator) ExecuteJSON(ctx context.Context, system, user []string, schemaName string, schema map[string]any) (map[string]any, error) {
	ctx = ctxutil.Default(ctx)
	ctx, span := observability.StartSpan(ctx, "llm.execute_json", attribute.String("llm.schema", schemaName))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	started := time.Now()
	var (
		res openai.Result
		obj map[string]any
	)
	_, err := o.breaker.Execute(func() (any, error) {
		m, r, err := o.client.GenerateJSON(callCtx, buildMessages(system, user), schemaName, schema)
		obj, res = m, r
		return nil, err
	})
	err = mapErr(err)
	o.account(ctx, "execute_json", started, res, err)
	if err != nil {
		span.RecordError(err)
		o.log.Warn("llm execute_json failed", "schema", schemaName, "error", err, "user_id", requestdata.UserID(ctx))
		return nil, err
	}
	return obj, nil
}

func (o *orchestrator) Stream(ctx context.Context, system, user []string) (*Stream, error) {
	ctx = ctxutil.Default(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.breaker.State() == gobreaker.StateOpen {
		return nil, mapErr(gobreaker.ErrOpenState)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	s := newStream(cancel)
	msgs := buildMessages(system, user)

	go func() {
		defer s.finish()
		defer cancel()
		spanCtx, span := observability.StartSpan(callCtx, "llm.stream")
		defer span.End()

		started := time.Now()
		var res openai.Result
		_, err := o.breaker.Execute(func() (any, error) {
			r, err := o.client.StreamText(spanCtx, msgs, func(delta string) error {
				return s.send(callCtx, Chunk{Content: delta})
			})
			res = r
			return nil, err
		})
		err = mapErr(err)
		o.account(ctx, "stream", started, res, err)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				span.RecordError(err)
				o.log.Warn("llm stream failed", "error", err, "user_id", requestdata.UserID(ctx))
			}
			s.err = err
			return
		}
		if err := s.send(callCtx, Chunk{End: true}); err != nil {
			s.err = err
		}
	}()
	return s, nil
}
