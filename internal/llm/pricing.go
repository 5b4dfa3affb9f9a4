package llm

import (
	"sync"

	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/openai"
)

// Pricing converts token usage into money, per 1,000 tokens.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

func PricingFromEnv() Pricing {
	return Pricing{
		InputPer1K:  envutil.Float("LLM_INPUT_COST_PER_1K", 0.005),
		OutputPer1K: envutil.Float("LLM_OUTPUT_COST_PER_1K", 0.015),
	}
}

func (p Pricing) Cost(u openai.Usage) float64 {
	c := float64(u.InputTokens)/1000*p.InputPer1K + float64(u.OutputTokens)/1000*p.OutputPer1K
	if c < 0 {
		return 0
	}
	return c
}

// CostMeter accumulates the cost of every upstream call since process start.
// It is reported, never enforced.
type CostMeter struct {
	mu    sync.Mutex
	total float64
	calls int64
}

func (m *CostMeter) Add(cost float64) {
	if m == nil || cost <= 0 {
		return
	}
	m.mu.Lock()
	m.total += cost
	m.calls++
	m.mu.Unlock()
}

func (m *CostMeter) Total() float64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *CostMeter) Calls() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
