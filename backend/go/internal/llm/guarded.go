package llm

import (
	"context"

	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/pkg/circuitbreaker"
)

// Guarded 让所有调用经过熔断器，并记录调用结果。
type Guarded struct {
	next    LLM
	breaker *circuitbreaker.Breaker
	metrics *metrics.Metrics
}

// NewGuarded 包装 next。breaker 为 nil 时只记录指标。
func NewGuarded(next LLM, breaker *circuitbreaker.Breaker, m *metrics.Metrics) *Guarded {
	return &Guarded{next: next, breaker: breaker, metrics: m}
}

// GenerateJSON 实现 LLM。
func (g *Guarded) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	var out string
	call := func() error {
		var err error
		out, err = g.next.GenerateJSON(ctx, system, prompt)
		return err
	}
	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call)
	} else {
		err = call()
	}
	g.metrics.UpstreamCall("llm", err)
	return out, err
}

// Close 实现 LLM。
func (g *Guarded) Close() error {
	return g.next.Close()
}
