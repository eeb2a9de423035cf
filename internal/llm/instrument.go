package llm

import (
	"context"
	"errors"
	"time"
)

// Observer receives one event per generation call.
type Observer interface {
	ObserveGeneration(purpose, outcome string, d time.Duration)
}

// InstrumentedGenerator reports call latency and outcome to an Observer.
type InstrumentedGenerator struct {
	next Generator
	obs  Observer
}

func Instrument(next Generator, obs Observer) Generator {
	if obs == nil {
		return next
	}
	return &InstrumentedGenerator{next: next, obs: obs}
}

func (g *InstrumentedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := g.next.Generate(ctx, req)
	g.obs.ObserveGeneration(string(req.Purpose), outcomeOf(text, err), time.Since(start))
	return text, err
}

func outcomeOf(text string, err error) string {
	switch {
	case err == nil && text == "":
		return "empty"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOffline):
		return "offline"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
