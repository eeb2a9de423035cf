// Package llmtest provides scripted generators for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/agentic-traveler/traveler/internal/llm"
)

// ErrScripted is returned by Failing.
var ErrScripted = errors.New("scripted backend failure")

// Func adapts a function to llm.Generator.
type Func func(ctx context.Context, req llm.Request) (string, error)

func (f Func) Generate(ctx context.Context, req llm.Request) (string, error) { return f(ctx, req) }

// Failing returns a generator that always fails.
func Failing() llm.Generator {
	return Func(func(context.Context, llm.Request) (string, error) { return "", ErrScripted })
}

// Fixed returns a generator that always answers text.
func Fixed(text string) llm.Generator {
	return Func(func(context.Context, llm.Request) (string, error) { return text, nil })
}

// Recorder answers per purpose and records every request it sees.
type Recorder struct {
	mu        sync.Mutex
	Responses map[llm.Purpose]string
	Errors    map[llm.Purpose]error
	Requests  []llm.Request
}

func NewRecorder() *Recorder {
	return &Recorder{
		Responses: make(map[llm.Purpose]string),
		Errors:    make(map[llm.Purpose]error),
	}
}

func (r *Recorder) Generate(_ context.Context, req llm.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, req)
	if err, ok := r.Errors[req.Purpose]; ok && err != nil {
		return "", err
	}
	if text, ok := r.Responses[req.Purpose]; ok {
		return text, nil
	}
	return "", ErrScripted
}

// Calls returns the recorded requests with the given purpose.
func (r *Recorder) Calls(p llm.Purpose) []llm.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []llm.Request
	for _, req := range r.Requests {
		if req.Purpose == p {
			out = append(out, req)
		}
	}
	return out
}
