package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/foliorank/foliorank/internal/domain"
)

// Generator is a generative collaborator producing candidate payloads.
// Implementations must honor context cancellation; the gate never trusts
// their output and always re-checks it.
type Generator interface {
	Generate(ctx context.Context, action domain.Action, prompt string) (Payload, error)
}

// GenerateChecked runs a generator under a hard timeout and gates its
// output. A timed-out generation returns *domain.GenerationTimeoutError
// and writes no audit entry: nothing was produced, so there is no
// decision to record. A retried generation is a fresh attempt with its
// own entries.
func (g *Gate) GenerateChecked(ctx context.Context, gen Generator, action domain.Action, prompt string, timeout time.Duration) (*Decision, error) {
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type genResult struct {
		payload Payload
		err     error
	}
	done := make(chan genResult, 1)
	go func() {
		payload, err := gen.Generate(genCtx, action, prompt)
		done <- genResult{payload, err}
	}()

	select {
	case <-genCtx.Done():
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, &domain.GenerationTimeoutError{Action: action, Timeout: timeout.String()}
		}
		return nil, genCtx.Err()
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, &domain.GenerationTimeoutError{Action: action, Timeout: timeout.String()}
			}
			return nil, res.err
		}
		return g.CheckOutput(action, res.payload)
	}
}
