package adapter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/jherleth/salvo-ai/model"
)

// RateLimited wraps an Adapter with a token-bucket limiter so a provider
// that rate-limits aggressively does not get hammered by many concurrent
// trials. It composes with the Trial Orchestrator's retry/backoff: the
// limiter smooths request pacing, retry handles the occasional 429 that
// still gets through.
type RateLimited struct {
	next    Adapter
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limiter allowing rps requests per second
// and up to burst requests in a single instant.
func NewRateLimited(next Adapter, rps float64, burst int) *RateLimited {
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// SendTurn blocks until the limiter admits the call (or ctx is done), then
// delegates to the wrapped Adapter.
func (r *RateLimited) SendTurn(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, cfg model.Config) (model.AdapterTurnResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.AdapterTurnResult{}, err
	}
	return r.next.SendTurn(ctx, messages, tools, cfg)
}
