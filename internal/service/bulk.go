package service

import (
	"context"

	"lorad/internal/session"
)

// BulkGenerator is a coarse prompt-in/text-out backend. It serves generation
// when the token-level engine is unavailable in this build; adapters and
// training always need the token-level engine.
type BulkGenerator interface {
	Load(path string, nCtx, nThreads int) error
	Desc() string
	Generate(ctx context.Context, prompt string, p session.Params, onToken func(string)) (session.Result, error)
	Close() error
}
