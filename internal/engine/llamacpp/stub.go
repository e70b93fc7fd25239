//go:build !llama

// This file provides a no-CGO stub compiled when the 'llama' build tag is
// NOT set, keeping default builds and CI CGO-free. The real backend lives
// in llamacpp.go (tagged 'llama').
package llamacpp

import (
	"context"

	"lorad/internal/session"
)

// Generator is a stub that refuses to load models without the 'llama' build
// tag. This avoids any mocked behavior in production binaries built without
// CGO support.
type Generator struct{}

func New() *Generator { return &Generator{} }

func errNotBuilt() error {
	return &session.Error{
		Kind: session.KindBackendNotInitialized,
		Msg:  "llama.cpp support not built (missing 'llama' build tag)",
	}
}

func (g *Generator) Load(path string, nCtx, nThreads int) error { return errNotBuilt() }

func (g *Generator) Desc() string { return "" }

func (g *Generator) Generate(ctx context.Context, prompt string, p session.Params, onToken func(string)) (session.Result, error) {
	return session.Result{}, errNotBuilt()
}

func (g *Generator) Close() error { return nil }
