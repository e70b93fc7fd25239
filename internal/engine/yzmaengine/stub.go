//go:build !yzma

// This file provides a stub compiled when the 'yzma' build tag is NOT set,
// keeping default builds free of the llama.cpp library requirement. The
// real binding lives in yzma.go (tagged 'yzma').
package yzmaengine

import (
	"lorad/internal/engine"
	"lorad/internal/session"
)

type stubEngine struct{}

// New returns a stub that refuses to load models without the 'yzma' build
// tag. This avoids any mocked behavior in binaries built without the
// runtime libraries.
func New() engine.Engine {
	return stubEngine{}
}

func (stubEngine) LoadModel(path string, p engine.ModelParams) (engine.Model, error) {
	return nil, &session.Error{
		Kind: session.KindBackendNotInitialized,
		Msg:  "engine support not built (missing 'yzma' build tag)",
	}
}
