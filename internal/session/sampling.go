package session

import "lorad/internal/engine"

// Sampling strategy constants for the stochastic chain. The chain order is
// fixed: top-k narrows, top-p renormalizes, temperature re-weights, then the
// stochastic draw consumes the resulting distribution.
const (
	defaultTopK = 40
	defaultTopP = 0.9
)

// Strategy is the tagged sampling variant selected from a flat temperature
// value. It is constructed once per generation call and composed into an
// engine sampler chain, never mutated afterwards.
type Strategy struct {
	Deterministic bool
	TopK          int
	TopP          float32
	Temperature   float32
	Seed          uint32
}

// PickStrategy selects arg-max decoding for temperature <= 0 and the
// top-k/top-p/temperature/draw chain otherwise.
func PickStrategy(temperature float32, seed uint32) Strategy {
	if temperature <= 0 {
		return Strategy{Deterministic: true}
	}
	return Strategy{
		TopK:        defaultTopK,
		TopP:        defaultTopP,
		Temperature: temperature,
		Seed:        seed,
	}
}

func (s Strategy) samplerParams() engine.SamplerParams {
	if s.Deterministic {
		return engine.SamplerParams{Greedy: true}
	}
	return engine.SamplerParams{
		TopK:        s.TopK,
		TopP:        s.TopP,
		Temperature: s.Temperature,
		Seed:        s.Seed,
	}
}
