//go:build llama

// Package llamacpp provides a coarse prompt-in/text-out generation backend
// over the in-process go-llama.cpp bindings (CGO). It covers generation only;
// token-level session control, adapters, and training need the yzma backend.
package llamacpp

import (
	"context"
	"errors"
	"strings"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/google/uuid"

	"lorad/internal/session"
)

const (
	defaultTopK = 40
	defaultTopP = 0.9
)

// Generator owns one loaded model.
type Generator struct {
	model   *llama.LLama
	desc    string
	threads int
}

func New() *Generator { return &Generator{} }

func (g *Generator) Load(path string, nCtx, nThreads int) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("model path is empty")
	}
	m, err := llama.New(path, llama.SetContext(nCtx))
	if err != nil {
		return &session.Error{Kind: session.KindModelLoadFailed, Msg: "load model " + path, Err: err}
	}
	if g.model != nil {
		g.model.Free()
	}
	g.model = m
	g.desc = "llama.cpp " + path
	g.threads = nThreads
	return nil
}

func (g *Generator) Desc() string { return g.desc }

// Generate runs one blocking prediction, forwarding streamed fragments to
// onToken. Token counts are approximated from the callback because the
// binding does not report usage.
func (g *Generator) Generate(ctx context.Context, prompt string, p session.Params, onToken func(string)) (session.Result, error) {
	if g.model == nil {
		return session.Result{}, &session.Error{Kind: session.KindModelNotLoaded, Msg: "no model loaded"}
	}
	if strings.TrimSpace(prompt) == "" {
		return session.Result{}, &session.Error{Kind: session.KindEmptyPrompt, Msg: "prompt produced no tokens"}
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = session.DefaultMaxTokens
	}
	stops := p.Stop
	if stops == nil {
		stops = session.DefaultStops
	}

	count := 0
	g.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		count++
		if onToken != nil {
			onToken(tok)
		}
		return true
	})

	po := []llama.PredictOption{
		llama.SetTokens(maxTokens),
		llama.SetThreads(maxInt(1, g.threads)),
	}
	if p.Temperature <= 0 {
		// arg-max decoding
		po = append(po, llama.SetTopK(1), llama.SetTopP(1), llama.SetTemperature(1))
	} else {
		po = append(po,
			llama.SetTopK(defaultTopK),
			llama.SetTopP(defaultTopP),
			llama.SetTemperature(p.Temperature),
		)
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(int(p.Seed)))
	}
	if len(stops) > 0 {
		po = append(po, llama.SetStopWords(stops...))
	}

	start := time.Now()
	text, err := g.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return session.Result{}, ctx.Err()
		}
		return session.Result{}, &session.Error{Kind: session.KindDecodeFailure, Msg: "prediction failed", Err: err}
	}
	res := session.Result{
		ID:              uuid.NewString(),
		Content:         text,
		TokensGenerated: count,
		FinishReason:    session.FinishStop,
		Duration:        time.Since(start),
	}
	if count >= maxTokens {
		res.FinishReason = session.FinishLength
	}
	return res, nil
}

func (g *Generator) Close() error {
	if g.model != nil {
		g.model.Free()
		g.model = nil
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
