// Package enginetest provides a deterministic in-memory engine for
// orchestration tests. Tokenization maps one token per input byte, sampling
// replays a scripted token sequence, and optimizer epochs return configured
// losses, so session and training behavior can be asserted exactly without a
// native runtime.
package enginetest

import (
	"errors"
	"fmt"
	"time"

	"lorad/internal/engine"
)

// Token id layout: BOS is 1, the default end-of-generation token is 2, byte
// b tokenizes to 256+b, and ids in Config.Pieces map to arbitrary fragments
// (used to script multi-byte UTF-8 split across tokens).
const (
	BOS        engine.Token = 1
	DefaultEOG engine.Token = 2
	byteBase   engine.Token = 256
)

// Tok returns the token id for one input byte, for building scripts.
func Tok(b byte) engine.Token { return byteBase + engine.Token(b) }

// Toks maps every byte of s to its token id.
func Toks(s string) []engine.Token {
	out := make([]engine.Token, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = Tok(s[i])
	}
	return out
}

// Config scripts the engine's behavior.
type Config struct {
	// Script is the sequence of tokens the sampler yields. When exhausted the
	// sampler yields EOG.
	Script []engine.Token
	// Pieces maps extra token ids (>= 512) to their text fragments.
	Pieces map[engine.Token]string
	// EOG overrides the end-of-generation token (DefaultEOG when zero).
	EOG    engine.Token
	NCtx   int
	NBatch int
	// FailDecodeAt makes the n-th Decode call (1-based) fail; zero disables.
	FailDecodeAt int

	TrainLoss    float64
	EvalLoss     float64
	OptInitErr   error
	OptimizerErr error
}

// Engine implements engine.Engine.
type Engine struct {
	cfg     Config
	LoadErr error
}

var _ engine.Engine = (*Engine)(nil)

func New(cfg Config) *Engine {
	if cfg.EOG == 0 {
		cfg.EOG = DefaultEOG
	}
	if cfg.NCtx <= 0 {
		cfg.NCtx = 2048
	}
	if cfg.NBatch <= 0 {
		cfg.NBatch = 512
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) LoadModel(path string, _ engine.ModelParams) (engine.Model, error) {
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	return &Model{cfg: e.cfg, Path: path}, nil
}

// Model implements engine.Model.
type Model struct {
	cfg        Config
	Path       string
	ContextErr error
	AdapterErr error
	Closed     bool
}

var _ engine.Model = (*Model)(nil)

func (m *Model) Desc() string { return "scripted test model" }

func (m *Model) NewContext(p engine.ContextParams) (engine.Context, error) {
	if m.ContextErr != nil {
		return nil, m.ContextErr
	}
	cfg := m.cfg
	if p.NCtx > 0 {
		cfg.NCtx = p.NCtx
	}
	if p.NBatch > 0 {
		cfg.NBatch = p.NBatch
	}
	return &Context{cfg: cfg}, nil
}

func (m *Model) NewAdapter(p engine.AdapterParams) (engine.Adapter, error) {
	if m.AdapterErr != nil {
		return nil, m.AdapterErr
	}
	return &Adapter{Rank: p.Rank}, nil
}

func (m *Model) LoadAdapter(path string) (engine.Adapter, error) {
	if m.AdapterErr != nil {
		return nil, m.AdapterErr
	}
	return &Adapter{Source: path}, nil
}

func (m *Model) Close() error {
	m.Closed = true
	return nil
}

// Adapter implements engine.Adapter and records saves.
type Adapter struct {
	Rank    int
	Source  string
	Saved   []string
	SaveErr error
	Closed  bool
}

var _ engine.Adapter = (*Adapter)(nil)

func (a *Adapter) Save(path string) error {
	if a.SaveErr != nil {
		return a.SaveErr
	}
	a.Saved = append(a.Saved, path)
	return nil
}

func (a *Adapter) Close() error {
	a.Closed = true
	return nil
}

// Context implements engine.Context and records every interaction for
// assertions.
type Context struct {
	cfg     Config
	step    int
	decodes int

	Batches        []engine.Batch
	Cleared        int
	SamplersOpen   int
	SamplersClosed int
	Applied        engine.Adapter
	OptReady       bool
	EpochCalls     []engine.EpochParams
}

var _ engine.Context = (*Context)(nil)

func (c *Context) Tokenize(text string, addBOS bool) []engine.Token {
	if text == "" {
		return nil
	}
	var out []engine.Token
	if addBOS {
		out = append(out, BOS)
	}
	return append(out, Toks(text)...)
}

func (c *Context) Decode(b engine.Batch) error {
	c.decodes++
	cp := engine.Batch{
		Tokens: append([]engine.Token(nil), b.Tokens...),
		Pos:    append([]int32(nil), b.Pos...),
		Logits: append([]bool(nil), b.Logits...),
	}
	c.Batches = append(c.Batches, cp)
	if c.cfg.FailDecodeAt > 0 && c.decodes == c.cfg.FailDecodeAt {
		return fmt.Errorf("scripted decode failure at call %d", c.decodes)
	}
	return nil
}

func (c *Context) NewSampler(engine.SamplerParams) engine.Sampler {
	c.SamplersOpen++
	return &sampler{c: c}
}

func (c *Context) TokenText(t engine.Token) []byte {
	if piece, ok := c.cfg.Pieces[t]; ok {
		return []byte(piece)
	}
	if t >= byteBase && t < byteBase+256 {
		return []byte{byte(t - byteBase)}
	}
	return nil
}

func (c *Context) IsEOG(t engine.Token) bool { return t == c.cfg.EOG }

func (c *Context) NCtx() int   { return c.cfg.NCtx }
func (c *Context) NBatch() int { return c.cfg.NBatch }

func (c *Context) ClearCache() { c.Cleared++ }

func (c *Context) SetAdapter(a engine.Adapter, _ float32) error {
	c.Applied = a
	return nil
}

func (c *Context) RemoveAdapter() { c.Applied = nil }

func (c *Context) OptimizerInit(engine.OptimizerParams) error {
	if c.cfg.OptInitErr != nil {
		return c.cfg.OptInitErr
	}
	c.OptReady = true
	return nil
}

func (c *Context) OptimizerEpoch(p engine.EpochParams, data engine.TrainingData, onBatch engine.ProgressFunc) (engine.EpochResult, error) {
	if !c.OptReady {
		return engine.EpochResult{}, errors.New("optimizer not initialized")
	}
	c.EpochCalls = append(c.EpochCalls, p)
	if c.cfg.OptimizerErr != nil {
		return engine.EpochResult{}, c.cfg.OptimizerErr
	}
	if onBatch != nil {
		for i := 0; i < p.SplitIndex; i++ {
			onBatch(engine.BatchProgress{
				Train: true, Batch: i + 1, Batches: p.SplitIndex,
				Loss: c.cfg.TrainLoss, Elapsed: time.Millisecond,
			})
		}
		for i := 0; i < data.Len()-p.SplitIndex; i++ {
			onBatch(engine.BatchProgress{
				Train: false, Batch: i + 1, Batches: data.Len() - p.SplitIndex,
				Loss: c.cfg.EvalLoss, Elapsed: time.Millisecond,
			})
		}
	}
	return engine.EpochResult{TrainLoss: c.cfg.TrainLoss, EvalLoss: c.cfg.EvalLoss}, nil
}

func (c *Context) Close() error { return nil }

type sampler struct {
	c      *Context
	closed bool
}

func (s *sampler) Sample() engine.Token {
	c := s.c
	if c.step >= len(c.cfg.Script) {
		return c.cfg.EOG
	}
	t := c.cfg.Script[c.step]
	c.step++
	return t
}

func (s *sampler) Close() {
	if !s.closed {
		s.closed = true
		s.c.SamplersClosed++
	}
}
