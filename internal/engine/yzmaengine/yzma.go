//go:build yzma

// Package yzmaengine binds the engine interface to llama.cpp through the
// yzma purego FFI bindings. No CGO is required; prebuilt llama.cpp
// libraries are loaded at runtime from the directory named by LORAD_LIB
// (default ./lib/llama).
//
// The bindings cover tokenization, decode, and sampling. LoRA adapter
// initialization and the optimizer entry points are not exposed by this
// binding surface, so training requests against this backend fail with a
// clear error instead of silently doing nothing.
package yzmaengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"

	"lorad/internal/engine"
	"lorad/internal/session"
)

var (
	initOnce sync.Once
	initErr  error
)

// libPath resolves the llama.cpp library directory.
func libPath() string {
	if p := os.Getenv("LORAD_LIB"); p != "" {
		return p
	}
	return filepath.Join(".", "lib", "llama")
}

func doInit() {
	p := libPath()
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if err := llama.Load(p); err != nil {
		initErr = fmt.Errorf("load llama.cpp libraries from %s: %w", p, err)
		return
	}
	llama.Init()
}

type yzmaEngine struct{}

// New returns the yzma-backed engine. Library loading is deferred to the
// first LoadModel call so constructing the engine never touches the
// filesystem.
func New() engine.Engine {
	return yzmaEngine{}
}

func (yzmaEngine) LoadModel(path string, p engine.ModelParams) (engine.Model, error) {
	initOnce.Do(doInit)
	if initErr != nil {
		return nil, &session.Error{Kind: session.KindBackendNotInitialized, Msg: "engine backend unavailable", Err: initErr}
	}
	mp := llama.ModelDefaultParams()
	mp.NGpuLayers = int32(p.NGPULayers)
	mdl, err := llama.ModelLoadFromFile(path, mp)
	if err != nil {
		return nil, &session.Error{Kind: session.KindModelLoadFailed, Msg: fmt.Sprintf("load model %s", path), Err: err}
	}
	return &yzmaModel{mdl: mdl, path: path, threads: p.NThreads}, nil
}

type yzmaModel struct {
	mdl     llama.Model
	path    string
	threads int
}

func (m *yzmaModel) Desc() string { return llama.ModelDesc(m.mdl) }

func (m *yzmaModel) NewContext(p engine.ContextParams) (engine.Context, error) {
	cp := llama.ContextDefaultParams()
	cp.NCtx = uint32(p.NCtx)
	cp.NBatch = uint32(p.NBatch)
	cp.Embeddings = 0
	lctx, err := llama.InitFromModel(m.mdl, cp)
	if err != nil {
		return nil, &session.Error{Kind: session.KindContextCreateFailed, Msg: "create context", Err: err}
	}
	return &yzmaContext{
		mdl:    m.mdl,
		lctx:   lctx,
		vocab:  llama.ModelGetVocab(m.mdl),
		params: cp,
		nCtx:   p.NCtx,
		nBatch: p.NBatch,
	}, nil
}

func (m *yzmaModel) NewAdapter(p engine.AdapterParams) (engine.Adapter, error) {
	return nil, &session.Error{Kind: session.KindAdapterCreateFailed, Msg: "adapter initialization is not exposed by the yzma backend"}
}

func (m *yzmaModel) LoadAdapter(path string) (engine.Adapter, error) {
	return nil, &session.Error{Kind: session.KindAdapterLoadFailed, Msg: "adapter loading is not exposed by the yzma backend"}
}

func (m *yzmaModel) Close() error {
	llama.ModelFree(m.mdl)
	return nil
}

type yzmaContext struct {
	mdl    llama.Model
	lctx   llama.Context
	vocab  llama.Vocab
	params llama.ContextParams
	nCtx   int
	nBatch int
}

func (c *yzmaContext) Tokenize(text string, addBOS bool) []engine.Token {
	toks := llama.Tokenize(c.vocab, text, addBOS, true)
	out := make([]engine.Token, len(toks))
	for i, t := range toks {
		out[i] = engine.Token(t)
	}
	return out
}

// Decode feeds tokens through llama_batch_get_one, which tracks positions in
// the context cache. Callers supply strictly increasing positions, so the
// implied sequential placement matches the requested one; the last token of
// every batch carries logits, which is the only pattern the session layer
// asks for.
func (c *yzmaContext) Decode(b engine.Batch) error {
	toks := make([]llama.Token, len(b.Tokens))
	for i, t := range b.Tokens {
		toks[i] = llama.Token(t)
	}
	batch := llama.BatchGetOne(toks)
	if _, err := llama.Decode(c.lctx, batch); err != nil {
		return err
	}
	return nil
}

func (c *yzmaContext) NewSampler(p engine.SamplerParams) engine.Sampler {
	sp := llama.DefaultSamplerParams()
	if p.Greedy {
		// top-k 1 is arg-max regardless of temperature
		sp.TopK = 1
		sp.TopP = 1
		sp.Temp = 1
	} else {
		sp.TopK = int32(p.TopK)
		sp.TopP = p.TopP
		sp.Temp = p.Temperature
	}
	smpl := llama.NewSampler(c.mdl, llama.DefaultSamplers, sp)
	return &yzmaSampler{smpl: smpl, lctx: c.lctx}
}

func (c *yzmaContext) TokenText(t engine.Token) []byte {
	buf := make([]byte, 64)
	n := llama.TokenToPiece(c.vocab, llama.Token(t), buf, 0, true)
	if n <= 0 {
		return nil
	}
	return buf[:n]
}

func (c *yzmaContext) IsEOG(t engine.Token) bool {
	return llama.VocabIsEOG(c.vocab, llama.Token(t))
}

func (c *yzmaContext) NCtx() int   { return c.nCtx }
func (c *yzmaContext) NBatch() int { return c.nBatch }

// ClearCache rebuilds the underlying context. The binding surface has no
// direct cache-reset call, and context creation is cheap relative to a
// generation pass.
func (c *yzmaContext) ClearCache() {
	lctx, err := llama.InitFromModel(c.mdl, c.params)
	if err != nil {
		return
	}
	llama.Free(c.lctx)
	c.lctx = lctx
}

func (c *yzmaContext) SetAdapter(a engine.Adapter, scale float32) error {
	return &session.Error{Kind: session.KindAdapterApplyFailed, Msg: "adapters are not exposed by the yzma backend"}
}

func (c *yzmaContext) RemoveAdapter() {}

func (c *yzmaContext) OptimizerInit(p engine.OptimizerParams) error {
	return &session.Error{Kind: session.KindTrainingNotInitialized, Msg: "the optimizer is not exposed by the yzma backend"}
}

func (c *yzmaContext) OptimizerEpoch(p engine.EpochParams, data engine.TrainingData, onBatch engine.ProgressFunc) (engine.EpochResult, error) {
	return engine.EpochResult{}, &session.Error{Kind: session.KindTrainingNotInitialized, Msg: "the optimizer is not exposed by the yzma backend"}
}

func (c *yzmaContext) Close() error {
	llama.Free(c.lctx)
	return nil
}

type yzmaSampler struct {
	smpl llama.Sampler
	lctx llama.Context
}

func (s *yzmaSampler) Sample() engine.Token {
	return engine.Token(llama.SamplerSample(s.smpl, s.lctx, -1))
}

func (s *yzmaSampler) Close() {
	llama.SamplerFree(s.smpl)
}
