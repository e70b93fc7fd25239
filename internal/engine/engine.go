// Package engine defines the interface boundary between the orchestration
// layer and the model-inference runtime. Everything below this boundary
// (tokenizer, forward pass, sampler primitives, optimizer step) is treated
// as a fixed black box; concrete bindings live in subpackages and are
// selected by build tag.
package engine

import "time"

// Token is an opaque vocabulary identifier. This layer only compares tokens
// for equality and maps them to byte fragments via Context.TokenText.
type Token int32

// Batch is a single decode request: tokens with explicit cache positions and
// per-position output-logit flags. Positions within a generation session are
// strictly increasing starting at zero.
type Batch struct {
	Tokens []Token
	Pos    []int32
	Logits []bool
}

// ModelParams configures model loading.
type ModelParams struct {
	NThreads   int
	NGPULayers int
}

// ContextParams configures a decode context created from a loaded model.
type ContextParams struct {
	NCtx   int
	NBatch int
	// Training requests a context suitable for optimizer passes
	// (full-precision cache; engine-specific).
	Training bool
}

// AdapterParams configures a freshly initialized LoRA adapter.
type AdapterParams struct {
	Rank       int
	Alpha      float32
	SkipLayers int
}

// SamplerParams configures a sampler chain. When Greedy is set the remaining
// fields are ignored and the chain is a single arg-max stage.
type SamplerParams struct {
	Greedy      bool
	TopK        int
	TopP        float32
	Temperature float32
	Seed        uint32
}

// OptimizerParams configures optimizer initialization for a training context.
type OptimizerParams struct {
	// AdapterOnly restricts updates to adapter tensors; base model weights
	// stay frozen.
	AdapterOnly bool
}

// EpochParams drives one optimizer epoch.
type EpochParams struct {
	// SplitIndex partitions the dataset: examples [0, SplitIndex) train,
	// [SplitIndex, Len) evaluate without updating.
	SplitIndex   int
	LearningRate float64
}

// EpochResult carries aggregate losses for one epoch. EvalLoss is only
// meaningful when the split left at least one evaluation example.
type EpochResult struct {
	TrainLoss float64
	EvalLoss  float64
}

// BatchProgress is reported after every optimizer batch.
type BatchProgress struct {
	Train   bool
	Batch   int
	Batches int
	Loss    float64
	Elapsed time.Duration
}

// ProgressFunc receives per-batch training progress.
type ProgressFunc func(BatchProgress)

// TrainingData is the dataset view consumed by OptimizerEpoch. Each example
// is a fixed-length window of n_ctx+1 tokens (inputs plus next-token targets).
type TrainingData interface {
	Len() int
	Example(i int) []Token
}

// Engine loads models. Implementations may be process-wide singletons; the
// orchestration layer never assumes more than one model loaded per Engine.
type Engine interface {
	LoadModel(path string, p ModelParams) (Model, error)
}

// Model is a loaded model. It owns no decode state; contexts do.
type Model interface {
	Desc() string
	NewContext(p ContextParams) (Context, error)
	NewAdapter(p AdapterParams) (Adapter, error)
	LoadAdapter(path string) (Adapter, error)
	Close() error
}

// Adapter is a LoRA adapter, freshly initialized or loaded from storage.
type Adapter interface {
	Save(path string) error
	Close() error
}

// Context is a decode context: the KV/recurrent cache plus tokenizer and
// sampler access. A context must not run two operations concurrently.
type Context interface {
	// Tokenize splits text into vocabulary tokens. addBOS prepends the
	// beginning-of-sequence marker.
	Tokenize(text string, addBOS bool) []Token
	// Decode runs one forward pass. A non-nil error is terminal for the
	// calling session and is never retried by this layer.
	Decode(b Batch) error
	NewSampler(p SamplerParams) Sampler
	// TokenText returns the byte fragment for a token. The bytes may be an
	// incomplete UTF-8 sequence; callers must not assume rune alignment.
	TokenText(t Token) []byte
	// IsEOG reports whether the token signals natural end of generation.
	IsEOG(t Token) bool
	NCtx() int
	NBatch() int
	// ClearCache resets episodic cache state so a fresh generation never
	// sees prior turns.
	ClearCache()
	// SetAdapter applies an adapter to this context, detaching any
	// previously applied one.
	SetAdapter(a Adapter, scale float32) error
	// RemoveAdapter detaches the applied adapter, if any.
	RemoveAdapter()
	OptimizerInit(p OptimizerParams) error
	OptimizerEpoch(p EpochParams, data TrainingData, onBatch ProgressFunc) (EpochResult, error)
	Close() error
}

// Sampler is a constructed sampler chain. Close must be called on every
// session exit path.
type Sampler interface {
	Sample() Token
	Close()
}
