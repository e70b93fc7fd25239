// Package types holds the wire types of the lorad HTTP API.
package types

// GenerateRequest asks for one generation call.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature,omitempty"`
	Seed        uint32   `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// GenerateChunk is one incremental NDJSON line of a streaming call.
type GenerateChunk struct {
	Content string `json:"content"`
}

// Usage is token accounting for one generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse is the non-streaming response body and the terminal NDJSON
// line of a streaming call.
type GenerateResponse struct {
	ID           string  `json:"id"`
	Done         bool    `json:"done"`
	Content      string  `json:"content"`
	FinishReason string  `json:"finish_reason"`
	Usage        Usage   `json:"usage"`
	DurationMS   float64 `json:"duration_ms"`
}

// TrainRequest asks for a fine-tuning run over raw text.
type TrainRequest struct {
	Text         string  `json:"text"`
	Epochs       int     `json:"epochs,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Rank         int     `json:"rank,omitempty"`
	Alpha        float32 `json:"alpha,omitempty"`
	SkipLayers   int     `json:"skip_layers,omitempty"`
	SavePath     string  `json:"save_path,omitempty"`
}

// TrainBatchLine is one per-batch NDJSON progress line.
type TrainBatchLine struct {
	Phase      string  `json:"phase"` // "train" or "eval"
	Batch      int     `json:"batch"`
	Batches    int     `json:"batches"`
	Loss       float64 `json:"loss"`
	BatchesPerS float64 `json:"batches_per_s"`
}

// TrainEpochLine is one per-epoch NDJSON summary line.
type TrainEpochLine struct {
	Epoch        int     `json:"epoch"`
	Epochs       int     `json:"epochs"`
	NData        int     `json:"ndata"`
	SplitIndex   int     `json:"split_index"`
	TrainLoss    float64 `json:"train_loss"`
	EvalLoss     *float64 `json:"eval_loss,omitempty"`
	LearningRate float64 `json:"learning_rate"`
	DurationS    float64 `json:"duration_s"`
}

// TrainResponse is the terminal line of a training stream.
type TrainResponse struct {
	Done      bool   `json:"done"`
	Epochs    int    `json:"epochs"`
	NData     int    `json:"ndata"`
	SavedPath string `json:"saved_path,omitempty"`
}

// LoadModelRequest loads (or replaces) the active model and context.
type LoadModelRequest struct {
	Path       string `json:"path"`
	NCtx       int    `json:"n_ctx,omitempty"`
	NThreads   int    `json:"n_threads,omitempty"`
	NGPULayers int    `json:"n_gpu_layers,omitempty"`
	// Training requests a training-capable context (smaller default window,
	// full-precision cache).
	Training bool `json:"training,omitempty"`
}

// AdapterRequest creates a fresh adapter (Rank set) or loads one (Path set).
type AdapterRequest struct {
	Path       string  `json:"path,omitempty"`
	Rank       int     `json:"rank,omitempty"`
	Alpha      float32 `json:"alpha,omitempty"`
	SkipLayers int     `json:"skip_layers,omitempty"`
	Scale      float32 `json:"scale,omitempty"`
}

// SaveAdapterRequest persists the applied adapter.
type SaveAdapterRequest struct {
	Path string `json:"path"`
}

// ModelStatus describes the loaded model for /status.
type ModelStatus struct {
	Desc     string `json:"desc"`
	Path     string `json:"path"`
	NCtx     int    `json:"n_ctx"`
	Training bool   `json:"training"`
}

// AdapterStatus describes the applied adapter for /status.
type AdapterStatus struct {
	Source     string  `json:"source,omitempty"` // file path when loaded
	Rank       int     `json:"rank,omitempty"`
	Alpha      float32 `json:"alpha,omitempty"`
	SkipLayers int     `json:"skip_layers,omitempty"`
}

// ModelInfo is one catalog entry from the configured models directory.
type ModelInfo struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// ModelsResponse is the /models body.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ErrorResponse is the uniform JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// StatusResponse is the /status body.
type StatusResponse struct {
	State   string         `json:"state"`
	Model   *ModelStatus   `json:"model,omitempty"`
	Adapter *AdapterStatus `json:"adapter,omitempty"`
	UptimeS float64        `json:"uptime_s"`
}
