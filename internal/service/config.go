package service

import (
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/engine"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second

	defaultNCtxInference = 2048
	defaultNCtxTraining  = 512
)

// Config encapsulates all tunables for Service construction.
type Config struct {
	Engine engine.Engine

	// Bulk, when set, serves generation if Engine cannot load models in
	// this build.
	Bulk BulkGenerator

	// ModelsDir, when set, is scanned for *.gguf files to build the model
	// catalog. Load requests may then name a model by catalog id.
	ModelsDir string

	// Generation defaults, overridable per request.
	MaxTokens   int
	Temperature float32
	Stop        []string

	// Adapter defaults used when a training request has to create one.
	Rank       int
	Alpha      float32
	SkipLayers int

	// Training defaults.
	Epochs       int
	LearningRate float64

	// Admission queue.
	MaxQueueDepth int
	MaxWait       time.Duration

	Logger *zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.Rank <= 0 {
		c.Rank = 4
	}
	if c.Alpha <= 0 {
		c.Alpha = float32(c.Rank)
	}
	if c.Epochs <= 0 {
		c.Epochs = 1
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 1e-4
	}
}
