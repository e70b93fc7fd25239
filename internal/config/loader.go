package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// ModelsDir is scanned for *.gguf files to serve the model catalog.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	// Model load applied at startup when ModelPath is set.
	ModelPath  string `json:"model_path" yaml:"model_path" toml:"model_path"`
	NCtx       int    `json:"n_ctx" yaml:"n_ctx" toml:"n_ctx"`
	NThreads   int    `json:"n_threads" yaml:"n_threads" toml:"n_threads"`
	NGPULayers int    `json:"n_gpu_layers" yaml:"n_gpu_layers" toml:"n_gpu_layers"`
	Training   bool   `json:"training" yaml:"training" toml:"training"`

	// Generation defaults.
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature float32  `json:"temperature" yaml:"temperature" toml:"temperature"`
	Stop        []string `json:"stop" yaml:"stop" toml:"stop"`

	// Adapter defaults.
	Rank       int     `json:"rank" yaml:"rank" toml:"rank"`
	Alpha      float32 `json:"alpha" yaml:"alpha" toml:"alpha"`
	SkipLayers int     `json:"skip_layers" yaml:"skip_layers" toml:"skip_layers"`

	// Training defaults.
	Epochs       int     `json:"epochs" yaml:"epochs" toml:"epochs"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" toml:"learning_rate"`

	// Admission queue.
	MaxQueueDepth int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSec    int `json:"max_wait_sec" yaml:"max_wait_sec" toml:"max_wait_sec"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
