package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/config"
	"lorad/internal/engine/llamacpp"
	"lorad/internal/engine/yzmaengine"
	"lorad/internal/httpapi"
	"lorad/internal/service"
	"lorad/pkg/types"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated value, trimming whitespace and dropping
// empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	addr := flag.String("addr", envOr("LORAD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	cfgPath := flag.String("config", envOr("LORAD_CONFIG", ""), "Optional config file (.yaml/.json/.toml)")
	modelPath := flag.String("model", envOr("LORAD_MODEL", ""), "Model file or catalog id to load at startup")
	modelsDir := flag.String("models-dir", envOr("LORAD_MODELS_DIR", ""), "Directory scanned for *.gguf model files")
	trainingCtx := flag.Bool("training", false, "Create a training-capable context for the startup model")
	logLevel := flag.String("log-level", envOr("LORAD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()

	var cfg config.Config
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *cfgPath).Msg("load config")
		}
	}
	// Flags and env win over the config file.
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if cfg.Addr == "" || setFlags["addr"] || os.Getenv("LORAD_ADDR") != "" {
		cfg.Addr = *addr
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *trainingCtx {
		cfg.Training = true
	}

	if origins := splitCSV(os.Getenv("LORAD_CORS_ORIGINS")); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins,
			splitCSV(envOr("LORAD_CORS_METHODS", "GET,POST,DELETE")),
			splitCSV(envOr("LORAD_CORS_HEADERS", "Content-Type,X-Log-Level")))
	}

	svc := service.New(service.Config{
		Engine:        yzmaengine.New(),
		Bulk:          llamacpp.New(),
		ModelsDir:     cfg.ModelsDir,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		Stop:          cfg.Stop,
		Rank:          cfg.Rank,
		Alpha:         cfg.Alpha,
		SkipLayers:    cfg.SkipLayers,
		Epochs:        cfg.Epochs,
		LearningRate:  cfg.LearningRate,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSec) * time.Second,
		Logger:        &log,
	})

	if strings.TrimSpace(cfg.ModelPath) != "" {
		err := svc.LoadModel(types.LoadModelRequest{
			Path:       cfg.ModelPath,
			NCtx:       cfg.NCtx,
			NThreads:   cfg.NThreads,
			NGPULayers: cfg.NGPULayers,
			Training:   cfg.Training,
		})
		if err != nil {
			log.Fatal().Err(err).Str("model", cfg.ModelPath).Msg("startup model load")
		}
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(log)

	mux := httpapi.NewMux(svc)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("lorad listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := svc.Close(); err != nil {
		log.Warn().Err(err).Msg("service close error")
	}
}
