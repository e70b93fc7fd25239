package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lorad/internal/engine"
	"lorad/internal/session"
	"lorad/internal/training"
	"lorad/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ready() bool
	Status() types.StatusResponse
	Models() ([]types.ModelInfo, error)
	LoadModel(req types.LoadModelRequest) error
	UnloadModel() error
	ApplyAdapter(req types.AdapterRequest) error
	SaveAdapter(path string) error
	RemoveAdapter() error
	Generate(ctx context.Context, req types.GenerateRequest) (session.Result, error)
	GenerateStream(ctx context.Context, req types.GenerateRequest, sink session.Sink) (session.Result, error)
	Train(ctx context.Context, req types.TrainRequest, onBatch engine.ProgressFunc, onEpoch func(training.EpochMetrics)) (types.TrainResponse, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.Models()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, types.ModelsResponse{Models: models})
	})

	r.Post("/generate", handleGenerate(svc))
	r.Post("/train", handleTrain(svc))

	r.Post("/model/load", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadModelRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "path is required")
			return
		}
		if err := svc.LoadModel(req); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, svc.Status())
	})

	r.Delete("/model", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.UnloadModel(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, svc.Status())
	})

	r.Post("/adapter", func(w http.ResponseWriter, r *http.Request) {
		var req types.AdapterRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.ApplyAdapter(req); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, svc.Status())
	})

	r.Post("/adapter/save", func(w http.ResponseWriter, r *http.Request) {
		var req types.SaveAdapterRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "path is required")
			return
		}
		if err := svc.SaveAdapter(req.Path); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, svc.Status())
	})

	r.Delete("/adapter", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RemoveAdapter(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// ndjsonSink forwards tokens to the response as NDJSON chunk lines. Terminal
// handling stays with the caller, which has the final result in hand.
type ndjsonSink struct {
	lw    *lineWriter
	wrote bool
}

func (s *ndjsonSink) OnLog(string) {}
func (s *ndjsonSink) OnToken(chunk string) {
	s.wrote = true
	s.lw.WriteLine(types.GenerateChunk{Content: chunk})
}
func (s *ndjsonSink) OnComplete()    {}
func (s *ndjsonSink) OnError(string) {}

func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		lvl := requestLogLevel(r)
		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		if !req.Stream {
			res, err := svc.Generate(ctx, req)
			if err != nil {
				if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
					return
				}
				writeError(w, err)
				if lvl >= LevelInfo {
					logEnd(r, "generate end", statusFor(err), err)
				}
				return
			}
			observeGeneration(res.TokensGenerated, res.Duration)
			writeJSON(w, toGenerateResponse(res))
			if lvl >= LevelInfo {
				logEnd(r, "generate end", http.StatusOK, nil)
			}
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		lw := newLineWriter(w, lvl)
		sink := &ndjsonSink{lw: lw}
		res, err := svc.GenerateStream(ctx, req, sink)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if !sink.wrote {
				// Nothing streamed yet, a plain error response is still possible.
				writeError(w, err)
			} else {
				lw.WriteLine(types.ErrorResponse{Error: err.Error(), Code: statusFor(err)})
			}
			if lvl >= LevelInfo {
				logEnd(r, "generate end", statusFor(err), err)
			}
			return
		}
		observeGeneration(res.TokensGenerated, res.Duration)
		lw.WriteLine(toGenerateResponse(res))
		if lvl >= LevelInfo {
			logEnd(r, "generate end", http.StatusOK, nil)
		}
	}
}

func handleTrain(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.TrainRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		lvl := requestLogLevel(r)
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		w.Header().Set("Content-Type", "application/x-ndjson")
		lw := newLineWriter(w, lvl)
		wrote := false
		onBatch := func(p engine.BatchProgress) {
			wrote = true
			line := types.TrainBatchLine{
				Phase:   phaseName(p.Train),
				Batch:   p.Batch,
				Batches: p.Batches,
				Loss:    p.Loss,
			}
			if p.Elapsed > 0 {
				line.BatchesPerS = float64(p.Batch) / p.Elapsed.Seconds()
			}
			lw.WriteLine(line)
		}
		onEpoch := func(m training.EpochMetrics) {
			wrote = true
			observeEpoch(m.TrainLoss)
			line := types.TrainEpochLine{
				Epoch:        m.Epoch,
				Epochs:       m.Epochs,
				NData:        m.NData,
				SplitIndex:   m.SplitIndex,
				TrainLoss:    m.TrainLoss,
				LearningRate: m.LearningRate,
				DurationS:    m.Duration.Seconds(),
			}
			if m.HasEval {
				ev := m.EvalLoss
				line.EvalLoss = &ev
			}
			lw.WriteLine(line)
		}
		resp, err := svc.Train(ctx, req, onBatch, onEpoch)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if !wrote {
				writeError(w, err)
			} else {
				lw.WriteLine(types.ErrorResponse{Error: err.Error(), Code: statusFor(err)})
			}
			if lvl >= LevelInfo {
				logEnd(r, "train end", statusFor(err), err)
			}
			return
		}
		lw.WriteLine(resp)
		if lvl >= LevelInfo {
			logEnd(r, "train end", http.StatusOK, nil)
		}
	}
}

func phaseName(train bool) string {
	if train {
		return "train"
	}
	return "eval"
}

func toGenerateResponse(res session.Result) types.GenerateResponse {
	return types.GenerateResponse{
		ID:           res.ID,
		Done:         true,
		Content:      res.Content,
		FinishReason: string(res.FinishReason),
		Usage: types.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.TokensGenerated,
			TotalTokens:      res.PromptTokens + res.TokensGenerated,
		},
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
	}
}

// decodeJSON enforces content type and body size, then decodes into dst.
// It writes the error response itself and reports success to the caller.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
