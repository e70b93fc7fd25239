package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/engine"
	"lorad/pkg/types"
)

// Service owns the engine handle, the loaded model and context, and the
// applied adapter. All mutating work funnels through the admission gate so
// the single engine context is never driven concurrently.
type Service struct {
	mu  sync.RWMutex
	cfg Config
	log zerolog.Logger

	eng engine.Engine

	model     engine.Model
	ec        engine.Context
	modelPath string
	training  bool

	adapter engine.Adapter
	ainfo   types.AdapterStatus

	// Coarse fallback backend, active when the token-level engine could
	// not load the model in this build.
	bulk      BulkGenerator
	usingBulk bool
	bulkNCtx  int

	// Admission: bounded FIFO plus a single in-flight slot.
	queueCh chan struct{}
	genCh   chan struct{}

	startTime time.Time
	closed    bool
}

// New constructs a Service. The engine backend is injected so tests can run
// against a scripted implementation.
func New(cfg Config) *Service {
	cfg.applyDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Service{
		cfg:       cfg,
		log:       log,
		eng:       cfg.Engine,
		bulk:      cfg.Bulk,
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		genCh:     make(chan struct{}, 1),
		startTime: time.Now(),
	}
}

// Ready reports whether a model is loaded and generation can be served.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && (s.ec != nil || s.usingBulk)
}

// Status builds the /status response.
func (s *Service) Status() types.StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := types.StatusResponse{
		State:   "idle",
		UptimeS: time.Since(s.startTime).Seconds(),
	}
	switch {
	case s.ec != nil:
		resp.State = "ready"
		resp.Model = &types.ModelStatus{
			Desc:     s.model.Desc(),
			Path:     s.modelPath,
			NCtx:     s.ec.NCtx(),
			Training: s.training,
		}
	case s.usingBulk:
		resp.State = "ready"
		resp.Model = &types.ModelStatus{
			Desc: s.bulk.Desc(),
			Path: s.modelPath,
			NCtx: s.bulkNCtx,
		}
	}
	if s.adapter != nil {
		a := s.ainfo
		resp.Adapter = &a
	}
	return resp
}

// Close releases the adapter, context, and model in dependency order. It
// waits for in-flight work to drain before freeing anything.
func (s *Service) Close() error {
	release, err := s.acquireExclusive()
	if err == nil {
		defer release()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.freeLocked()
	return nil
}

// freeLocked drops adapter, context, and model. Callers hold s.mu.
func (s *Service) freeLocked() {
	if s.adapter != nil {
		s.adapter.Close()
		s.adapter = nil
		s.ainfo = types.AdapterStatus{}
	}
	if s.ec != nil {
		s.ec.Close()
		s.ec = nil
	}
	if s.model != nil {
		s.model.Close()
		s.model = nil
	}
	if s.usingBulk {
		s.bulk.Close()
		s.usingBulk = false
		s.bulkNCtx = 0
	}
	s.modelPath = ""
}

// context returns the live engine context or a model-not-loaded error.
func (s *Service) context() (engine.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ec == nil {
		return nil, errModelNotLoaded()
	}
	return s.ec, nil
}
