package service

import (
	"runtime"

	"lorad/internal/engine"
	"lorad/internal/registry"
	"lorad/internal/session"
	"lorad/pkg/types"
)

// LoadModel loads a model file and creates its context, replacing any
// previously loaded model. The prior adapter, context, and model are freed
// first so engine memory is never held twice.
func (s *Service) LoadModel(req types.LoadModelRequest) error {
	release, err := s.acquireExclusive()
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errModelNotLoaded()
	}

	nThreads := req.NThreads
	if nThreads <= 0 {
		nThreads = DefaultThreads()
	}
	nCtx := req.NCtx
	if nCtx <= 0 {
		if req.Training {
			nCtx = defaultNCtxTraining
		} else {
			nCtx = defaultNCtxInference
		}
	}

	path, err := registry.Resolve(s.cfg.ModelsDir, req.Path)
	if err != nil {
		return &session.Error{Kind: session.KindModelLoadFailed, Msg: "resolve model path", Err: err}
	}

	s.freeLocked()

	mdl, err := s.eng.LoadModel(path, engine.ModelParams{
		NThreads:   nThreads,
		NGPULayers: req.NGPULayers,
	})
	if err != nil {
		// In builds without the token-level engine, fall back to the
		// coarse backend for generation-only service.
		if s.bulk != nil && session.IsNotReady(err) && !req.Training {
			if berr := s.bulk.Load(path, nCtx, nThreads); berr == nil {
				s.usingBulk = true
				s.bulkNCtx = nCtx
				s.modelPath = path
				s.log.Info().
					Str("model", path).
					Int("n_ctx", nCtx).
					Msg("model loaded on bulk backend")
				return nil
			}
		}
		return err
	}
	ec, err := mdl.NewContext(engine.ContextParams{
		NCtx:     nCtx,
		NBatch:   nCtx,
		Training: req.Training,
	})
	if err != nil {
		mdl.Close()
		return err
	}

	s.model = mdl
	s.ec = ec
	s.modelPath = path
	s.training = req.Training
	s.log.Info().
		Str("model", path).
		Int("n_ctx", nCtx).
		Int("n_threads", nThreads).
		Bool("training", req.Training).
		Msg("model loaded")
	return nil
}

// UnloadModel drops the active model, context, and adapter.
func (s *Service) UnloadModel() error {
	release, err := s.acquireExclusive()
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ec == nil && !s.usingBulk {
		return errModelNotLoaded()
	}
	s.freeLocked()
	s.log.Info().Msg("model unloaded")
	return nil
}

// Models scans the configured models directory. Without one the catalog is
// empty, never an error.
func (s *Service) Models() ([]types.ModelInfo, error) {
	if s.cfg.ModelsDir == "" {
		return nil, nil
	}
	return registry.LoadDir(s.cfg.ModelsDir)
}

// DefaultThreads leaves two cores for the rest of the system, with a floor
// of two worker threads.
func DefaultThreads() int {
	n := runtime.NumCPU() - 2
	if n < 2 {
		n = 2
	}
	return n
}
