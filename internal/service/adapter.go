package service

import (
	"lorad/internal/common/fsutil"
	"lorad/internal/engine"
	"lorad/internal/session"
	"lorad/pkg/types"
)

// ApplyAdapter creates a fresh adapter (Rank set) or loads one from disk
// (Path set) and applies it to the context, replacing any prior adapter.
func (s *Service) ApplyAdapter(req types.AdapterRequest) error {
	release, err := s.acquireExclusive()
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usingBulk {
		return &session.Error{Kind: session.KindAdapterApplyFailed, Msg: "adapters need the token-level engine backend"}
	}
	if s.ec == nil {
		return errModelNotLoaded()
	}

	var (
		ad   engine.Adapter
		info types.AdapterStatus
	)
	switch {
	case req.Path != "":
		ad, err = s.model.LoadAdapter(req.Path)
		if err != nil {
			return err
		}
		info = types.AdapterStatus{Source: req.Path}
	case req.Rank > 0:
		alpha := req.Alpha
		if alpha <= 0 {
			alpha = float32(req.Rank)
		}
		ad, err = s.model.NewAdapter(engine.AdapterParams{
			Rank:       req.Rank,
			Alpha:      alpha,
			SkipLayers: req.SkipLayers,
		})
		if err != nil {
			return err
		}
		info = types.AdapterStatus{Rank: req.Rank, Alpha: alpha, SkipLayers: req.SkipLayers}
	default:
		return &session.Error{Kind: session.KindAdapterCreateFailed, Msg: "adapter request needs a path or a rank"}
	}

	scale := req.Scale
	if scale <= 0 {
		scale = 1.0
	}
	if err := s.ec.SetAdapter(ad, scale); err != nil {
		ad.Close()
		return err
	}
	if s.adapter != nil {
		s.adapter.Close()
	}
	s.adapter = ad
	s.ainfo = info
	s.log.Info().Str("source", info.Source).Int("rank", info.Rank).Msg("adapter applied")
	return nil
}

// SaveAdapter persists the applied adapter to disk.
func (s *Service) SaveAdapter(path string) error {
	release, err := s.acquireExclusive()
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	ad := s.adapter
	s.mu.RUnlock()
	if ad == nil {
		return &session.Error{Kind: session.KindAdapterSaveFailed, Msg: "no adapter applied"}
	}
	if err := fsutil.EnsureParentDir(path); err != nil {
		return &session.Error{Kind: session.KindAdapterSaveFailed, Msg: "create save directory", Err: err}
	}
	if err := ad.Save(path); err != nil {
		return err
	}
	s.log.Info().Str("path", path).Msg("adapter saved")
	return nil
}

// RemoveAdapter detaches and frees the applied adapter. Removing when none
// is applied is a no-op.
func (s *Service) RemoveAdapter() error {
	release, err := s.acquireExclusive()
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return nil
	}
	if s.ec != nil {
		s.ec.RemoveAdapter()
	}
	s.adapter.Close()
	s.adapter = nil
	s.ainfo = types.AdapterStatus{}
	s.log.Info().Msg("adapter removed")
	return nil
}
