package service

import (
	"context"

	"lorad/internal/common/fsutil"
	"lorad/internal/engine"
	"lorad/internal/session"
	"lorad/internal/training"
	"lorad/pkg/types"
)

// Train runs a full fine-tuning pass over the request text. If no adapter is
// applied yet, a fresh one is created from the request (or configured)
// hyperparameters so the optimizer has trainable weights to touch. Progress
// callbacks fire per optimizer batch and per epoch.
func (s *Service) Train(ctx context.Context, req types.TrainRequest, onBatch engine.ProgressFunc, onEpoch func(training.EpochMetrics)) (types.TrainResponse, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return types.TrainResponse{}, err
	}
	defer release()

	s.mu.RLock()
	ec := s.ec
	haveAdapter := s.adapter != nil
	usingBulk := s.usingBulk
	s.mu.RUnlock()
	if usingBulk {
		return types.TrainResponse{}, &session.Error{Kind: session.KindTrainingNotInitialized, Msg: "training needs the token-level engine backend"}
	}
	if ec == nil {
		return types.TrainResponse{}, errModelNotLoaded()
	}

	if !haveAdapter {
		rank := req.Rank
		if rank <= 0 {
			rank = s.cfg.Rank
		}
		alpha := req.Alpha
		if alpha <= 0 {
			alpha = float32(rank)
		}
		skip := req.SkipLayers
		if skip <= 0 {
			skip = s.cfg.SkipLayers
		}
		if err := s.applyFresh(rank, alpha, skip); err != nil {
			return types.TrainResponse{}, err
		}
	}

	ds, err := training.NewDataset(ec, req.Text, ec.NCtx())
	if err != nil {
		return types.TrainResponse{}, err
	}

	cfg := training.Config{Epochs: req.Epochs, LearningRate: req.LearningRate}
	if cfg.Epochs <= 0 {
		cfg.Epochs = s.cfg.Epochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = s.cfg.LearningRate
	}

	tr, err := training.NewTrainer(ec, ds, cfg, s.log)
	if err != nil {
		return types.TrainResponse{}, err
	}
	if err := tr.Run(ctx, onBatch, onEpoch); err != nil {
		return types.TrainResponse{}, err
	}

	resp := types.TrainResponse{Done: true, Epochs: cfg.Epochs, NData: ds.Len()}
	if req.SavePath != "" {
		s.mu.RLock()
		ad := s.adapter
		s.mu.RUnlock()
		if err := fsutil.EnsureParentDir(req.SavePath); err != nil {
			return types.TrainResponse{}, &session.Error{Kind: session.KindAdapterSaveFailed, Msg: "create save directory", Err: err}
		}
		if err := ad.Save(req.SavePath); err != nil {
			return types.TrainResponse{}, err
		}
		resp.SavedPath = req.SavePath
	}
	return resp, nil
}

// applyFresh creates and applies a new adapter outside the admission gate,
// which the Train caller already holds.
func (s *Service) applyFresh(rank int, alpha float32, skip int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, err := s.model.NewAdapter(engine.AdapterParams{Rank: rank, Alpha: alpha, SkipLayers: skip})
	if err != nil {
		return err
	}
	if err := s.ec.SetAdapter(ad, 1.0); err != nil {
		ad.Close()
		return err
	}
	s.adapter = ad
	s.ainfo = types.AdapterStatus{Rank: rank, Alpha: alpha, SkipLayers: skip}
	s.log.Info().Int("rank", rank).Msg("adapter created for training")
	return nil
}
