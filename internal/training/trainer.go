package training

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/engine"
	"lorad/internal/session"
)

// Schedule maps an epoch index to a learning rate. The trainer only supplies
// the index and total; the curve itself is caller policy.
type Schedule func(epoch, epochs int) float64

// LinearDecay decays lr0 to lrMin over the epoch range.
func LinearDecay(lr0, lrMin float64) Schedule {
	return func(epoch, epochs int) float64 {
		if epochs <= 1 {
			return lr0
		}
		f := float64(epoch) / float64(epochs-1)
		return lr0 + (lrMin-lr0)*f
	}
}

// Config tunes a training run.
type Config struct {
	Epochs       int
	LearningRate float64
	// Schedule overrides the default LinearDecay(LearningRate,
	// LearningRate/10).
	Schedule Schedule
}

// EpochMetrics is the per-epoch summary reported after each epoch.
type EpochMetrics struct {
	Epoch        int
	Epochs       int
	NData        int
	SplitIndex   int
	TrainLoss    float64
	EvalLoss     float64
	HasEval      bool
	LearningRate float64
	Duration     time.Duration
}

// Trainer drives one optimizer epoch at a time over a windowed dataset. The
// adapter-only parameter filter is requested at optimizer init, so base model
// weights stay frozen throughout.
type Trainer struct {
	ec    engine.Context
	ds    *Dataset
	cfg   Config
	sched Schedule
	log   zerolog.Logger
	ready bool
}

// NewTrainer initializes the optimizer for the given context and dataset.
func NewTrainer(ec engine.Context, ds *Dataset, cfg Config, log zerolog.Logger) (*Trainer, error) {
	if ec == nil || ds == nil {
		return nil, &session.Error{
			Kind: session.KindTrainingNotInitialized,
			Msg:  "training requires a context and a dataset",
		}
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	sched := cfg.Schedule
	if sched == nil {
		sched = LinearDecay(cfg.LearningRate, cfg.LearningRate*0.1)
	}
	if err := ec.OptimizerInit(engine.OptimizerParams{AdapterOnly: true}); err != nil {
		return nil, &session.Error{
			Kind: session.KindTrainingNotInitialized,
			Msg:  "optimizer init failed",
			Err:  err,
		}
	}
	return &Trainer{ec: ec, ds: ds, cfg: cfg, sched: sched, log: log, ready: true}, nil
}

// RunEpoch runs exactly one epoch: an optimizer pass over the train slice
// followed by a non-updating evaluation pass when the split leaves eval
// examples. Failure is fatal for the epoch and surfaced with whatever batch
// metrics were already reported; it is never retried here.
func (t *Trainer) RunEpoch(ctx context.Context, epoch int, onBatch engine.ProgressFunc) (EpochMetrics, error) {
	m := EpochMetrics{Epoch: epoch, Epochs: t.cfg.Epochs}
	if !t.ready {
		return m, &session.Error{
			Kind: session.KindTrainingNotInitialized,
			Msg:  "no dataset or optimizer set up",
		}
	}
	if err := ctx.Err(); err != nil {
		return m, err
	}

	m.NData = t.ds.Len()
	m.SplitIndex = SplitIndex(m.NData)
	m.HasEval = m.SplitIndex < m.NData
	m.LearningRate = t.sched(epoch, t.cfg.Epochs)

	t.log.Info().
		Int("epoch", epoch+1).
		Int("ndata", m.NData).
		Int("train", m.SplitIndex).
		Int("eval", m.NData-m.SplitIndex).
		Float64("lr", m.LearningRate).
		Msg("epoch start")

	start := time.Now()
	res, err := t.ec.OptimizerEpoch(engine.EpochParams{
		SplitIndex:   m.SplitIndex,
		LearningRate: m.LearningRate,
	}, t.ds, onBatch)
	m.Duration = time.Since(start)
	if err != nil {
		t.log.Error().Err(err).Int("epoch", epoch+1).Msg("epoch failed")
		return m, err
	}

	m.TrainLoss = res.TrainLoss
	if m.HasEval {
		m.EvalLoss = res.EvalLoss
	}
	t.log.Info().
		Int("epoch", epoch+1).
		Float64("train_loss", m.TrainLoss).
		Float64("eval_loss", m.EvalLoss).
		Dur("dur", m.Duration).
		Msg("epoch complete")
	return m, nil
}

// Run executes the configured number of epochs, reporting each epoch's
// metrics through onEpoch. Cancellation is honored at epoch boundaries.
func (t *Trainer) Run(ctx context.Context, onBatch engine.ProgressFunc, onEpoch func(EpochMetrics)) error {
	for e := 0; e < t.cfg.Epochs; e++ {
		m, err := t.RunEpoch(ctx, e, onBatch)
		if err != nil {
			return err
		}
		if onEpoch != nil {
			onEpoch(m)
		}
	}
	return nil
}
