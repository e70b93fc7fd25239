package service

import (
	"context"

	"lorad/internal/session"
	"lorad/pkg/types"
)

// params merges per-request overrides over the configured defaults. A nil
// request stop list inherits the configured list; an empty non-nil list
// disables stop strings for the call.
func (s *Service) params(req types.GenerateRequest) session.Params {
	p := session.Params{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Seed:        req.Seed,
		Stop:        req.Stop,
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = s.cfg.MaxTokens
	}
	if req.Temperature == 0 && s.cfg.Temperature != 0 {
		p.Temperature = s.cfg.Temperature
	}
	if p.Stop == nil {
		p.Stop = s.cfg.Stop
	}
	return p
}

// Generate runs a bulk generation call and returns the complete result.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest) (session.Result, error) {
	release, err := s.begin(ctx)
	if err != nil {
		return session.Result{}, err
	}
	defer release()

	s.mu.RLock()
	usingBulk := s.usingBulk
	s.mu.RUnlock()
	if usingBulk {
		return s.bulk.Generate(ctx, req.Prompt, s.params(req), nil)
	}

	ec, err := s.context()
	if err != nil {
		return session.Result{}, err
	}
	return session.Generate(ctx, ec, req.Prompt, s.params(req), s.log)
}

// GenerateStream runs a generation call, delivering chunks through sink as
// they become available. Terminal delivery is exactly one OnComplete or
// OnError call.
func (s *Service) GenerateStream(ctx context.Context, req types.GenerateRequest, sink session.Sink) (session.Result, error) {
	release, err := s.begin(ctx)
	if err != nil {
		sink.OnError(err.Error())
		return session.Result{}, err
	}
	defer release()

	s.mu.RLock()
	usingBulk := s.usingBulk
	s.mu.RUnlock()
	if usingBulk {
		res, err := s.bulk.Generate(ctx, req.Prompt, s.params(req), sink.OnToken)
		if err != nil {
			sink.OnError(err.Error())
			return session.Result{}, err
		}
		sink.OnComplete()
		return res, nil
	}

	ec, err := s.context()
	if err != nil {
		sink.OnError(err.Error())
		return session.Result{}, err
	}
	return session.GenerateStream(ctx, ec, req.Prompt, s.params(req), sink, s.log)
}
