package service

import (
	"context"
	"time"
)

// begin reserves a queue slot and then the single in-flight slot. The
// returned release func must be deferred by the caller.
func (s *Service) begin(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context.
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	// Reserve a queue slot with timeout.
	timer := time.NewTimer(s.cfg.MaxWait)
	defer timer.Stop()
	select {
	case s.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, errBusy()
	}

	// Wait to acquire the single in-flight slot.
	acquired := false
	defer func() {
		if !acquired {
			<-s.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(s.cfg.MaxWait)
	defer timer2.Stop()
	select {
	case s.genCh <- struct{}{}:
		acquired = true
		return func() { <-s.genCh; <-s.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, errBusy()
	}
}

// acquireExclusive takes the in-flight slot for lifecycle mutations (model
// load, adapter changes, shutdown) that must not overlap generation.
func (s *Service) acquireExclusive() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MaxWait)
	defer cancel()
	return s.begin(ctx)
}
