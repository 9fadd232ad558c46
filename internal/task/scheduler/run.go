package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "cartellino/pkg/logx"
)

func (s *Service) run(ctx context.Context, d *scheduleDef) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	log := s.log.With(logx.String("schedule", d.name))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in scheduled job", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		took := time.Since(start)
		s.record(d, start, took, err)
		if err != nil {
			log.Warn("scheduled job failed", logx.Duration("took", took), logx.Err(err))
			return
		}
		log.Debug("scheduled job done", logx.Duration("took", took))
	}()
	return d.job(ctx)
}

func (s *Service) record(d *scheduleDef, start time.Time, took time.Duration, err error) {
	it := HistoryItem{Name: d.name, Started: start, Took: took}
	if d.stats != nil {
		d.stats.mu.Lock()
		d.stats.runs++
		if err != nil {
			d.stats.failures++
			d.stats.lastErr = err.Error()
		}
		d.stats.mu.Unlock()
	}
	if err != nil {
		it.Err = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if over := len(s.history) - historySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}
