package api

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartScheduler triggers a sync run on the given cron schedule using the
// configured default strategy. A tick that lands while a run is still in
// progress is skipped. The returned stop function blocks until any running
// scheduled job has finished.
func (s *Server) StartScheduler(spec string) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if !s.tryStart() {
			s.logger.Warn("scheduled sync skipped, previous run still in progress")
			return
		}
		s.logger.Info("scheduled sync starting", zap.String("strategy", s.cfg.Sync.Strategy))
		s.runSync(s.cfg.Sync.Strategy)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("sync scheduler started", zap.String("schedule", spec))
	return func() { <-c.Stop().Done() }, nil
}
