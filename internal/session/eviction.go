package session

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StartEvictionSweep schedules a periodic job that evicts actors idle
// past maxIdle. It returns the cron scheduler so the caller can Stop it
// on shutdown; the job itself never touches the request path, satisfying
// spec §4.4's requirement that eviction not block live operations.
func StartEvictionSweep(host *Host, maxIdle time.Duration, schedule string, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		host.Sweep(maxIdle)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	logger.Info("session eviction sweep scheduled", "schedule", schedule, "max_idle", maxIdle)
	return c, nil
}
