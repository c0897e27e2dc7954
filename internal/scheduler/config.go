package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/dotation/internal/config"
)

const JobKitBackfill = "kit_backfill"

// Config controls which jobs run and when.
type Config struct {
	// KitBackfillSpec is a cron expression; empty disables the job.
	KitBackfillSpec string
	JobTimeout      time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		JobTimeout: 2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	c.KitBackfillSpec = strings.TrimSpace(c.KitBackfillSpec)
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		KitBackfillSpec: cfg.Scheduler.KitBackfillSpec,
		JobTimeout:      cfg.Scheduler.JobTimeout,
	}.withDefaults()
}
