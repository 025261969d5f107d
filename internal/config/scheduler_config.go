package config

import "time"

// SchedulerConfig drives the optional in-process jobs. A zero interval disables the job.
type SchedulerConfig interface {
	GetRefreshSchedule() time.Duration
	GetCleanupSchedule() time.Duration
}

type Scheduler struct {
	RefreshEvery time.Duration `env:"SCHEDULE_REFRESH" envDefault:"0s"`
	CleanupEvery time.Duration `env:"SCHEDULE_CLEANUP" envDefault:"0s"`
}

var _ SchedulerConfig = Scheduler{}

func (s Scheduler) GetRefreshSchedule() time.Duration {
	return s.RefreshEvery
}

func (s Scheduler) GetCleanupSchedule() time.Duration {
	return s.CleanupEvery
}
