// Package healthcheck samples host-wide memory/CPU and database reachability
// on a schedule, exposed as a scheduler.Job rather than an HTTP handler so
// it runs on the same cadence as the lifecycle jobs.
package healthcheck

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is the subset of tradestore.Store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Snapshot is one point-in-time health reading.
type Snapshot struct {
	Time        time.Time
	CPUPercent  float64
	RAMPercent  float64
	DBReachable bool
	DBError     string
}

// Job samples host-wide CPU/RAM and pings the trade store on each run,
// logging the result. It never fails its own Run: a DB ping failure is
// recorded in the snapshot rather than returned as an error, since a
// health check that itself needs retrying defeats the point.
type Job struct {
	db     Pinger
	log    zerolog.Logger
	latest Snapshot
}

func New(db Pinger, log zerolog.Logger) *Job {
	return &Job{db: db, log: log.With().Str("job", "health_check").Logger()}
}

func (j *Job) Name() string { return "health_check" }

func (j *Job) Run(ctx context.Context) error {
	snap := Snapshot{Time: time.Now()}

	// 100ms sample window so the job returns quickly instead of blocking a
	// full second.
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to sample cpu percent")
	} else if len(cpuPercent) > 0 {
		snap.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to sample memory")
	} else {
		snap.RAMPercent = memStat.UsedPercent
	}

	if err := j.db.Ping(ctx); err != nil {
		snap.DBReachable = false
		snap.DBError = err.Error()
		j.log.Error().Err(err).Msg("trade store unreachable")
	} else {
		snap.DBReachable = true
	}

	j.latest = snap
	j.log.Debug().
		Float64("cpu_percent", snap.CPUPercent).
		Float64("ram_percent", snap.RAMPercent).
		Bool("db_reachable", snap.DBReachable).
		Msg("health check sampled")

	return nil
}

// Latest returns the most recent snapshot, used by the /healthz endpoint.
func (j *Job) Latest() Snapshot {
	return j.latest
}
