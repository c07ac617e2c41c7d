package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusCritical = "critical"

	checkUp       = "up"
	checkDown     = "down"
	checkDisabled = "disabled"

	defaultServiceName = "TrainHub API"
	healthTimeout      = 1500 * time.Millisecond
)

// HealthInfo is the static part of every report.
type HealthInfo struct {
	Service     string      `json:"service"`
	Version     string      `json:"version"`
	Environment string      `json:"environment"`
	Flags       HealthFlags `json:"flags"`
}

type HealthFlags struct {
	SkipMigrate bool `json:"skip_migrate"`
	JobsEnabled bool `json:"jobs_enabled"`
	S3Enabled   bool `json:"s3_enabled"`
}

// Check is the outcome of pinging one backing service.
type Check struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type PoolStats struct {
	Open    int   `json:"open"`
	InUse   int   `json:"in_use"`
	Idle    int   `json:"idle"`
	Waits   int64 `json:"waits"`
	MaxOpen int   `json:"max_open"`
}

type HealthReport struct {
	HealthInfo
	Status string           `json:"status"`
	Time   time.Time        `json:"time"`
	Uptime string           `json:"uptime"`
	Checks map[string]Check `json:"checks"`
	Pool   *PoolStats       `json:"pool,omitempty"`
}

// HTTPStatus is 503 only when the database is unreachable.
func (r HealthReport) HTTPStatus() int {
	if r.Status == statusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// healthCheck pings one dependency. failure is the overall status it
// causes when down.
type healthCheck struct {
	name    string
	failure string
	ping    func(context.Context) error
}

type HealthService struct {
	db      *gorm.DB
	info    HealthInfo
	checks  []healthCheck
	started time.Time
}

// NewHealthService builds the checks for db and rdb. A nil redis client
// shows up as disabled and never degrades the report.
func NewHealthService(db *gorm.DB, rdb *redis.Client, info HealthInfo) *HealthService {
	if strings.TrimSpace(info.Service) == "" {
		info.Service = defaultServiceName
	}
	s := &HealthService{db: db, info: info, started: time.Now()}

	s.checks = append(s.checks, healthCheck{name: "database", failure: statusCritical, ping: s.pingDatabase})
	if rdb != nil {
		s.checks = append(s.checks, healthCheck{name: "redis", failure: statusDegraded, ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return s
}

func (s *HealthService) pingDatabase(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection not initialised")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Report pings every dependency concurrently.
func (s *HealthService) Report(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	report := HealthReport{
		HealthInfo: s.info,
		Status:     statusOK,
		Time:       time.Now().UTC(),
		Uptime:     humanizeDuration(time.Since(s.started)),
		Checks:     map[string]Check{"redis": {Status: checkDisabled}},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, hc := range s.checks {
		hc := hc
		g.Go(func() error {
			start := time.Now()
			err := hc.ping(gctx)
			check := Check{Status: checkUp, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				check.Status, check.Error = checkDown, err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report.Checks[hc.name] = check
			if err != nil {
				report.Status = combineStatus(report.Status, hc.failure)
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Checks["database"].Status == checkUp {
		if sqlDB, err := s.db.DB(); err == nil {
			st := sqlDB.Stats()
			report.Pool = &PoolStats{
				Open: st.OpenConnections, InUse: st.InUse, Idle: st.Idle,
				Waits: st.WaitCount, MaxOpen: st.MaxOpenConnections,
			}
		}
	}
	return report
}

var statusRank = []string{statusOK, statusDegraded, statusCritical}

func combineStatus(current, candidate string) string {
	rank := func(s string) int {
		for i, v := range statusRank {
			if v == s {
				return i
			}
		}
		return -1
	}
	if rank(candidate) > rank(current) {
		return candidate
	}
	if rank(current) < 0 {
		return statusOK
	}
	return current
}

// humanizeDuration renders d as "1d 2h 3m 4s", dropping zero units.
func humanizeDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	units := []struct {
		size   time.Duration
		suffix string
	}{{24 * time.Hour, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"}}

	var parts []string
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
