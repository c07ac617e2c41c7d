package services

import (
	"context"
	"time"

	"trainhub_go/models"
	"trainhub_go/observability"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	JobCompleteSchedules = "complete-finished-schedules"
	JobArchiveActivity   = "archive-activity"
)

// Job is one unit of background work.
type Job func(ctx context.Context) error

// JobRunner runs named jobs on cron specs and records their outcome in
// prometheus. Runs of the same job never overlap.
type JobRunner struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

func NewJobRunner() *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &JobRunner{cron: c, ctx: ctx, stop: cancel}
}

// Add registers fn under spec, which accepts standard five-field cron
// expressions and descriptors such as "@every 15m".
func (r *JobRunner) Add(name, spec string, fn Job) error {
	_, err := r.cron.AddFunc(spec, func() { r.run(name, fn) })
	if err != nil {
		return errors.Wrapf(err, "schedule job %s", name)
	}
	logrus.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("Background job scheduled")
	return nil
}

// RunNow executes a registered job body synchronously, as the scheduler would.
func (r *JobRunner) RunNow(name string, fn Job) error {
	return r.run(name, fn)
}

func (r *JobRunner) run(name string, fn Job) error {
	start := time.Now()
	err := fn(r.ctx)
	d := time.Since(start)
	observability.ObserveJob(name, err, d)

	entry := logrus.WithFields(logrus.Fields{"job": name, "duration": d.String()})
	if err != nil {
		entry.WithError(err).Error("Background job failed")
		observability.CaptureErr(err, map[string]string{"job": name})
	} else {
		entry.Debug("Background job finished")
	}
	return err
}

func (r *JobRunner) Start() { r.cron.Start() }

// Stop cancels running jobs and waits for them, bounded by ctx.
func (r *JobRunner) Stop(ctx context.Context) {
	r.stop()
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Timed out waiting for background jobs to stop")
	}
}

// CompletionJob moves schedules whose end_time has passed to completed
// and completes their active enrollments.
type CompletionJob struct {
	db    *gorm.DB
	locks *KeyedLocker
	now   func() time.Time
}

func NewCompletionJob(db *gorm.DB, locks *KeyedLocker) *CompletionJob {
	if locks == nil {
		locks = NewKeyedLocker()
	}
	return &CompletionJob{db: db, locks: locks, now: time.Now}
}

// Run returns the number of schedules it completed.
func (j *CompletionJob) Run(ctx context.Context) (int, error) {
	var ids []uint
	err := j.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("status = ? AND end_time < ?", models.ScheduleScheduled, j.now().UTC()).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, errors.Wrap(err, "find finished schedules")
	}

	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		ok, err := j.completeOne(ctx, id)
		if err != nil {
			return done, err
		}
		if ok {
			done++
		}
	}
	if done > 0 {
		logrus.WithField("count", done).Info("Completed finished schedules")
	}
	return done, nil
}

func (j *CompletionJob) completeOne(ctx context.Context, id uint) (bool, error) {
	unlock := j.locks.Lock(id)
	defer unlock()

	completed := false
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := lockSchedule(tx, id)
		if err != nil {
			return err
		}
		if schedule.Status != models.ScheduleScheduled {
			return nil
		}
		if err := tx.Model(schedule).Update("status", models.ScheduleCompleted).Error; err != nil {
			return errors.Wrapf(err, "complete schedule %d", id)
		}

		active := tx.Model(&models.Enrollment{}).
			Where("schedule_id = ? AND status = ?", id, models.EnrollmentEnrolled).
			Session(&gorm.Session{})
		// completed_at may not precede enrolled_at, so late enrollments
		// complete at their own enrollment time.
		err = active.Where("enrolled_at <= ?", schedule.EndTime).
			Updates(map[string]interface{}{"status": models.EnrollmentCompleted, "completed_at": schedule.EndTime}).Error
		if err != nil {
			return errors.Wrapf(err, "complete enrollments of schedule %d", id)
		}
		err = active.Where("enrolled_at > ?", schedule.EndTime).
			Updates(map[string]interface{}{"status": models.EnrollmentCompleted, "completed_at": gorm.Expr("enrolled_at")}).Error
		if err != nil {
			return errors.Wrapf(err, "complete late enrollments of schedule %d", id)
		}
		completed = true
		return nil
	})
	return completed, err
}
