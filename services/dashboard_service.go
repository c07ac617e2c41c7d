package services

import (
	"context"
	"encoding/json"
	"time"

	"trainhub_go/models"
	"trainhub_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	dashboardStatsKey = "dashboard:stats"
	dashboardStatsTTL = 30 * time.Second
)

type DashboardStats struct {
	TotalCourses      int64           `json:"total_courses"`
	TotalStudents     int64           `json:"total_students"`
	TotalInstructors  int64           `json:"total_instructors"`
	TotalTrainings    int64           `json:"total_trainings"`
	UpcomingTrainings int64           `json:"upcoming_trainings"`
	ActiveEnrollments int64           `json:"active_enrollments"`
	TopCourses        []models.Course `json:"top_courses"`
}

type DashboardService struct {
	db       *gorm.DB
	redis    *redis.Client
	activity *ActivityService
	now      func() time.Time
}

// NewDashboardService wires the dashboard. rdb may be nil, which turns
// the stats cache off.
func NewDashboardService(db *gorm.DB, rdb *redis.Client, activity *ActivityService) *DashboardService {
	return &DashboardService{db: db, redis: rdb, activity: activity, now: time.Now}
}

// Stats returns the headline counters, served from redis when a fresh
// copy is cached there.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	if cached := s.cachedStats(ctx); cached != nil {
		return cached, nil
	}

	stats := &DashboardStats{}
	now := s.now().UTC()
	db := s.db.WithContext(ctx)
	g, _ := errgroup.WithContext(ctx)

	count := func(dst *int64, model interface{}, where ...interface{}) {
		g.Go(func() error {
			q := db.Model(model)
			if len(where) > 0 {
				q = q.Where(where[0], where[1:]...)
			}
			return q.Count(dst).Error
		})
	}
	count(&stats.TotalCourses, &models.Course{})
	count(&stats.TotalStudents, &models.Student{})
	count(&stats.TotalInstructors, &models.Instructor{})
	count(&stats.TotalTrainings, &models.Schedule{})
	count(&stats.UpcomingTrainings, &models.Schedule{}, "start_time > ?", now)
	count(&stats.ActiveEnrollments, &models.Enrollment{}, "status = ?", models.EnrollmentEnrolled)
	g.Go(func() error {
		return db.Order("created_at DESC, id DESC").Limit(3).Find(&stats.TopCourses).Error
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "load dashboard stats")
	}
	if stats.TopCourses == nil {
		stats.TopCourses = []models.Course{}
	}
	s.cacheStats(ctx, stats)
	return stats, nil
}

// Activity is the recent activity feed shown on the dashboard.
func (s *DashboardService) Activity(ctx context.Context) ([]utils.ActivityItem, error) {
	return s.activity.Recent(ctx, 10)
}

// InvalidateStats drops the cached counters after a mutation.
func (s *DashboardService) InvalidateStats(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, dashboardStatsKey).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate dashboard stats cache")
	}
}

func (s *DashboardService) cachedStats(ctx context.Context) *DashboardStats {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, dashboardStatsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).Warn("Dashboard stats cache read failed")
		}
		return nil
	}
	var stats DashboardStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}

func (s *DashboardService) cacheStats(ctx context.Context, stats *DashboardStats) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, dashboardStatsKey, raw, dashboardStatsTTL).Err(); err != nil {
		logrus.WithError(err).Warn("Dashboard stats cache write failed")
	}
}
