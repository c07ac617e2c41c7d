package seeders

import (
	"time"

	"trainhub_go/models"
	"trainhub_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account gets.
const DefaultPassword = "password123"

// SeedAll runs all seeders
func SeedAll(db *gorm.DB) error {
	logrus.Info("Starting database seeding...")

	steps := []struct {
		name string
		fn   func(*gorm.DB) error
	}{
		{"users", SeedUsers},
		{"students", SeedStudents},
		{"instructors", SeedInstructors},
		{"courses", SeedCourses},
		{"schedules", SeedSchedules},
	}
	for _, step := range steps {
		if err := step.fn(db); err != nil {
			return errors.Wrapf(err, "seed %s", step.name)
		}
	}

	logrus.Info("Database seeding completed successfully!")
	return nil
}

func alreadySeeded(db *gorm.DB, model interface{}, name string) (bool, error) {
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		logrus.Infof("%s already seeded, skipping...", name)
		return true, nil
	}
	return false, nil
}

// SeedUsers seeds the users table
func SeedUsers(db *gorm.DB) error {
	if done, err := alreadySeeded(db, &models.User{}, "Users"); done || err != nil {
		return err
	}

	hashedPassword, err := utils.HashPassword(DefaultPassword)
	if err != nil {
		return err
	}

	users := []models.User{
		{Name: "Site Admin", Email: "admin@trainhub.local", Role: models.RoleAdmin, Phone: "0812345678"},
		{Name: "John Smith", Email: "john.smith@trainhub.local", Role: models.RoleInstructor, Phone: "0896789012"},
		{Name: "Alice Wilson", Email: "alice.wilson@trainhub.local", Role: models.RoleStudent, Phone: "0891234567"},
		{Name: "Bob Chen", Email: "bob.chen@trainhub.local", Role: models.RoleStudent},
		{Name: "Carla Diaz", Email: "carla.diaz@trainhub.local", Role: models.RoleStudent},
	}
	for i := range users {
		users[i].Password = hashedPassword
		users[i].Status = true
		if err := db.Create(&users[i]).Error; err != nil {
			return errors.Wrapf(err, "user %s", users[i].Email)
		}
	}

	logrus.Info("Users seeded successfully")
	return nil
}

// SeedStudents creates a profile for every seeded student user.
func SeedStudents(db *gorm.DB) error {
	if done, err := alreadySeeded(db, &models.Student{}, "Students"); done || err != nil {
		return err
	}

	var users []models.User
	if err := db.Where("role = ?", models.RoleStudent).Order("id").Find(&users).Error; err != nil {
		return err
	}
	for _, u := range users {
		student := models.Student{
			UserID:      u.ID,
			StudentCode: utils.CurrentStudentCode(u.ID),
			Phone:       u.Phone,
			Status:      true,
		}
		if err := db.Create(&student).Error; err != nil {
			return errors.Wrapf(err, "student for user %d", u.ID)
		}
	}

	logrus.Info("Students seeded successfully")
	return nil
}

// SeedInstructors creates a profile for every seeded instructor user.
func SeedInstructors(db *gorm.DB) error {
	if done, err := alreadySeeded(db, &models.Instructor{}, "Instructors"); done || err != nil {
		return err
	}

	var users []models.User
	if err := db.Where("role = ?", models.RoleInstructor).Order("id").Find(&users).Error; err != nil {
		return err
	}
	for _, u := range users {
		instructor := models.Instructor{
			UserID:      u.ID,
			Designation: "Senior Trainer",
			Bio:         "Runs the onboarding and safety tracks.",
			Expertise:   datatypes.JSONSlice[string]{"Go", "Workplace Safety"},
			Status:      true,
		}
		if err := db.Create(&instructor).Error; err != nil {
			return errors.Wrapf(err, "instructor for user %d", u.ID)
		}
	}

	logrus.Info("Instructors seeded successfully")
	return nil
}

// SeedCourses seeds the courses table
func SeedCourses(db *gorm.DB) error {
	if done, err := alreadySeeded(db, &models.Course{}, "Courses"); done || err != nil {
		return err
	}

	courses := []models.Course{
		{Title: "Go Fundamentals", Description: "Types, interfaces and concurrency basics.", Category: "Engineering", Level: models.LevelBeginner, DurationHours: 16, MaxStudents: 20, Status: true},
		{Title: "Workplace Safety", Description: "Mandatory yearly refresher.", Category: "Compliance", Level: models.LevelBeginner, DurationHours: 4, MaxStudents: 50, Status: true},
		{Title: "Distributed Systems", Description: "Consensus, replication and failure modes.", Category: "Engineering", Level: models.LevelAdvanced, DurationHours: 24, MaxStudents: 12, Status: true},
	}
	if err := db.Create(&courses).Error; err != nil {
		return err
	}

	logrus.Info("Courses seeded successfully")
	return nil
}

// SeedSchedules plans one upcoming session per course with the first instructor.
func SeedSchedules(db *gorm.DB) error {
	if done, err := alreadySeeded(db, &models.Schedule{}, "Schedules"); done || err != nil {
		return err
	}

	var instructor models.Instructor
	if err := db.Order("id").First(&instructor).Error; err != nil {
		return errors.Wrap(err, "no instructor to assign")
	}
	var courses []models.Course
	if err := db.Order("id").Find(&courses).Error; err != nil {
		return err
	}

	start := time.Now().UTC().Truncate(time.Hour).AddDate(0, 0, 7)
	modes := []models.Mode{models.ModeOffline, models.ModeOnline, models.ModeHybrid}
	for i, c := range courses {
		limit := c.MaxStudents
		begin := start.AddDate(0, 0, i)
		schedule := models.Schedule{
			CourseID:       c.ID,
			InstructorID:   instructor.ID,
			Title:          c.Title + " - Cohort 1",
			StartTime:      begin,
			EndTime:        begin.Add(time.Duration(c.DurationHours) * time.Hour),
			Location:       "Training Room A",
			Mode:           modes[i%len(modes)],
			MaxEnrollments: &limit,
			Status:         models.ScheduleScheduled,
		}
		if err := db.Omit("Course", "Instructor", "Enrollments", "Attendance").Create(&schedule).Error; err != nil {
			return errors.Wrapf(err, "schedule for course %d", c.ID)
		}
	}

	logrus.Info("Schedules seeded successfully")
	return nil
}
