package models

import (
	"time"

	"gorm.io/datatypes"
)

// Base model with common fields. Rows are hard deleted so that cascades
// from a schedule remove its enrollments and attendance for real.
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User model
type User struct {
	BaseModel
	Name     string `json:"name" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Role     Role   `json:"role" gorm:"size:20;not null;index"`
	Phone    string `json:"phone" gorm:"size:30"`
	Status   bool   `json:"status" gorm:"not null"`

	Student    *Student    `json:"student,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Instructor *Instructor `json:"instructor,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Student profile, one per student user
type Student struct {
	BaseModel
	UserID      uint   `json:"user_id" gorm:"not null;uniqueIndex"`
	StudentCode string `json:"student_code" gorm:"size:32;not null;uniqueIndex"`
	Phone       string `json:"phone" gorm:"size:30"`
	Status      bool   `json:"status" gorm:"not null"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Instructor profile, one per instructor user
type Instructor struct {
	BaseModel
	UserID      uint                        `json:"user_id" gorm:"not null;uniqueIndex"`
	Designation string                      `json:"designation" gorm:"size:255;not null"`
	Bio         string                      `json:"bio" gorm:"type:text"`
	Expertise   datatypes.JSONSlice[string] `json:"expertise"`
	Status      bool                        `json:"status" gorm:"not null"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Course catalog entry
type Course struct {
	BaseModel
	Title         string `json:"title" gorm:"size:255;not null"`
	Description   string `json:"description" gorm:"type:text"`
	Category      string `json:"category" gorm:"size:100;index"`
	Level         Level  `json:"level" gorm:"size:20"`
	DurationHours int    `json:"duration_hours"`
	MaxStudents   int    `json:"max_students"`
	Status        bool   `json:"status" gorm:"not null"`
}

// Schedule is one time-boxed training session of a course
type Schedule struct {
	BaseModel
	CourseID       uint           `json:"course_id" gorm:"not null;index"`
	InstructorID   uint           `json:"instructor_id" gorm:"not null;index"`
	Title          string         `json:"title" gorm:"size:255;not null"`
	StartTime      time.Time      `json:"start_time" gorm:"not null;index"`
	EndTime        time.Time      `json:"end_time" gorm:"not null"`
	Location       string         `json:"location" gorm:"size:255"`
	Mode           Mode           `json:"mode" gorm:"size:20;not null"`
	IsRecurring    bool           `json:"is_recurring" gorm:"not null"`
	MaxEnrollments *int           `json:"max_enrollments"`
	Status         ScheduleStatus `json:"status" gorm:"size:20;not null;default:scheduled;index"`

	Course      Course       `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Instructor  Instructor   `json:"instructor,omitempty" gorm:"foreignKey:InstructorID"`
	Enrollments []Enrollment `json:"enrollments,omitempty" gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE"`
	Attendance  []Attendance `json:"attendance,omitempty" gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE"`
}

// HasCapacityFor reports whether another active enrollment fits.
func (s Schedule) HasCapacityFor(active int64) bool {
	if s.MaxEnrollments == nil {
		return true
	}
	return active < int64(*s.MaxEnrollments)
}

// Enrollment of a student into a schedule
type Enrollment struct {
	BaseModel
	StudentID   uint             `json:"student_id" gorm:"not null;index:idx_enrollment_student_schedule"`
	ScheduleID  uint             `json:"training_schedule_id" gorm:"not null;index:idx_enrollment_student_schedule;index"`
	Status      EnrollmentStatus `json:"status" gorm:"size:20;not null;default:enrolled;index"`
	EnrolledAt  time.Time        `json:"enrolled_at" gorm:"not null"`
	CompletedAt *time.Time       `json:"completed_at"`
	Notes       string           `json:"notes" gorm:"type:text"`

	Student  Student  `json:"student,omitempty" gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE"`
	Schedule Schedule `json:"schedule,omitempty" gorm:"foreignKey:ScheduleID"`
}

// Attendance for one student at one schedule
type Attendance struct {
	BaseModel
	StudentID  uint             `json:"student_id" gorm:"not null;uniqueIndex:idx_attendance_student_schedule"`
	ScheduleID uint             `json:"schedule_id" gorm:"not null;uniqueIndex:idx_attendance_student_schedule;index"`
	Status     AttendanceStatus `json:"status" gorm:"size:20;not null"`
	Notes      string           `json:"notes" gorm:"type:text"`
	Date       datatypes.Date   `json:"date"`

	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE"`
}

func (Attendance) TableName() string { return "attendance" }

// ActivityLog model
type ActivityLog struct {
	BaseModel
	UserID     uint           `json:"user_id" gorm:"index"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID uint           `json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`
}

// LogArchive records an archived batch of activity logs uploaded to S3
type LogArchive struct {
	BaseModel
	FileName  string    `json:"file_name" gorm:"size:255;not null"`
	S3Key     string    `json:"s3_key" gorm:"size:500;not null"`
	FromDate  time.Time `json:"from_date"`
	ToDate    time.Time `json:"to_date"`
	LogCount  int       `json:"log_count"`
	SizeBytes int64     `json:"size_bytes"`
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Student{},
		&Instructor{},
		&Course{},
		&Schedule{},
		&Enrollment{},
		&Attendance{},
		&ActivityLog{},
		&LogArchive{},
	}
}
