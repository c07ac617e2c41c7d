package routes

import (
	"trainhub_go/controllers"
	"trainhub_go/middleware"
	"trainhub_go/models"
	"trainhub_go/observability"
	"trainhub_go/services"
	"trainhub_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Deps carries the wired services the routes are built from.
type Deps struct {
	Auth        *services.AuthService
	Tokens      *services.TokenService
	Courses     *services.CourseService
	Roster      *services.RosterService
	Schedules   *services.ScheduleService
	Enrollments *services.EnrollmentService
	Attendance  *services.AttendanceService
	Dashboard   *services.DashboardService
	Reports     *services.ReportService
	Activity    *services.ActivityService
	Health      *services.HealthService
	Hub         *websocket.Hub

	RateLimitPerMinute int
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, d Deps) {
	authController := controllers.NewAuthController(d.Auth, d.Tokens)
	courseController := controllers.NewCourseController(d.Courses)
	studentController := controllers.NewStudentController(d.Roster)
	instructorController := controllers.NewInstructorController(d.Roster)
	scheduleController := controllers.NewScheduleController(d.Schedules)
	enrollmentController := controllers.NewEnrollmentController(d.Enrollments)
	trainingController := controllers.NewTrainingController(d.Enrollments, d.Attendance, d.Reports)
	attendanceController := controllers.NewAttendanceController(d.Attendance)
	dashboardController := controllers.NewDashboardController(d.Dashboard)
	healthController := controllers.NewHealthController(d.Health)
	wsController := controllers.NewWebSocketController(d.Hub, d.Tokens, d.Auth)
	logController := controllers.NewLogController(d.Activity)

	app.Get("/health", healthController.GetHealthStatus)
	app.Get("/metrics", adaptor.HTTPHandler(observability.Handler()))

	v1 := app.Group("/v1", middleware.WithActivity(d.Activity))

	// Public routes, limited per client IP
	publicLimit := middleware.RateLimit(d.RateLimitPerMinute)
	v1.Post("/register", publicLimit, authController.Register)
	v1.Post("/login", publicLimit, authController.Login)

	// Protected routes, limited per user
	protected := v1.Group("", middleware.JWTMiddleware(d.Tokens, d.Auth), middleware.RateLimit(d.RateLimitPerMinute))
	manager := middleware.RequireManager()
	admin := middleware.RequireRole(models.RoleAdmin)
	student := middleware.RequireRole(models.RoleStudent)

	protected.Post("/logout", authController.Logout)
	protected.Post("/refresh", authController.Refresh)
	protected.Get("/profile", authController.Profile)
	protected.Post("/users", admin, authController.CreateUser)

	protected.Get("/dashboard/stats", dashboardController.Stats)
	protected.Get("/dashboard/activity", dashboardController.Activity)

	courses := protected.Group("/courses")
	courses.Get("/", courseController.GetCourses)
	courses.Get("/:id", courseController.GetCourse)
	courses.Post("/", manager, courseController.CreateCourse)
	courses.Put("/:id", manager, courseController.UpdateCourse)
	courses.Delete("/:id", manager, courseController.DeleteCourse)

	students := protected.Group("/students")
	students.Get("/", studentController.GetStudents)
	students.Get("/:id", studentController.GetStudent)
	students.Post("/", manager, studentController.CreateStudent)
	students.Put("/:id", manager, studentController.UpdateStudent)
	students.Delete("/:id", manager, studentController.DeleteStudent)

	instructors := protected.Group("/instructors")
	instructors.Get("/", instructorController.GetInstructors)
	instructors.Get("/:id", instructorController.GetInstructor)
	instructors.Post("/", manager, instructorController.CreateInstructor)
	instructors.Put("/:id", manager, instructorController.UpdateInstructor)
	instructors.Delete("/:id", manager, instructorController.DeleteInstructor)

	schedules := protected.Group("/schedules")
	schedules.Get("/", scheduleController.GetSchedules)
	schedules.Get("/:id", scheduleController.GetSchedule)
	schedules.Post("/", manager, scheduleController.CreateSchedule)
	schedules.Put("/:id", manager, scheduleController.UpdateSchedule)
	schedules.Delete("/:id", manager, scheduleController.DeleteSchedule)

	enrollments := protected.Group("/enrollments")
	enrollments.Get("/", enrollmentController.GetEnrollments)
	enrollments.Get("/:id", enrollmentController.GetEnrollment)
	enrollments.Post("/", admin, enrollmentController.CreateEnrollment)
	enrollments.Put("/:id", admin, enrollmentController.UpdateEnrollment)
	enrollments.Delete("/:id", admin, enrollmentController.DeleteEnrollment)

	training := protected.Group("/training/:id")
	training.Post("/optin", student, trainingController.OptIn)
	training.Delete("/optout", student, trainingController.OptOut)
	training.Get("/attendance", manager, trainingController.GetAttendance)
	training.Post("/attendance", manager, trainingController.MarkAttendance)
	training.Get("/attendance/pdf", manager, trainingController.ExportAttendance)
	training.Get("/attendance/export", manager, trainingController.ExportAttendance)

	protected.Put("/attendance/:id", manager, attendanceController.UpdateAttendance)

	logs := protected.Group("/logs", admin)
	logs.Get("/", logController.GetLogs)
	logs.Get("/archives", logController.GetArchives)
	logs.Post("/archive", logController.ArchiveLogs)

	protected.Get("/ws/stats", admin, wsController.GetWebSocketStats)

	// WebSocket connection endpoint, authenticated by ?token=
	app.Get("/ws", wsController.RequireUpgrade, wsController.WebSocketHandler())
}
