package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/learnxy-api/internal/handler"
	"github.com/noah-isme/learnxy-api/internal/middleware"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/internal/service"
	"github.com/noah-isme/learnxy-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/learnxy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/learnxy-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler mounted by the router.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Subjects      *handler.SubjectHandler
	TimeSlots     *handler.TimeSlotHandler
	ClassSchedule *handler.ClassScheduleHandler
	Timetables    *handler.TimetableHandler
	Metrics       *handler.MetricsHandler
}

// Options carries the shared middleware dependencies.
type Options struct {
	APIPrefix       string
	AllowedOrigins  []string
	EnableDocs      bool
	Auth            *service.AuthService
	Metrics         *service.MetricsService
	Audit           middleware.AuditRecorder
	RateCounter     middleware.Counter
	VerifyRateLimit int
	VerifyWindow    time.Duration
	Logger          *zap.Logger
}

// New builds the gin engine with every route registered.
func New(h Handlers, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	registerAuth(api, h.Auth, opts, log)

	secured := api.Group("")
	secured.Use(middleware.JWT(opts.Auth))
	registerUsers(secured, h.Users, opts, log)
	registerSubjects(secured, h.Subjects, opts, log)
	registerTimeSlots(secured, h.TimeSlots, opts, log)
	registerClassSchedules(secured, h.ClassSchedule, opts, log)
	registerTimetables(secured, h.Timetables, opts, log)

	return r
}

func registerAuth(api *gin.RouterGroup, h *handler.AuthHandler, opts Options, log *zap.Logger) {
	auth := api.Group("/auth")
	throttle := middleware.RateLimit(opts.RateCounter, opts.VerifyRateLimit, opts.VerifyWindow, log)

	auth.POST("/register", h.Register)
	auth.POST("/activation", throttle, h.Activate)
	auth.POST("/resend-activation", throttle, h.ResendActivation)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/reset-password", throttle, h.RequestPasswordReset)
	auth.POST("/reset-password/confirm", throttle, h.ConfirmPasswordReset)
	auth.POST("/reset-email", throttle, h.RequestEmailReset)
	auth.POST("/reset-email/confirm", throttle, h.ConfirmEmailReset)

	authed := auth.Group("")
	authed.Use(middleware.JWT(opts.Auth))
	authed.POST("/logout", h.Logout)
	authed.POST("/change-password", h.ChangePassword)
	authed.POST("/set-email", h.SetEmail)
	authed.GET("/me", h.Me)
	authed.PUT("/me", h.UpdateMe)
}

func registerUsers(api *gin.RouterGroup, h *handler.UserHandler, opts Options, log *zap.Logger) {
	users := api.Group("/users")
	manage := middleware.Authorize(models.OpUserManage)

	users.GET("", manage, h.List)
	users.GET("/by-email", manage, h.GetByEmail)
	users.GET("/:id", middleware.Authorize(models.OpUserSelf), h.Get)
	users.POST("", manage, h.Create)
	users.PUT("/:id", manage, h.Update)
	users.DELETE("/:id", manage, h.Delete)
	users.PATCH("/:id/admission", manage, middleware.Audit(opts.Audit, log, "ADMISSION_REVIEW", "users"), h.ReviewAdmission)
}

func registerSubjects(api *gin.RouterGroup, h *handler.SubjectHandler, opts Options, log *zap.Logger) {
	subjects := api.Group("/subjects")
	write := middleware.Authorize(models.OpSubjectWrite)

	subjects.GET("", middleware.Authorize(models.OpSubjectRead), h.List)
	subjects.GET("/:id", middleware.Authorize(models.OpSubjectRead), h.Get)
	subjects.POST("", write, middleware.Audit(opts.Audit, log, "SUBJECT_CREATE", "subjects"), h.Create)
	subjects.PUT("/:id", write, middleware.Audit(opts.Audit, log, "SUBJECT_UPDATE", "subjects"), h.Update)
	subjects.DELETE("/:id", middleware.Authorize(models.OpSubjectDelete), middleware.Audit(opts.Audit, log, "SUBJECT_DELETE", "subjects"), h.Delete)
}

func registerTimeSlots(api *gin.RouterGroup, h *handler.TimeSlotHandler, opts Options, log *zap.Logger) {
	slots := api.Group("/time-slots")
	write := middleware.Authorize(models.OpTimeSlotWrite)

	slots.GET("", middleware.Authorize(models.OpTimeSlotRead), h.List)
	slots.GET("/:id", middleware.Authorize(models.OpTimeSlotRead), h.Get)
	slots.POST("", write, middleware.Audit(opts.Audit, log, "TIME_SLOT_CREATE", "time_slots"), h.Create)
	slots.PUT("/:id", write, middleware.Audit(opts.Audit, log, "TIME_SLOT_UPDATE", "time_slots"), h.Update)
	slots.DELETE("/:id", middleware.Authorize(models.OpTimeSlotDelete), middleware.Audit(opts.Audit, log, "TIME_SLOT_DELETE", "time_slots"), h.Delete)
}

func registerClassSchedules(api *gin.RouterGroup, h *handler.ClassScheduleHandler, opts Options, log *zap.Logger) {
	schedules := api.Group("/class-schedules")
	read := middleware.Authorize(models.OpScheduleRead)
	write := middleware.Authorize(models.OpScheduleWrite)

	schedules.GET("", read, h.List)
	schedules.GET("/by-day", read, h.ByDay)
	schedules.GET("/by-class", read, h.ByClass)
	schedules.GET("/:id", read, h.Get)
	schedules.POST("", write, middleware.Audit(opts.Audit, log, "SCHEDULE_CREATE", "class_schedules"), h.Create)
	schedules.PUT("/:id", write, middleware.Audit(opts.Audit, log, "SCHEDULE_UPDATE", "class_schedules"), h.Update)
	schedules.DELETE("/:id", middleware.Authorize(models.OpScheduleDelete), middleware.Audit(opts.Audit, log, "SCHEDULE_DELETE", "class_schedules"), h.Delete)
}

func registerTimetables(api *gin.RouterGroup, h *handler.TimetableHandler, opts Options, log *zap.Logger) {
	timetables := api.Group("/timetables")
	read := middleware.Authorize(models.OpTimetableRead)
	write := middleware.Authorize(models.OpTimetableWrite)

	timetables.GET("", read, h.List)
	timetables.GET("/active", read, h.Active)
	timetables.GET("/mine", middleware.Authorize(models.OpTimetableMine), h.Mine)
	timetables.GET("/:id", read, h.Get)
	timetables.GET("/:id/export", middleware.Authorize(models.OpTimetableExport), h.Export)
	timetables.POST("", write, middleware.Audit(opts.Audit, log, "TIMETABLE_CREATE", "timetables"), h.Create)
	timetables.PUT("/:id", write, middleware.Audit(opts.Audit, log, "TIMETABLE_UPDATE", "timetables"), h.Update)
	timetables.DELETE("/:id", middleware.Authorize(models.OpTimetableDelete), middleware.Audit(opts.Audit, log, "TIMETABLE_DELETE", "timetables"), h.Delete)
	timetables.POST("/:id/activate", middleware.Authorize(models.OpTimetableActivate), middleware.Audit(opts.Audit, log, "TIMETABLE_ACTIVATE", "timetables"), h.Activate)
}
