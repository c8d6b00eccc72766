package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/middleware"
)

// RouterConfig carries the handlers mounted by RegisterRoutes. Exports may
// be nil when the export pipeline is disabled; a nil Auth leaves admin
// routes open.
type RouterConfig struct {
	APIPrefix   string
	Auth        middleware.TokenValidator
	Logger      *zap.Logger
	Rooms       *RoomHandler
	Occupations *OccupationHandler
	Bookings    *BookingHandler
	Timetable   *TimetableHandler
	Exports     *ExportHandler
	Ops         *MetricsHandler
}

// RegisterRoutes mounts the probes and the versioned API on r.
func RegisterRoutes(r *gin.Engine, cfg RouterConfig) {
	if cfg.Ops != nil {
		r.GET("/health", cfg.Ops.Health)
		r.GET("/ready", cfg.Ops.Ready)
		r.GET("/metrics", cfg.Ops.Prometheus)
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix, middleware.WithResponseMeta())
	admin := api.Group("", middleware.Admin(cfg.Auth)...)

	rooms := cfg.Rooms
	api.GET("/rooms", rooms.List)
	api.GET("/rooms/:id", rooms.Get)
	api.GET("/rooms/:id/free", rooms.FreeWindows)
	roomAdmin := admin.Group("/rooms", middleware.Audit(cfg.Logger, "room"))
	roomAdmin.POST("", rooms.Create)
	roomAdmin.PUT("/:id", rooms.Update)
	roomAdmin.DELETE("/:id", rooms.Delete)

	occupations := cfg.Occupations
	api.GET("/classes", occupations.ListClasses)
	api.GET("/classes/:id", occupations.GetClass)
	classAdmin := admin.Group("/classes", middleware.Audit(cfg.Logger, "class"))
	classAdmin.POST("", occupations.CreateClass)
	classAdmin.PUT("/:id", occupations.UpdateClass)
	classAdmin.DELETE("/:id", occupations.DeleteClass)

	api.GET("/exams", occupations.ListExams)
	api.GET("/exams/:id", occupations.GetExam)
	examAdmin := admin.Group("/exams", middleware.Audit(cfg.Logger, "exam"))
	examAdmin.POST("", occupations.CreateExam)
	examAdmin.PUT("/:id", occupations.UpdateExam)
	examAdmin.DELETE("/:id", occupations.DeleteExam)

	bookings := cfg.Bookings
	api.POST("/bookings", bookings.Submit)
	api.POST("/bookings/:id/withdraw", bookings.Withdraw)
	bookingAdmin := admin.Group("/bookings", middleware.Audit(cfg.Logger, "booking"))
	bookingAdmin.GET("", bookings.List)
	bookingAdmin.GET("/pending", bookings.Pending)
	bookingAdmin.GET("/:id", bookings.Get)
	bookingAdmin.POST("/:id/approve", bookings.Approve)
	bookingAdmin.POST("/:id/reject", bookings.Reject)

	timetable := cfg.Timetable
	api.GET("/timetable", timetable.Flat)
	api.GET("/timetable/timeline", timetable.Timeline)
	api.GET("/timetable/grid", timetable.Grid)
	api.GET("/timetable/options", timetable.Options)

	if cfg.Exports != nil {
		api.GET("/exports/download/:token", cfg.Exports.Download)
		exportAdmin := admin.Group("/exports", middleware.Audit(cfg.Logger, "export"))
		exportAdmin.POST("", cfg.Exports.Create)
		exportAdmin.GET("/:id", cfg.Exports.Status)
	}
}
