package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/markazapp/markaz-admin-api/api/swagger"
	"github.com/markazapp/markaz-admin-api/internal/handler"
	"github.com/markazapp/markaz-admin-api/internal/middleware"
	"github.com/markazapp/markaz-admin-api/internal/models"
	"github.com/markazapp/markaz-admin-api/internal/repository"
	"github.com/markazapp/markaz-admin-api/internal/service"
	"github.com/markazapp/markaz-admin-api/pkg/config"
	"github.com/markazapp/markaz-admin-api/pkg/logger"
	corsmiddleware "github.com/markazapp/markaz-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/markazapp/markaz-admin-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth         *handler.AuthHandler
	Person       *handler.PersonHandler
	Profile      *handler.ProfileHandler
	Enrollment   *handler.EnrollmentHandler
	Batch        *handler.BatchHandler
	Family       *handler.FamilyHandler
	Billing      *handler.BillingHandler
	Attendance   *handler.AttendanceHandler
	CheckIn      *handler.CheckInHandler
	Notification *handler.NotificationHandler
	Export       *handler.ExportHandler
	Metrics      *handler.MetricsHandler
}

// New builds the gin engine with every route mounted.
func New(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, users *repository.UserRepository, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Stripe posts here with its own signature scheme, not a JWT.
	r.POST("/webhooks/stripe/:program", h.Billing.Webhook)

	api := r.Group(cfg.APIPrefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	staffRead := middleware.RequireRoles(models.RoleStaff, models.RoleAdmin, models.RoleSuperAdmin)
	adminWrite := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	superOnly := middleware.RequireRoles(models.RoleSuperAdmin)

	protected.POST("/auth/logout", h.Auth.Logout)
	protected.POST("/auth/change-password", h.Auth.ChangePassword)
	protected.GET("/auth/me", h.Auth.Me)

	people := protected.Group("/people")
	{
		people.GET("", staffRead, h.Person.List)
		people.GET("/lookup", staffRead, h.Person.Lookup)
		people.GET("/:id", staffRead, h.Person.Get)
		people.POST("", adminWrite, h.Person.Create)
		people.PUT("/:id", adminWrite, h.Person.Update)
		people.GET("/:id/contacts", staffRead, h.Person.ListContacts)
		people.POST("/:id/contacts", adminWrite, h.Person.AddContact)
		people.PUT("/:id/contacts/:contactId", adminWrite, h.Person.UpdateContact)
		people.DELETE("/:id/contacts/:contactId", adminWrite, h.Person.RemoveContact)
		people.GET("/:id/guardians", staffRead, h.Family.GuardiansOf)
		people.GET("/:id/students", staffRead, h.Family.StudentsOf)
		people.GET("/:id/siblings", staffRead, h.Family.SiblingsOf)
	}

	profiles := protected.Group("/profiles")
	{
		profiles.GET("", staffRead, h.Profile.List)
		profiles.GET("/:id", staffRead, h.Profile.Get)
		profiles.POST("", adminWrite, h.Profile.Create)
		profiles.PUT("/:id", adminWrite, h.Profile.Update)
		profiles.DELETE("/:id", superOnly, middleware.Audit(users, models.AuditActionProfileDelete, "profile"), h.Profile.Delete)
		profiles.POST("/duplicates/resolve", superOnly, middleware.Audit(users, models.AuditActionDuplicateResolve, "profile"), h.Profile.ResolveDuplicates)
		profiles.GET("/:id/subscriptions", staffRead, h.Billing.ProfileSubscriptions)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", staffRead, h.Enrollment.List)
		enrollments.GET("/:id", staffRead, h.Enrollment.Get)
		enrollments.POST("", adminWrite, h.Enrollment.Create)
		enrollments.POST("/:id/transition", adminWrite, h.Enrollment.Transition)
		enrollments.PUT("/:id/batch", adminWrite, h.Enrollment.AssignBatch)
		enrollments.GET("/:id/attendance/summary", staffRead, h.Attendance.Summary)
	}

	batches := protected.Group("/batches")
	{
		batches.GET("", staffRead, h.Batch.List)
		batches.GET("/:id", staffRead, h.Batch.Get)
		batches.GET("/:id/roster", staffRead, h.Batch.Roster)
		batches.POST("", adminWrite, h.Batch.Create)
		batches.PUT("/:id", adminWrite, h.Batch.Update)
		batches.DELETE("/:id", adminWrite, h.Batch.Deactivate)
		batches.POST("/bulk-assign", adminWrite, h.Batch.BulkAssign)
		batches.POST("/:id/transfer", adminWrite, h.Batch.Transfer)
		batches.GET("/:id/export", staffRead, h.Export.BatchRoster)
		batches.GET("/:id/contacts/export", staffRead, h.Export.BatchContacts)
	}

	families := protected.Group("/families")
	{
		families.POST("/guardians", adminWrite, h.Family.AddGuardian)
		families.DELETE("/guardians/:id", adminWrite, h.Family.RemoveGuardian)
		families.POST("/siblings", adminWrite, h.Family.AddSibling)
		families.DELETE("/siblings", adminWrite, h.Family.RemoveSibling)
		families.POST("/siblings/detect", adminWrite, h.Family.DetectSiblings)
		families.GET("/rate-preview", staffRead, h.Family.RatePreview)
		families.GET("/:id", staffRead, h.Family.FamilyGroup)
		families.GET("/:id/rate", staffRead, h.Family.MonthlyRate)
	}

	billing := protected.Group("/billing")
	{
		billing.POST("/subscriptions/link", adminWrite, middleware.Audit(users, models.AuditActionSubscriptionLink, "subscription"), h.Billing.Link)
		billing.POST("/subscriptions/cancel", adminWrite, middleware.Audit(users, models.AuditActionSubscriptionCancel, "subscription"), h.Billing.Cancel)
		billing.POST("/subscriptions/sync", adminWrite, h.Billing.Sync)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.GET("", staffRead, h.Attendance.List)
		attendance.POST("", staffRead, h.Attendance.Mark)
		attendance.POST("/bulk", staffRead, h.Attendance.BulkMark)
		attendance.GET("/export", staffRead, h.Export.AttendanceSheet)
	}

	checkins := protected.Group("/checkins")
	{
		checkins.GET("", staffRead, h.CheckIn.List)
		checkins.POST("", staffRead, h.CheckIn.CheckIn)
		checkins.POST("/:id/checkout", staffRead, h.CheckIn.CheckOut)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", staffRead, h.Notification.History)
		notifications.POST("/send", adminWrite, h.Notification.Send)
		notifications.POST("/bulk", adminWrite, h.Notification.BulkSend)
	}

	return r
}
