package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"student_records/backend/internal/gateway/handlers"
	"student_records/backend/internal/shared"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(services *Services, cfg *shared.ServiceConfig, log *logrus.Logger) *chi.Mux {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// 1. Global Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	authHandler := &handlers.AuthHandler{Auth: services.Auth}
	uploadHandler := &handlers.UploadHandler{Ingestion: services.Ingestion, MaxBytes: cfg.Upload.MaxUploadBytes}
	recordHandler := &handlers.RecordHandler{Records: services.Records}
	adminHandler := &handlers.AdminHandler{Admin: services.Admin}
	healthHandler := &handlers.HealthHandler{Ping: services.Ping}

	// 3. Define Routes (grouped by prefix)
	r.Route("/api", func(r chi.Router) {

		// --- Public Routes ---
		r.Get("/health", healthHandler.Health)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/admin/auth/login", authHandler.AdminLogin)

		// --- Protected Routes (Require Valid Token) ---
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(services.Auth))

			r.Get("/auth/validate", authHandler.ValidateToken)
			r.Post("/auth/change-password", authHandler.ChangePassword)

			// Uploads are not wrapped in the request timeout; ingestion runs to completion
			r.Post("/uploads", uploadHandler.Upload)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(timeout))
				mountRecordRoutes(r, recordHandler)
			})

			// Admin Management
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Post("/uploads", uploadHandler.Upload)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Timeout(timeout))

					r.Get("/stats", adminHandler.GetSystemStats)

					r.Post("/users", adminHandler.CreateUser)
					r.Get("/users", adminHandler.ListUsers)
					r.Post("/users/{id}/reset-password", adminHandler.ResetPassword)
					r.Patch("/users/{id}/status", adminHandler.ToggleUserStatus)

					mountRecordRoutes(r, recordHandler)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w)
	})

	return r
}

// mountRecordRoutes registers the upload and record routes. The same routes
// serve users and admins; the principal decides which uploads are visible.
func mountRecordRoutes(r chi.Router, h *handlers.RecordHandler) {
	r.Get("/uploads", h.ListUploads)
	r.Get("/uploads/{id}", h.GetUpload)
	r.Delete("/uploads/{id}", h.DeleteUpload)
	r.Get("/uploads/{id}/records", h.ListRecords)
	r.Get("/uploads/{id}/export", h.Export)

	r.Get("/records/{id}", h.GetRecord)
	r.Put("/records/{id}", h.UpdateRecord)
	r.Delete("/records/{id}", h.DeleteRecord)
}
