package gateway

import (
	"context"

	"github.com/sirupsen/logrus"

	"student_records/backend/internal/admin"
	"student_records/backend/internal/auth"
	"student_records/backend/internal/ingestion"
	"student_records/backend/internal/records"
	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

// Services holds every backend service the HTTP handlers call into.
// It is built once in main.go and injected into the routes.
type Services struct {
	Auth      *auth.AuthService
	Ingestion *ingestion.Service
	Records   *records.RecordsService
	Admin     *admin.AdminService

	// Ping reports database reachability for the health route
	Ping func(ctx context.Context) error
}

// NewServices wires the services onto one set of repositories
func NewServices(cfg *shared.ServiceConfig, repos *repository.Repositories, log *logrus.Logger, ping func(ctx context.Context) error) *Services {
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	return &Services{
		Auth:      auth.NewAuthService(cfg, repos.Users, repos.Sessions, log),
		Ingestion: ingestion.NewService(repos.Uploads, repos.Records, cfg.Upload.BatchSize, log),
		Records:   records.NewRecordsService(repos.Uploads, repos.Records, log),
		Admin:     admin.NewAdminService(cfg, repos, log),
		Ping:      ping,
	}
}
