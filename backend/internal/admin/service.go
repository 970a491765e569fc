package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"student_records/backend/internal/auth"
	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

const maxListedUsers = 100

// AdminService implements account management and system statistics
type AdminService struct {
	config   *shared.ServiceConfig
	repos    *repository.Repositories
	log      *logrus.Logger
	password func() string
}

// CreateUserResult carries the generated initial password
type CreateUserResult struct {
	User            *shared.User `json:"user"`
	InitialPassword string       `json:"initial_password"`
}

// NewAdminService creates a new AdminService instance
func NewAdminService(config *shared.ServiceConfig, repos *repository.Repositories, log *logrus.Logger) *AdminService {
	return &AdminService{
		config:   config,
		repos:    repos,
		log:      log,
		password: generateRandomPassword,
	}
}

// ============================================================================
// User Management
// ============================================================================

// CreateUser creates an active account with a random initial password
func (s *AdminService) CreateUser(ctx context.Context, email, name, role string) (*CreateUserResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || name == "" || role == "" {
		return nil, status.Error(codes.InvalidArgument, "email, name and role are required")
	}
	if !shared.IsValidRole(role) {
		return nil, status.Error(codes.InvalidArgument, "invalid role")
	}

	initPwd := s.password()
	hash, err := auth.HashPassword(initPwd, s.config.Security.BCryptCost)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to process password")
	}

	user := &shared.User{
		ID:           shared.GenerateID(role),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Name:         name,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}

	if err := s.repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, status.Error(codes.AlreadyExists, "email exists")
		}
		s.log.WithError(err).Error("Failed to create user")
		return nil, status.Error(codes.Internal, "failed to create user")
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("User created")
	return &CreateUserResult{User: user, InitialPassword: initPwd}, nil
}

// ListUsers lists accounts, optionally by role and active state
func (s *AdminService) ListUsers(ctx context.Context, role string, activeOnly bool) ([]shared.User, error) {
	if role != "" && !shared.IsValidRole(role) {
		return nil, status.Error(codes.InvalidArgument, "invalid role")
	}

	users, err := s.repos.Users.List(ctx, repository.UserQuery{Role: role, ActiveOnly: activeOnly, Limit: maxListedUsers})
	if err != nil {
		s.log.WithError(err).Error("Failed to list users")
		return nil, status.Error(codes.Internal, "failed to list users")
	}
	return users, nil
}

// SetUserStatus activates or deactivates an account. Deactivation ends its sessions.
func (s *AdminService) SetUserStatus(ctx context.Context, actor shared.Principal, userID string, active bool) error {
	if userID == "" {
		return status.Error(codes.InvalidArgument, "user id is required")
	}
	if userID == actor.UserID && !active {
		return status.Error(codes.FailedPrecondition, "cannot deactivate your own account")
	}

	if err := s.repos.Users.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return status.Error(codes.NotFound, "user not found")
		}
		return status.Error(codes.Internal, "db error")
	}

	if !active {
		if _, err := s.repos.Sessions.DeleteByUser(ctx, userID); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("Failed to revoke sessions")
		}
	}
	return nil
}

// ResetPassword assigns a new random password and ends the account's sessions
func (s *AdminService) ResetPassword(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", status.Error(codes.InvalidArgument, "id required")
	}

	newPwd := s.password()
	hash, err := auth.HashPassword(newPwd, s.config.Security.BCryptCost)
	if err != nil {
		return "", status.Error(codes.Internal, "failed to process password")
	}

	if err := s.repos.Users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", status.Error(codes.NotFound, "user not found")
		}
		return "", status.Error(codes.Internal, "db error")
	}

	if _, err := s.repos.Sessions.DeleteByUser(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to revoke sessions")
	}
	return newPwd, nil
}

// ============================================================================
// Stats
// ============================================================================

// GetSystemStats counts users, uploads and records concurrently
func (s *AdminService) GetSystemStats(ctx context.Context) (*shared.SystemStats, error) {
	stats := &shared.SystemStats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalUsers, err = s.repos.Users.Count(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveUsers, err = s.repos.Users.Count(gctx, true)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalUploads, err = s.repos.Uploads.Count(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		stats.ProcessingUploads, err = s.repos.Uploads.Count(gctx, shared.UploadProcessing)
		return err
	})
	g.Go(func() (err error) {
		stats.FailedUploads, err = s.repos.Uploads.Count(gctx, shared.UploadFailed)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalRecords, err = s.repos.Records.Count(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.log.WithError(err).Error("Failed to compute system stats")
		return nil, status.Error(codes.Internal, "failed to compute stats")
	}
	return stats, nil
}

// ============================================================================
// Helpers
// ============================================================================

func generateRandomPassword() string {
	b := make([]byte, 9)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
